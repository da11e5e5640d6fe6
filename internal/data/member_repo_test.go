package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"referralhub/internal/biz"
	"referralhub/internal/conf"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-kratos/kratos/v2/log"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

func newTestData(t *testing.T, seed bool) *Data {
	t.Helper()
	c := &conf.Data{
		Database: &conf.Database{
			Driver:       "sqlite",
			Dsn:          "file:" + filepath.Join(t.TempDir(), "members.db"),
			AutoMigrate:  true,
			QueryTimeout: conf.NewDuration(5 * time.Second),
			ReadyTimeout: conf.NewDuration(2 * time.Second),
		},
		Seed: &conf.Seed{Demo: seed},
	}
	d, cleanup, err := NewData(c, log.NewStdLogger(io.Discard))
	if err != nil {
		t.Fatalf("NewData: %v", err)
	}
	t.Cleanup(cleanup)
	return d
}

var testBase = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func insertMember(t *testing.T, d *Data, id string, minute int, kv ...any) {
	t.Helper()
	row := map[string]any{
		biz.FieldID:        id,
		biz.FieldStatus:    string(biz.StatusPending),
		biz.FieldSelected:  false,
		biz.FieldCreatedAt: testBase.Add(time.Duration(minute) * time.Minute),
		biz.FieldUpdatedAt: testBase.Add(time.Duration(minute) * time.Minute),
	}
	for i := 0; i+1 < len(kv); i += 2 {
		row[kv[i].(string)] = kv[i+1]
	}
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	vals := make([]any, 0, len(cols))
	for _, c := range cols {
		vals = append(vals, row[c])
	}
	q, args := entsql.Dialect(d.dialect).Insert(membersTable).Columns(cols...).Values(vals...).Query()
	if err := d.drv.Exec(context.Background(), q, args, nil); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func memberIDs(ms []*biz.Member) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func seedScenario(t *testing.T, d *Data) {
	insertMember(t, d, "M", 0, "own_invite_code", "X1", "name", "Mona Root", "latitude", 1.25)
	insertMember(t, d, "B1", 10, "used_invite_code", "X1", "own_invite_code", "Y1", "name", "Alice Smith", "status", "approved")
	insertMember(t, d, "B2", 5, "used_invite_code", "X1", "email", "ALICE@Example.com")
	insertMember(t, d, "C1", 20, "used_invite_code", "Y1", "invite_no", int64(550123))
	insertMember(t, d, "L", 30, "referral_code", "LEG1", "status", "rejected")
}

func TestMemberRepo_ResolveScenario(t *testing.T) {
	d := newTestData(t, false)
	seedScenario(t, d)

	logger := log.NewStdLogger(io.Discard)
	repo := NewMemberRepo(d, logger)
	uc := biz.NewReferralUsecase(repo, biz.DefaultCodeFields, logger, tracesdk.NewTracerProvider())

	tree, err := uc.Resolve(context.Background(), "M")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := memberIDs(tree.Level1); !reflect.DeepEqual(got, []string{"B1", "B2"}) {
		t.Fatalf("level1 = %v", got)
	}
	if got := memberIDs(tree.Level2); !reflect.DeepEqual(got, []string{"C1"}) {
		t.Fatalf("level2 = %v", got)
	}
	if tree.Member.Attrs["latitude"] != 1.25 || tree.Member.Attrs["name"] != "Mona Root" {
		t.Fatalf("passthrough attrs lost: %#v", tree.Member.Attrs)
	}
	if tree.Member.CreatedAt.IsZero() {
		t.Fatalf("created_at not decoded")
	}

	if _, err := uc.Resolve(context.Background(), "nobody"); !errors.Is(err, biz.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMemberRepo_FindByID(t *testing.T) {
	d := newTestData(t, false)
	seedScenario(t, d)
	repo := NewMemberRepo(d, log.NewStdLogger(io.Discard))

	m, err := repo.FindByID(context.Background(), "B1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if m.Status != biz.StatusApproved || m.UsedInviteCode != "X1" {
		t.Fatalf("unexpected member %+v", m)
	}
	if _, err := repo.FindByID(context.Background(), "missing"); !errors.Is(err, biz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemberRepo_FindInEmpty(t *testing.T) {
	d := newTestData(t, false)
	repo := NewMemberRepo(d, log.NewStdLogger(io.Discard))

	rows, err := repo.FindIn(context.Background(), biz.FieldUsedInviteCode, nil, nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("FindIn(nil) = %v, %v", rows, err)
	}
}

func TestMemberRepo_List(t *testing.T) {
	d := newTestData(t, false)
	seedScenario(t, d)
	repo := NewMemberRepo(d, log.NewStdLogger(io.Discard))
	searchFields := append([]string{biz.FieldName, biz.FieldEmail, biz.FieldPhone}, biz.DefaultCodeFields...)
	byCreated := []biz.OrderBy{{Field: biz.FieldCreatedAt, Desc: true}, {Field: biz.FieldID}}

	tests := []struct {
		name      string
		q         biz.ListQuery
		wantIDs   []string
		wantTotal int
	}{
		{
			name:      "all",
			q:         biz.ListQuery{Sort: byCreated, Limit: 50},
			wantIDs:   []string{"L", "C1", "B1", "B2", "M"},
			wantTotal: 5,
		},
		{
			name:      "search is case-insensitive across name and email",
			q:         biz.ListQuery{Search: "alice", SearchFields: searchFields, Sort: byCreated, Limit: 50},
			wantIDs:   []string{"B1", "B2"},
			wantTotal: 2,
		},
		{
			name:      "search hits legacy and numeric aliases",
			q:         biz.ListQuery{Search: "leg1", SearchFields: searchFields, Sort: byCreated, Limit: 50},
			wantIDs:   []string{"L"},
			wantTotal: 1,
		},
		{
			name:      "numeric alias",
			q:         biz.ListQuery{Search: "5501", SearchFields: searchFields, Sort: byCreated, Limit: 50},
			wantIDs:   []string{"C1"},
			wantTotal: 1,
		},
		{
			name:      "status filter",
			q:         biz.ListQuery{Statuses: []biz.Status{biz.StatusApproved, biz.StatusRejected}, Sort: byCreated, Limit: 50},
			wantIDs:   []string{"L", "B1"},
			wantTotal: 2,
		},
		{
			name:      "search and status",
			q:         biz.ListQuery{Search: "alice", SearchFields: searchFields, Statuses: []biz.Status{biz.StatusPending}, Sort: byCreated, Limit: 50},
			wantIDs:   []string{"B2"},
			wantTotal: 1,
		},
		{
			name:      "paging keeps total",
			q:         biz.ListQuery{Sort: byCreated, Offset: 2, Limit: 2},
			wantIDs:   []string{"B1", "B2"},
			wantTotal: 5,
		},
		{
			name:      "sort by name asc",
			q:         biz.ListQuery{Sort: []biz.OrderBy{{Field: biz.FieldName}, {Field: biz.FieldID}}, Limit: 2, Offset: 3},
			wantIDs:   []string{"B1", "M"},
			wantTotal: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, total, err := repo.List(context.Background(), tt.q)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if total != tt.wantTotal {
				t.Fatalf("total = %d want %d", total, tt.wantTotal)
			}
			if got := memberIDs(rows); !reflect.DeepEqual(got, tt.wantIDs) {
				t.Fatalf("rows = %v want %v", got, tt.wantIDs)
			}
		})
	}
}

func TestMemberRepo_ListRejectsBadColumn(t *testing.T) {
	d := newTestData(t, false)
	repo := NewMemberRepo(d, log.NewStdLogger(io.Discard))

	_, _, err := repo.List(context.Background(), biz.ListQuery{
		Sort:  []biz.OrderBy{{Field: "name; DROP TABLE members"}},
		Limit: 10,
	})
	if err == nil {
		t.Fatalf("expected error for invalid column")
	}
}

func TestMemberRepo_UpdateIn(t *testing.T) {
	d := newTestData(t, false)
	seedScenario(t, d)
	repo := NewMemberRepo(d, log.NewStdLogger(io.Discard))

	approved := biz.StatusApproved
	rows, err := repo.UpdateIn(context.Background(), []string{"B2", "C1", "ghost"}, biz.Mutation{Status: &approved})
	if err != nil {
		t.Fatalf("UpdateIn: %v", err)
	}
	if got := memberIDs(rows); !reflect.DeepEqual(got, []string{"C1", "B2"}) {
		t.Fatalf("rows = %v", got)
	}
	for _, m := range rows {
		if m.Status != biz.StatusApproved {
			t.Fatalf("%s status = %s", m.ID, m.Status)
		}
		if updated, ok := m.Attrs[biz.FieldUpdatedAt].(time.Time); !ok || !updated.After(testBase.Add(time.Hour)) {
			t.Fatalf("%s updated_at not bumped: %#v", m.ID, m.Attrs[biz.FieldUpdatedAt])
		}
	}

	selected := true
	rows, err = repo.UpdateIn(context.Background(), []string{"M"}, biz.Mutation{Selected: &selected})
	if err != nil || len(rows) != 1 || !rows[0].Selected {
		t.Fatalf("select M: rows=%v err=%v", rows, err)
	}

	rows, err = repo.UpdateIn(context.Background(), []string{"ghost"}, biz.Mutation{Selected: &selected})
	if err != nil || len(rows) != 0 {
		t.Fatalf("missing id: rows=%v err=%v", rows, err)
	}

	// 没被选中的行不受影响
	b1, err := repo.FindByID(context.Background(), "B1")
	if err != nil || b1.Selected || b1.Status != biz.StatusApproved {
		t.Fatalf("B1 changed unexpectedly: %+v err=%v", b1, err)
	}
}

func TestMemberRepo_QueryTimeoutSurfacesAsError(t *testing.T) {
	d := newTestData(t, false)
	seedScenario(t, d)
	repo := NewMemberRepo(d, log.NewStdLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := repo.FindByID(ctx, "M"); err == nil || errors.Is(err, biz.ErrNotFound) {
		t.Fatalf("canceled ctx should fail, got %v", err)
	}
}

func TestInitDemoMembers(t *testing.T) {
	d := newTestData(t, true)
	logger := log.NewStdLogger(io.Discard)
	repo := NewMemberRepo(d, logger)

	rows, total, err := repo.List(context.Background(), biz.ListQuery{
		Sort:  []biz.OrderBy{{Field: biz.FieldCreatedAt}, {Field: biz.FieldID}},
		Limit: 50,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != len(demoForest) {
		t.Fatalf("total = %d want %d", total, len(demoForest))
	}

	uc := biz.NewReferralUsecase(repo, biz.DefaultCodeFields, logger, tracesdk.NewTracerProvider())
	tree, err := uc.Resolve(context.Background(), rows[0].ID)
	if err != nil {
		t.Fatalf("Resolve root: %v", err)
	}
	if len(tree.Level1) != 3 || len(tree.Level2) != 3 {
		t.Fatalf("level1=%d level2=%d", len(tree.Level1), len(tree.Level2))
	}

	// 表非空时不再重复写入
	if err := InitDemoMembersIfNeeded(context.Background(), d, d.conf, d.log); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if _, total, _ := repo.List(context.Background(), biz.ListQuery{Limit: 10}); total != len(demoForest) {
		t.Fatalf("seed ran twice, total = %d", total)
	}
}

func TestCodeColumnCensus(t *testing.T) {
	d := newTestData(t, false)
	seedScenario(t, d)
	insertMember(t, d, "blank", 40, "own_invite_code", "")

	got, total, err := CodeColumnCensus(context.Background(), d, biz.DefaultCodeFields)
	if err != nil {
		t.Fatalf("CodeColumnCensus: %v", err)
	}
	if total != 6 {
		t.Fatalf("total = %d", total)
	}
	want := []ColumnCount{
		{Column: "own_invite_code", NonEmpty: 2},
		{Column: "my_invite_code", NonEmpty: 0},
		{Column: "referral_code", NonEmpty: 1},
		{Column: "invite_no", NonEmpty: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("census = %+v", got)
	}

	if _, _, err := CodeColumnCensus(context.Background(), d, []string{"own_invite_code; drop"}); err == nil {
		t.Fatalf("bad column should be rejected")
	}
}

func TestMemberRepo_ListSearchNonASCII(t *testing.T) {
	d := newTestData(t, false)
	insertMember(t, d, "h", 0, "name", "Hans Weiß")
	insertMember(t, d, "s", 1, "name", "Hans Weiss")
	insertMember(t, d, "o", 2, "name", "Otto")

	logger := log.NewStdLogger(io.Discard)
	uc := biz.NewMemberAdminUsecase(NewMemberRepo(d, logger), nil, biz.DefaultCodeFields, logger, tracesdk.NewTracerProvider())

	tests := []struct {
		search string
		want   []string
	}{
		{search: "Weiß", want: []string{"h"}},
		{search: "weiß", want: []string{"h"}},
		{search: "Weiss", want: []string{"s"}},
		{search: "HANS", want: []string{"s", "h"}},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			page, err := uc.List(context.Background(), biz.ListFilter{SearchText: tt.search})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if got := memberIDs(page.Rows); !reflect.DeepEqual(got, tt.want) || page.TotalCount != len(tt.want) {
				t.Fatalf("search %q = %v (total %d) want %v", tt.search, got, page.TotalCount, tt.want)
			}
		})
	}
}

func TestMemberRepo_FindInChunked(t *testing.T) {
	old := findInChunkSize
	findInChunkSize = 2
	t.Cleanup(func() { findInChunkSize = old })

	d := newTestData(t, false)
	insertMember(t, d, "a", 10, "used_invite_code", "C1")
	insertMember(t, d, "b", 30, "used_invite_code", "C2")
	insertMember(t, d, "c", 20, "used_invite_code", "C3")
	insertMember(t, d, "d", 30, "used_invite_code", "C4")
	insertMember(t, d, "e", 5, "used_invite_code", "C5")
	insertMember(t, d, "x", 40, "used_invite_code", "OTHER")

	repo := NewMemberRepo(d, log.NewStdLogger(io.Discard))
	order := []biz.OrderBy{{Field: biz.FieldCreatedAt, Desc: true}, {Field: biz.FieldID}}

	// C1 出现在两批里，结果只能有一行
	got, err := repo.FindIn(context.Background(), biz.FieldUsedInviteCode, []any{"C1", "C2", "C3", "C1", "C4", "C5", "missing"}, order)
	if err != nil {
		t.Fatalf("FindIn: %v", err)
	}
	if ids := memberIDs(got); !reflect.DeepEqual(ids, []string{"b", "d", "c", "a", "e"}) {
		t.Fatalf("rows = %v", ids)
	}
}

func TestMemberRepo_ResolveAcrossChunks(t *testing.T) {
	old := findInChunkSize
	findInChunkSize = 3
	t.Cleanup(func() { findInChunkSize = old })

	d := newTestData(t, false)
	insertMember(t, d, "root", 0, "own_invite_code", "R")
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("l1-%02d", i)
		insertMember(t, d, id, 1+i, "used_invite_code", "R", "own_invite_code", "K"+id)
		insertMember(t, d, fmt.Sprintf("l2-%02d", i), 100-i, "used_invite_code", "K"+id)
	}

	logger := log.NewStdLogger(io.Discard)
	uc := biz.NewReferralUsecase(NewMemberRepo(d, logger), biz.DefaultCodeFields, logger, tracesdk.NewTracerProvider())
	tree, err := uc.Resolve(context.Background(), "root")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(tree.Level1) != 10 || len(tree.Level2) != 10 {
		t.Fatalf("level1=%d level2=%d", len(tree.Level1), len(tree.Level2))
	}
	for i, m := range tree.Level2 {
		if want := fmt.Sprintf("l2-%02d", i); m.ID != want {
			t.Fatalf("level2[%d] = %s want %s", i, m.ID, want)
		}
	}
}

func TestData_SQLiteAccessors(t *testing.T) {
	d := newTestData(t, false)
	if d.Dialect() != "sqlite3" {
		t.Fatalf("dialect = %s", d.Dialect())
	}
	if got := d.SQLDB().Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("sqlite pool should be single-writer, max_open = %d", got)
	}
}
