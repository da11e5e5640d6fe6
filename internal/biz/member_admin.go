package biz

import (
	"context"
	"errors"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultPerPage = 50
	MinPerPage     = 10
	MaxPerPage     = 200
	// 页码上限，保证 offset 不会溢出
	MaxPage = 1_000_000
	// 单次批量最多处理的 id 数，超过直接拒绝，避免 IN 列表过长
	MaxBatchSize = 500
)

// 列表允许排序的列；其它值一律退回 created_at
var sortableFields = map[string]struct{}{
	FieldCreatedAt:      {},
	FieldUpdatedAt:      {},
	FieldID:             {},
	FieldName:           {},
	FieldEmail:          {},
	FieldStatus:         {},
	FieldSelected:       {},
	"own_invite_code":   {},
	FieldUsedInviteCode: {},
}

// ListFilter 是管理后台列表的原始请求参数，零值即默认查询。
type ListFilter struct {
	SearchText    string
	Statuses      []Status
	Selected      *bool
	Page          int
	PerPage       int
	SortField     string
	SortDirection string // asc | desc
}

type MemberPage struct {
	Rows       []*Member
	TotalCount int
	Page       int
	PerPage    int
}

type BatchResult struct {
	UpdatedCount int
	Rows         []*Member
}

// BatchNotifier 在批量修改成功后接收摘要，失败不影响批量结果。
type BatchNotifier interface {
	NotifyBatch(ctx context.Context, ids []string, m Mutation, result *BatchResult)
}

type MemberAdminUsecase struct {
	store    MemberStore
	notifier BatchNotifier
	fields   CodeFields
	log      *log.Helper
	tracer   trace.Tracer
}

func NewMemberAdminUsecase(store MemberStore, notifier BatchNotifier, fields CodeFields, logger log.Logger, tp *tracesdk.TracerProvider) *MemberAdminUsecase {
	var tr trace.Tracer
	if tp != nil {
		tr = tp.Tracer("biz.memberadmin")
	} else {
		tr = otel.Tracer("biz.memberadmin")
	}
	if len(fields) == 0 {
		fields = DefaultCodeFields
	}
	return &MemberAdminUsecase{
		store:    store,
		notifier: notifier,
		fields:   fields,
		log:      log.NewHelper(log.With(logger, "module", "biz.memberadmin")),
		tracer:   tr,
	}
}

// List 按过滤条件分页查询会员。分页参数越界时静默修正而不是报错。
func (uc *MemberAdminUsecase) List(ctx context.Context, f ListFilter) (*MemberPage, error) {
	page, perPage := normalizePaging(f.Page, f.PerPage)
	q := ListQuery{
		Search:   lowerSearch(f.SearchText),
		Statuses: dedupStatuses(f.Statuses),
		Selected: f.Selected,
		Sort:     normalizeSort(f.SortField, f.SortDirection),
		Offset:   (page - 1) * perPage,
		Limit:    perPage,
	}
	if q.Search != "" {
		q.SearchFields = uc.searchFields()
	}

	ctx, span := uc.tracer.Start(ctx, "memberadmin.list",
		trace.WithAttributes(
			attribute.Int("list.page", page),
			attribute.Int("list.per_page", perPage),
			attribute.Bool("list.has_search", q.Search != ""),
			attribute.Int("list.statuses", len(q.Statuses)),
		),
	)
	defer span.End()

	l := uc.log.WithContext(ctx)
	l.Debugf("List start page=%d per_page=%d search=%q statuses=%v sort=%v", page, perPage, q.Search, q.Statuses, q.Sort)

	rows, total, err := uc.store.List(ctx, q)
	if err != nil {
		err = storeError("list members", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store.List failed")
		l.Errorf("List failed page=%d per_page=%d err=%v", page, perPage, err)
		return nil, err
	}
	if rows == nil {
		rows = []*Member{}
	}

	span.SetAttributes(attribute.Int("list.total", total))
	span.SetStatus(codes.Ok, "OK")
	l.Infof("List success page=%d per_page=%d rows=%d total=%d", page, perPage, len(rows), total)

	return &MemberPage{
		Rows:       rows,
		TotalCount: total,
		Page:       page,
		PerPage:    perPage,
	}, nil
}

// ApplyBatch 把同一个修改应用到一组会员上，不存在的 id 直接跳过。
func (uc *MemberAdminUsecase) ApplyBatch(ctx context.Context, ids []string, m Mutation) (*BatchResult, error) {
	ctx, span := uc.tracer.Start(ctx, "memberadmin.apply_batch",
		trace.WithAttributes(attribute.Int("batch.requested", len(ids))),
	)
	defer span.End()

	l := uc.log.WithContext(ctx)

	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		span.SetStatus(codes.Error, "invalid argument")
		l.Warn("ApplyBatch empty id set")
		return nil, invalidArgument("ids must not be empty")
	}
	if len(ids) > MaxBatchSize {
		span.SetStatus(codes.Error, "invalid argument")
		l.Warnf("ApplyBatch too many ids count=%d", len(ids))
		return nil, invalidArgument("at most %d ids per batch, got %d", MaxBatchSize, len(ids))
	}
	m, err := validateMutation(m)
	if err != nil {
		span.SetStatus(codes.Error, "invalid argument")
		l.Warnf("ApplyBatch invalid mutation err=%v", err)
		return nil, err
	}

	span.SetAttributes(attribute.String("batch.target", describeMutation(m)))
	l.Infof("ApplyBatch start ids=%d target=%s", len(ids), describeMutation(m))

	rows, err := uc.store.UpdateIn(ctx, ids, m)
	if err != nil {
		err = storeError("update members", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store.UpdateIn failed")
		l.Errorf("ApplyBatch failed ids=%d target=%s err=%v", len(ids), describeMutation(m), err)
		return nil, err
	}
	if rows == nil {
		rows = []*Member{}
	}

	res := &BatchResult{UpdatedCount: len(rows), Rows: rows}
	span.SetAttributes(attribute.Int("batch.updated", res.UpdatedCount))
	span.SetStatus(codes.Ok, "OK")
	l.Infof("ApplyBatch success ids=%d updated=%d target=%s", len(ids), res.UpdatedCount, describeMutation(m))

	if uc.notifier != nil && res.UpdatedCount > 0 {
		uc.notifier.NotifyBatch(ctx, ids, m, res)
	}
	return res, nil
}

// UpdateOne 是单条记录的修改，id 不存在时返回 NotFound。
func (uc *MemberAdminUsecase) UpdateOne(ctx context.Context, id string, m Mutation) (*Member, error) {
	id = strings.TrimSpace(id)

	ctx, span := uc.tracer.Start(ctx, "memberadmin.update_one",
		trace.WithAttributes(attribute.String("member.id", id)),
	)
	defer span.End()

	l := uc.log.WithContext(ctx)

	if id == "" {
		span.SetStatus(codes.Error, "invalid argument")
		return nil, invalidArgument("member id is required")
	}
	m, err := validateMutation(m)
	if err != nil {
		span.SetStatus(codes.Error, "invalid argument")
		l.Warnf("UpdateOne invalid mutation member_id=%s err=%v", id, err)
		return nil, err
	}

	rows, err := uc.store.UpdateIn(ctx, []string{id}, m)
	if err != nil {
		err = storeError("update member", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store.UpdateIn failed")
		l.Errorf("UpdateOne failed member_id=%s err=%v", id, err)
		return nil, err
	}
	if len(rows) == 0 {
		span.SetStatus(codes.Error, "not found")
		l.Infof("UpdateOne member not found member_id=%s", id)
		return nil, notFound("member %s", id)
	}

	span.SetStatus(codes.Ok, "OK")
	l.Infof("UpdateOne success member_id=%s target=%s", id, describeMutation(m))
	return rows[0], nil
}

func (uc *MemberAdminUsecase) searchFields() []string {
	out := make([]string, 0, 3+len(uc.fields))
	out = append(out, FieldName, FieldEmail, FieldPhone)
	out = append(out, uc.fields...)
	return out
}

func normalizePaging(page, perPage int) (int, int) {
	switch {
	case page < 1:
		page = 1
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case perPage == 0:
		perPage = DefaultPerPage
	case perPage < MinPerPage:
		perPage = MinPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return page, perPage
}

func normalizeSort(field, direction string) []OrderBy {
	field = strings.ToLower(strings.TrimSpace(field))
	if _, ok := sortableFields[field]; !ok {
		field = FieldCreatedAt
	}
	desc := !strings.EqualFold(strings.TrimSpace(direction), "asc")

	sort := []OrderBy{{Field: field, Desc: desc}}
	if field != FieldID {
		sort = append(sort, OrderBy{Field: FieldID})
	}
	return sort
}

// lowerSearch 只做小写转换，不做 Fold：Fold 会改写字符（ß -> ss），
// 而存储层两边比较的是 LOWER(col)。
func lowerSearch(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Lower(language.Und).String(s)
}

func dedupStatuses(in []Status) []Status {
	if len(in) == 0 {
		return nil
	}
	out := make([]Status, 0, len(in))
	seen := make(map[Status]struct{}, len(in))
	for _, s := range in {
		s = Status(strings.TrimSpace(string(s)))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func normalizeIDs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var errMutationTarget = errors.New("exactly one of status or selected must be set")

// validateMutation 返回规范化后的副本，不改调用方的指针
func validateMutation(m Mutation) (Mutation, error) {
	switch {
	case m.Status == nil && m.Selected == nil, m.Status != nil && m.Selected != nil:
		return Mutation{}, invalidArgument("%v", errMutationTarget)
	case m.Status != nil:
		s := Status(strings.TrimSpace(string(*m.Status)))
		if s == "" {
			return Mutation{}, invalidArgument("status must not be empty")
		}
		if !s.Known() {
			return Mutation{}, invalidArgument("unknown status %q", s)
		}
		m.Status = &s
	}
	return m, nil
}

func describeMutation(m Mutation) string {
	switch {
	case m.Status != nil:
		return "status=" + string(*m.Status)
	case m.Selected != nil:
		if *m.Selected {
			return "selected=true"
		}
		return "selected=false"
	}
	return "none"
}
