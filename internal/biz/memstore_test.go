package biz

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

var errStoreDown = errors.New("store down")

// memStore 是测试用的内存会员表
type memStore struct {
	mu   sync.Mutex
	rows []map[string]any

	failOn map[string]error // 按方法名注入错误
	calls  map[string]int
	lastQ  ListQuery
}

func newMemStore() *memStore {
	return &memStore{
		failOn: map[string]error{},
		calls:  map[string]int{},
	}
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// put 插入一行；minute 决定 created_at，越大越新
func (s *memStore) put(id string, minute int, kv ...any) {
	row := map[string]any{
		FieldID:        id,
		FieldStatus:    string(StatusPending),
		FieldSelected:  false,
		FieldCreatedAt: baseTime.Add(time.Duration(minute) * time.Minute),
	}
	for i := 0; i+1 < len(kv); i += 2 {
		row[kv[i].(string)] = kv[i+1]
	}
	s.mu.Lock()
	s.rows = append(s.rows, row)
	s.mu.Unlock()
}

func (s *memStore) hit(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.failOn[op]
}

func (s *memStore) FindByID(ctx context.Context, id string) (*Member, error) {
	if err := s.hit("FindByID"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r[FieldID] == id {
			return NewMember(r), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) FindEqual(ctx context.Context, field string, value any, order []OrderBy) ([]*Member, error) {
	if err := s.hit("FindEqual"); err != nil {
		return nil, err
	}
	want, _ := ValueString(value)
	return s.filter(func(r map[string]any) bool {
		got, ok := ValueString(r[field])
		return ok && got == want
	}, order), nil
}

func (s *memStore) FindIn(ctx context.Context, field string, values []any, order []OrderBy) ([]*Member, error) {
	if err := s.hit("FindIn"); err != nil {
		return nil, err
	}
	set := map[string]struct{}{}
	for _, v := range values {
		if str, ok := ValueString(v); ok {
			set[str] = struct{}{}
		}
	}
	return s.filter(func(r map[string]any) bool {
		got, ok := ValueString(r[field])
		if !ok {
			return false
		}
		_, in := set[got]
		return in
	}, order), nil
}

func (s *memStore) List(ctx context.Context, q ListQuery) ([]*Member, int, error) {
	if err := s.hit("List"); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	s.lastQ = q
	s.mu.Unlock()

	statuses := map[Status]struct{}{}
	for _, st := range q.Statuses {
		statuses[st] = struct{}{}
	}
	all := s.filter(func(r map[string]any) bool {
		m := NewMember(r)
		if len(statuses) > 0 {
			if _, ok := statuses[m.Status]; !ok {
				return false
			}
		}
		if q.Selected != nil && m.Selected != *q.Selected {
			return false
		}
		if q.Search == "" {
			return true
		}
		for _, f := range q.SearchFields {
			if v, ok := ValueString(r[f]); ok && strings.Contains(strings.ToLower(v), q.Search) {
				return true
			}
		}
		return false
	}, q.Sort)

	total := len(all)
	if q.Offset >= total {
		return []*Member{}, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return all[q.Offset:end], total, nil
}

func (s *memStore) UpdateIn(ctx context.Context, ids []string, m Mutation) ([]*Member, error) {
	if err := s.hit("UpdateIn"); err != nil {
		return nil, err
	}
	set := map[string]struct{}{}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.mu.Lock()
	var out []*Member
	for _, r := range s.rows {
		if _, ok := set[r[FieldID].(string)]; !ok {
			continue
		}
		if m.Status != nil {
			r[FieldStatus] = string(*m.Status)
		}
		if m.Selected != nil {
			r[FieldSelected] = *m.Selected
		}
		r[FieldUpdatedAt] = baseTime.Add(24 * time.Hour)
		out = append(out, NewMember(r))
	}
	s.mu.Unlock()
	return out, nil
}

func (s *memStore) filter(keep func(map[string]any) bool, order []OrderBy) []*Member {
	s.mu.Lock()
	var out []*Member
	for _, r := range s.rows {
		if keep(r) {
			out = append(out, NewMember(r))
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range order {
			c := compareField(out[i], out[j], o.Field)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if out == nil {
		out = []*Member{}
	}
	return out
}

func compareField(a, b *Member, field string) int {
	switch field {
	case FieldCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case FieldID:
		return strings.Compare(a.ID, b.ID)
	}
	av, _ := ValueString(a.Attrs[field])
	bv, _ := ValueString(b.Attrs[field])
	return strings.Compare(av, bv)
}

func (s *memStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func testLogger() log.Logger {
	return log.NewStdLogger(io.Discard)
}

func testTP() *tracesdk.TracerProvider {
	return tracesdk.NewTracerProvider()
}

func ids(ms []*Member) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}
