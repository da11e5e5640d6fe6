package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"referralhub/internal/biz"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// 单条 SQL 里 IN 列表的最大长度
var findInChunkSize = 500

type memberRepo struct {
	data *Data
	log  *log.Helper
}

func NewMemberRepo(d *Data, logger log.Logger) *memberRepo {
	return &memberRepo{
		data: d,
		log:  log.NewHelper(log.With(logger, "module", "data.member")),
	}
}

var _ biz.MemberStore = (*memberRepo)(nil)

func (r *memberRepo) query(ctx context.Context, q dialect.ExecQuerier, query string, args []any) ([]*biz.Member, error) {
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

func (r *memberRepo) FindByID(ctx context.Context, id string) (*biz.Member, error) {
	ctx, cancel := r.data.withTimeout(ctx)
	defer cancel()

	b := entsql.Dialect(r.data.dialect)
	query, args := b.Select().
		From(b.Table(membersTable)).
		Where(entsql.EQ(biz.FieldID, id)).
		Limit(1).
		Query()

	rows, err := r.query(ctx, r.data.drv, query, args)
	if err != nil {
		return nil, fmt.Errorf("find member %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, biz.ErrNotFound
	}
	return rows[0], nil
}

func (r *memberRepo) FindEqual(ctx context.Context, field string, value any, order []biz.OrderBy) ([]*biz.Member, error) {
	ctx, cancel := r.data.withTimeout(ctx)
	defer cancel()

	query, args, err := selectByField(r.data.dialect, field, entsql.EQ(field, value), order)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, r.data.drv, query, args)
}

// FindIn 的 IN 列表按 findInChunkSize 分批，避免超过驱动的占位符上限
// （sqlite 32766，mysql 65535）。多批时在同一个只读事务里查完再合并排序。
func (r *memberRepo) FindIn(ctx context.Context, field string, values []any, order []biz.OrderBy) (_ []*biz.Member, err error) {
	if len(values) == 0 {
		return []*biz.Member{}, nil
	}
	ctx, cancel := r.data.withTimeout(ctx)
	defer cancel()

	if len(values) <= findInChunkSize {
		query, args, err := selectByField(r.data.dialect, field, entsql.In(field, values...), order)
		if err != nil {
			return nil, err
		}
		return r.query(ctx, r.data.drv, query, args)
	}

	tx, err := r.data.drv.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var out []*biz.Member
	seen := make(map[string]struct{}, len(values))
	for start := 0; start < len(values); start += findInChunkSize {
		end := min(start+findInChunkSize, len(values))
		query, args, err := selectByField(r.data.dialect, field, entsql.In(field, values[start:end]...), nil)
		if err != nil {
			return nil, err
		}
		rows, err := r.query(ctx, tx, query, args)
		if err != nil {
			return nil, fmt.Errorf("find chunk %d-%d: %w", start, end, err)
		}
		for _, m := range rows {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.log.WithContext(ctx).Debugf("FindIn chunked field=%s values=%d rows=%d", field, len(values), len(out))
	sortMembers(out, order)
	if out == nil {
		out = []*biz.Member{}
	}
	return out, nil
}

// List 并发执行 count 和分页查询，任一失败整体失败
func (r *memberRepo) List(ctx context.Context, q biz.ListQuery) ([]*biz.Member, int, error) {
	countSQL, countArgs, pageSQL, pageArgs, err := buildListQueries(r.data.dialect, q)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := r.data.withTimeout(ctx)
	defer cancel()

	var (
		total int
		rows  []*biz.Member
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cr := &entsql.Rows{}
		if err := r.data.drv.Query(gctx, countSQL, countArgs, cr); err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		defer cr.Close()
		n, err := entsql.ScanInt(cr)
		if err != nil {
			return fmt.Errorf("scan count: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		res, err := r.query(gctx, r.data.drv, pageSQL, pageArgs)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		rows = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// UpdateIn 更新和回读在同一个事务里，回读结果就是本次实际命中的行
func (r *memberRepo) UpdateIn(ctx context.Context, ids []string, m biz.Mutation) (_ []*biz.Member, err error) {
	if len(ids) == 0 {
		return []*biz.Member{}, nil
	}
	ctx, cancel := r.data.withTimeout(ctx)
	defer cancel()

	b := entsql.Dialect(r.data.dialect)
	upd := b.Update(membersTable).Set(biz.FieldUpdatedAt, time.Now().UTC())
	switch {
	case m.Status != nil:
		upd.Set(biz.FieldStatus, string(*m.Status))
	case m.Selected != nil:
		upd.Set(biz.FieldSelected, *m.Selected)
	default:
		return nil, errors.New("empty mutation")
	}
	idArgs := anySlice(ids)
	updSQL, updArgs := upd.Where(entsql.In(biz.FieldID, idArgs...)).Query()

	selSQL, selArgs, err := selectByField(r.data.dialect, biz.FieldID, entsql.In(biz.FieldID, idArgs...), []biz.OrderBy{
		{Field: biz.FieldCreatedAt, Desc: true},
		{Field: biz.FieldID},
	})
	if err != nil {
		return nil, err
	}

	tx, err := r.data.drv.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				r.log.WithContext(ctx).Warnf("UpdateIn rollback failed: %v", rerr)
			}
		}
	}()

	var res sql.Result
	if err = tx.Exec(ctx, updSQL, updArgs, &res); err != nil {
		return nil, fmt.Errorf("update members: %w", err)
	}
	rows, err := r.query(ctx, tx, selSQL, selArgs)
	if err != nil {
		return nil, fmt.Errorf("reload members: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if affected, aerr := res.RowsAffected(); aerr == nil {
		r.log.WithContext(ctx).Debugf("UpdateIn ids=%d affected=%d matched=%d", len(ids), affected, len(rows))
	}
	return rows, nil
}

// sortMembers 在内存里按 order 排序，和 SQL 的 ORDER BY 语义一致
func sortMembers(ms []*biz.Member, order []biz.OrderBy) {
	sort.SliceStable(ms, func(i, j int) bool {
		for _, o := range order {
			c := compareMemberField(ms[i], ms[j], o.Field)
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
}

func compareMemberField(a, b *biz.Member, field string) int {
	switch field {
	case biz.FieldCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case biz.FieldID:
		return strings.Compare(a.ID, b.ID)
	}
	av, _ := biz.ValueString(a.Attrs[field])
	bv, _ := biz.ValueString(b.Attrs[field])
	return strings.Compare(av, bv)
}
