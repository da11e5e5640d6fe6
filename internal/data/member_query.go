package data

import (
	"fmt"

	"referralhub/internal/biz"

	entsql "entgo.io/ent/dialect/sql"
)

// validColumn 列名来自代码常量和配置，这里再挡一次，避免拼进 SQL 的标识符不合法
func validColumn(name string) error {
	if name == "" || len(name) > 64 {
		return fmt.Errorf("invalid column %q", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("invalid column %q", name)
		}
	}
	return nil
}

func orderTerms(order []biz.OrderBy) ([]string, error) {
	terms := make([]string, 0, len(order))
	for _, o := range order {
		if err := validColumn(o.Field); err != nil {
			return nil, err
		}
		if o.Desc {
			terms = append(terms, entsql.Desc(o.Field))
		} else {
			terms = append(terms, entsql.Asc(o.Field))
		}
	}
	return terms, nil
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// listPredicate 组装列表的 WHERE 条件，各条件之间是 AND。
// Predicate 内部带状态，count 和分页查询要各自调用一次。
func listPredicate(q biz.ListQuery) (*entsql.Predicate, error) {
	var preds []*entsql.Predicate

	if q.Search != "" && len(q.SearchFields) > 0 {
		ors := make([]*entsql.Predicate, 0, len(q.SearchFields))
		for _, f := range q.SearchFields {
			if err := validColumn(f); err != nil {
				return nil, err
			}
			if isNumericColumn(f) {
				// mysql 数值列不能加 COLLATE，LIKE 会隐式转成字符串
				ors = append(ors, entsql.Contains(f, q.Search))
			} else {
				ors = append(ors, entsql.ContainsFold(f, q.Search))
			}
		}
		preds = append(preds, entsql.Or(ors...))
	}
	if len(q.Statuses) > 0 {
		vals := make([]any, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			vals = append(vals, string(s))
		}
		preds = append(preds, entsql.In(biz.FieldStatus, vals...))
	}
	if q.Selected != nil {
		preds = append(preds, entsql.EQ(biz.FieldSelected, *q.Selected))
	}

	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	default:
		return entsql.And(preds...), nil
	}
}

// buildListQueries 返回 count 和分页两条 SQL
func buildListQueries(dialectName string, q biz.ListQuery) (countSQL string, countArgs []any, pageSQL string, pageArgs []any, err error) {
	b := entsql.Dialect(dialectName)
	countSel := b.Select(entsql.Count("*")).From(b.Table(membersTable))
	p, err := listPredicate(q)
	if err != nil {
		return "", nil, "", nil, err
	}
	if p != nil {
		countSel.Where(p)
	}
	countSQL, countArgs = countSel.Query()

	terms, err := orderTerms(q.Sort)
	if err != nil {
		return "", nil, "", nil, err
	}
	pageSel := b.Select().
		From(b.Table(membersTable)).
		OrderBy(terms...).
		Limit(q.Limit).
		Offset(q.Offset)
	p, err = listPredicate(q)
	if err != nil {
		return "", nil, "", nil, err
	}
	if p != nil {
		pageSel.Where(p)
	}
	pageSQL, pageArgs = pageSel.Query()
	return countSQL, countArgs, pageSQL, pageArgs, nil
}

func selectByField(dialectName, field string, pred *entsql.Predicate, order []biz.OrderBy) (string, []any, error) {
	if err := validColumn(field); err != nil {
		return "", nil, err
	}
	terms, err := orderTerms(order)
	if err != nil {
		return "", nil, err
	}
	b := entsql.Dialect(dialectName)
	sel := b.Select().
		From(b.Table(membersTable)).
		Where(pred)
	if len(terms) > 0 {
		sel.OrderBy(terms...)
	}
	q, args := sel.Query()
	return q, args, nil
}
