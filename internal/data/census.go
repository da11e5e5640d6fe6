package data

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// ColumnCount 是某一列非空值的行数
type ColumnCount struct {
	Column   string
	NonEmpty int
}

// CodeColumnCensus 统计各个邀请码别名列里有值的行数，用来判断旧列还能不能下线。
func CodeColumnCensus(ctx context.Context, d *Data, columns []string) ([]ColumnCount, int, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	b := entsql.Dialect(d.dialect)
	total, err := d.countWhere(ctx, b.Select(entsql.Count("*")).From(b.Table(membersTable)))
	if err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}

	out := make([]ColumnCount, 0, len(columns))
	for _, col := range columns {
		if err := validColumn(col); err != nil {
			return nil, 0, err
		}
		sel := b.Select(entsql.Count("*")).From(b.Table(membersTable))
		if isNumericColumn(col) {
			sel.Where(entsql.NotNull(col))
		} else {
			sel.Where(entsql.And(entsql.NotNull(col), entsql.NEQ(col, "")))
		}
		n, err := d.countWhere(ctx, sel)
		if err != nil {
			return nil, 0, fmt.Errorf("count %s: %w", col, err)
		}
		out = append(out, ColumnCount{Column: col, NonEmpty: n})
	}
	return out, total, nil
}

func (d *Data) countWhere(ctx context.Context, sel *entsql.Selector) (int, error) {
	query, args := sel.Query()
	rows := &entsql.Rows{}
	if err := d.drv.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	return entsql.ScanInt(rows)
}
