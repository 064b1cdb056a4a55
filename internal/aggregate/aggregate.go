// Package aggregate computes counts, aggregates and grouped aggregates over
// the rows selected by the read pipeline.
package aggregate

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/loader"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

type Aggregator struct {
	loader *loader.Loader
}

func New(l *loader.Loader) *Aggregator {
	return &Aggregator{loader: l}
}

// Count returns how many rows the where and window select.
func (a *Aggregator) Count(ctx context.Context, exec driver.Executor, entity *schema.Entity, args query.CountArgs) (int64, error) {
	rows, err := a.loader.Rows(ctx, exec, entity, args.Where, loader.Window{
		OrderBy: args.OrderBy,
		Cursor:  args.Cursor,
		Take:    args.Take,
		Skip:    args.Skip,
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Aggregate computes the requested aggregates over the selected rows.
func (a *Aggregator) Aggregate(ctx context.Context, exec driver.Executor, entity *schema.Entity, args query.AggregateArgs) (*query.AggregateResult, error) {
	sel := selectors{Count: args.Count, Avg: args.Avg, Sum: args.Sum, Min: args.Min, Max: args.Max}
	if err := sel.validate(entity); err != nil {
		return nil, err
	}
	rows, err := a.loader.Rows(ctx, exec, entity, args.Where, loader.Window{
		OrderBy: args.OrderBy,
		Cursor:  args.Cursor,
		Take:    args.Take,
		Skip:    args.Skip,
	})
	if err != nil {
		return nil, err
	}
	res := &query.AggregateResult{}
	if len(sel.Count) > 0 {
		res.Count = map[string]int64{}
		for _, name := range sel.Count {
			res.Count[name] = countOf(rows, name)
		}
	}
	res.Avg = sel.compute(entity, sel.Avg, rows, avgOf)
	res.Sum = sel.compute(entity, sel.Sum, rows, sumOf)
	res.Min = sel.compute(entity, sel.Min, rows, minOf)
	res.Max = sel.compute(entity, sel.Max, rows, maxOf)
	return res, nil
}

// selectors lists the fields each aggregate function applies to.
type selectors struct {
	Count []string
	Avg   []string
	Sum   []string
	Min   []string
	Max   []string
}

func (s selectors) validate(entity *schema.Entity) error {
	for _, name := range s.Count {
		if name == query.CountAll {
			continue
		}
		if _, ok := entity.Field(name); !ok {
			return schema.Invalid(entity.Name, name, "unknown _count field")
		}
	}
	for fn, names := range map[query.AggFunc][]string{
		query.AggAvg: s.Avg,
		query.AggSum: s.Sum,
		query.AggMin: s.Min,
		query.AggMax: s.Max,
	} {
		for _, name := range names {
			if _, err := numericField(entity, fn, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func numericField(entity *schema.Entity, fn query.AggFunc, name string) (*schema.Field, error) {
	f, ok := entity.Field(name)
	if !ok {
		return nil, schema.Invalid(entity.Name, name, "unknown %s field", fn)
	}
	if !f.Type.Numeric() {
		return nil, schema.Invalid(entity.Name, name, "%s needs a numeric field, got %s", fn, f.Type)
	}
	return f, nil
}

type reducer func(f *schema.Field, rows []driver.Row) any

func (s selectors) compute(entity *schema.Entity, names []string, rows []driver.Row, fn reducer) map[string]any {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		f, _ := entity.Field(name)
		out[name] = fn(f, rows)
	}
	return out
}

func countOf(rows []driver.Row, name string) int64 {
	if name == query.CountAll {
		return int64(len(rows))
	}
	var n int64
	for _, r := range rows {
		if r[name] != nil {
			n++
		}
	}
	return n
}

// decimalsOf returns the non-null values of the field.
func decimalsOf(f *schema.Field, rows []driver.Row) []decimal.Decimal {
	var out []decimal.Decimal
	for _, r := range rows {
		switch v := r[f.Name].(type) {
		case int64:
			out = append(out, decimal.NewFromInt(v))
		case float64:
			out = append(out, decimal.NewFromFloat(v))
		}
	}
	return out
}

func sumOf(f *schema.Field, rows []driver.Row) any {
	values := decimalsOf(f, rows)
	if len(values) == 0 {
		return nil
	}
	total := decimal.Sum(values[0], values[1:]...)
	if f.Type == schema.Int {
		return total.IntPart()
	}
	return total.InexactFloat64()
}

func avgOf(f *schema.Field, rows []driver.Row) any {
	values := decimalsOf(f, rows)
	if len(values) == 0 {
		return nil
	}
	return decimal.Avg(values[0], values[1:]...).InexactFloat64()
}

func minOf(f *schema.Field, rows []driver.Row) any {
	return extreme(f, rows, -1)
}

func maxOf(f *schema.Field, rows []driver.Row) any {
	return extreme(f, rows, 1)
}

func extreme(f *schema.Field, rows []driver.Row, sign int) any {
	var best any
	for _, r := range rows {
		v := r[f.Name]
		if v == nil {
			continue
		}
		if best == nil || schema.Compare(v, best)*sign > 0 {
			best = v
		}
	}
	return best
}
