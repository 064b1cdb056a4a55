// Package loader runs the read pipeline: scan with pushed-down equalities,
// residual filtering, ordering, distinct, cursor windows, relation includes,
// relation counts and projection into records.
package loader

import (
	"context"
	"sort"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/filter"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

type Loader struct {
	reg *schema.Registry
}

func New(reg *schema.Registry) *Loader {
	return &Loader{reg: reg}
}

func (l *Loader) Registry() *schema.Registry {
	return l.reg
}

// FindUniqueRow returns the row identified by where, or nil.
func (l *Loader) FindUniqueRow(ctx context.Context, exec driver.Executor, entity *schema.Entity, where query.UniqueWhere) (driver.Row, error) {
	key, err := CoerceUnique(entity, where)
	if err != nil {
		return nil, err
	}
	return l.uniqueRow(ctx, exec, entity, key)
}

func (l *Loader) uniqueRow(ctx context.Context, exec driver.Executor, entity *schema.Entity, key query.UniqueWhere) (driver.Row, error) {
	conds := make([]driver.Cond, 0, len(key))
	for _, k := range key.Keys() {
		conds = append(conds, driver.Cond{Field: k, Values: []any{key[k]}})
	}
	rows, err := exec.Scan(ctx, driver.Scan{Entity: entity.Name, Conds: conds})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if matchesUnique(r, key) {
			return r, nil
		}
	}
	return nil, nil
}

// FindRows returns every row matching where, ordered by id.
func (l *Loader) FindRows(ctx context.Context, exec driver.Executor, entity *schema.Entity, where query.Filter) ([]driver.Row, error) {
	return l.Rows(ctx, exec, entity, where, Window{})
}

// Rows returns the filtered rows inside the window.
func (l *Loader) Rows(ctx context.Context, exec driver.Executor, entity *schema.Entity, where query.Filter, w Window) ([]driver.Row, error) {
	pred, err := filter.Compile(l.reg, entity, where)
	if err != nil {
		return nil, err
	}
	w, err = w.validate(entity)
	if err != nil {
		return nil, err
	}
	return l.rows(ctx, exec, entity, pred, w)
}

func (l *Loader) rows(ctx context.Context, exec driver.Executor, entity *schema.Entity, pred *filter.Predicate, w Window) ([]driver.Row, error) {
	rows, err := exec.Scan(ctx, driver.Scan{Entity: entity.Name, Conds: pred.Pushdown()})
	if err != nil {
		return nil, err
	}
	rows, err = pred.Filter(ctx, rows, l.Fetcher(exec))
	if err != nil {
		return nil, err
	}
	if w.empty() {
		return rows, nil
	}
	return applyWindow(rows, w), nil
}

// FindMany validates the whole request, then loads and projects the page.
func (l *Loader) FindMany(ctx context.Context, exec driver.Executor, entity *schema.Entity, args query.FindArgs) ([]query.Record, error) {
	pred, err := filter.Compile(l.reg, entity, args.Where)
	if err != nil {
		return nil, err
	}
	w, err := Window{
		OrderBy:  args.OrderBy,
		Cursor:   args.Cursor,
		Take:     args.Take,
		Skip:     args.Skip,
		Distinct: args.Distinct,
	}.validate(entity)
	if err != nil {
		return nil, err
	}
	plan, err := l.plan(entity, args.Select)
	if err != nil {
		return nil, err
	}
	rows, err := l.rows(ctx, exec, entity, pred, w)
	if err != nil {
		return nil, err
	}
	return l.project(ctx, exec, plan, rows)
}

// Project shapes rows of entity according to sel.
func (l *Loader) Project(ctx context.Context, exec driver.Executor, entity *schema.Entity, rows []driver.Row, sel *query.Selection) ([]query.Record, error) {
	plan, err := l.plan(entity, sel)
	if err != nil {
		return nil, err
	}
	return l.project(ctx, exec, plan, rows)
}

// ValidateSelection reports selection errors without loading anything.
func (l *Loader) ValidateSelection(entity *schema.Entity, sel *query.Selection) error {
	_, err := l.plan(entity, sel)
	return err
}

type selectionPlan struct {
	entity   *schema.Entity
	fields   []*schema.Field
	includes []includePlan
	counts   []*schema.Relation
}

type includePlan struct {
	rel    *schema.Relation
	pred   *filter.Predicate
	window Window
	sub    *selectionPlan
}

func (l *Loader) plan(entity *schema.Entity, sel *query.Selection) (*selectionPlan, error) {
	p := &selectionPlan{entity: entity}
	if sel == nil || len(sel.Fields) == 0 {
		p.fields = entity.Fields()
	} else {
		for _, name := range sel.Fields {
			f, ok := entity.Field(name)
			if !ok {
				if _, isRel := entity.Relation(name); isRel {
					return nil, schema.Invalid(entity.Name, name, "relations are selected through include")
				}
				return nil, schema.Invalid(entity.Name, name, "unknown field")
			}
			p.fields = append(p.fields, f)
		}
	}
	if sel == nil {
		return p, nil
	}

	names := make([]string, 0, len(sel.Include))
	for name := range sel.Include {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rel, ok := entity.Relation(name)
		if !ok {
			return nil, schema.Invalid(entity.Name, name, "unknown relation")
		}
		target, _ := l.reg.Entity(rel.Target)
		nested := sel.Include[name]
		if nested == nil {
			nested = &query.Nested{}
		}
		w := Window{
			OrderBy:  nested.OrderBy,
			Cursor:   nested.Cursor,
			Take:     nested.Take,
			Skip:     nested.Skip,
			Distinct: nested.Distinct,
		}
		if !rel.IsList() && (nested.Where != nil || !w.empty()) {
			return nil, schema.Invalid(entity.Name, name, "to-one includes only accept select")
		}
		pred, err := filter.Compile(l.reg, target, nested.Where)
		if err != nil {
			return nil, err
		}
		w, err = w.validate(target)
		if err != nil {
			return nil, err
		}
		sub, err := l.plan(target, nested.Select)
		if err != nil {
			return nil, err
		}
		p.includes = append(p.includes, includePlan{rel: rel, pred: pred, window: w, sub: sub})
	}

	for _, name := range sel.Count {
		rel, ok := entity.Relation(name)
		if !ok {
			return nil, schema.Invalid(entity.Name, name, "unknown relation")
		}
		if !rel.IsList() {
			return nil, schema.Invalid(entity.Name, name, "_count needs a list relation")
		}
		p.counts = append(p.counts, rel)
	}
	return p, nil
}

func (l *Loader) project(ctx context.Context, exec driver.Executor, p *selectionPlan, rows []driver.Row) ([]query.Record, error) {
	out := make([]query.Record, len(rows))
	for i, r := range rows {
		rec := make(query.Record, len(p.fields))
		for _, f := range p.fields {
			rec[f.Name] = f.Output(r[f.Name])
		}
		out[i] = rec
	}
	if len(rows) == 0 {
		return out, nil
	}
	fetch := l.Fetcher(exec)

	for _, inc := range p.includes {
		related, err := fetch.Related(ctx, inc.rel, rows)
		if err != nil {
			return nil, err
		}
		if !inc.rel.IsList() {
			if err := l.attachOne(ctx, exec, inc, rows, related, out); err != nil {
				return nil, err
			}
			continue
		}
		if err := l.attachMany(ctx, exec, inc, rows, related, out); err != nil {
			return nil, err
		}
	}

	for _, rel := range p.counts {
		related, err := fetch.Related(ctx, rel, rows)
		if err != nil {
			return nil, err
		}
		for i, r := range rows {
			counts, _ := out[i]["_count"].(query.Record)
			if counts == nil {
				counts = query.Record{}
				out[i]["_count"] = counts
			}
			counts[rel.Name] = int64(len(related[r.ID()]))
		}
	}
	return out, nil
}

func (l *Loader) attachOne(ctx context.Context, exec driver.Executor, inc includePlan, rows []driver.Row, related map[int64][]driver.Row, out []query.Record) error {
	var children []driver.Row
	owners := make([]int, 0, len(rows))
	for i, r := range rows {
		if list := related[r.ID()]; len(list) > 0 {
			children = append(children, list[0])
			owners = append(owners, i)
		}
		out[i][inc.rel.Name] = nil
	}
	projected, err := l.project(ctx, exec, inc.sub, children)
	if err != nil {
		return err
	}
	for j, i := range owners {
		out[i][inc.rel.Name] = projected[j]
	}
	return nil
}

func (l *Loader) attachMany(ctx context.Context, exec driver.Executor, inc includePlan, rows []driver.Row, related map[int64][]driver.Row, out []query.Record) error {
	var union []driver.Row
	seen := map[int64]bool{}
	for _, r := range rows {
		for _, child := range related[r.ID()] {
			if !seen[child.ID()] {
				seen[child.ID()] = true
				union = append(union, child)
			}
		}
	}
	truth, err := inc.pred.Evaluate(ctx, union, l.Fetcher(exec))
	if err != nil {
		return err
	}
	keep := make(map[int64]bool, len(union))
	for i, child := range union {
		keep[child.ID()] = truth[i] == filter.True
	}

	var flat []driver.Row
	bounds := make([][2]int, len(rows))
	for i, r := range rows {
		var list []driver.Row
		for _, child := range related[r.ID()] {
			if keep[child.ID()] {
				list = append(list, child)
			}
		}
		list = applyWindow(list, inc.window)
		bounds[i] = [2]int{len(flat), len(flat) + len(list)}
		flat = append(flat, list...)
	}
	projected, err := l.project(ctx, exec, inc.sub, flat)
	if err != nil {
		return err
	}
	for i := range rows {
		b := bounds[i]
		out[i][inc.rel.Name] = append([]query.Record{}, projected[b[0]:b[1]]...)
	}
	return nil
}
