// Package filter compiles where trees against the schema and evaluates them
// over batches of rows. Compilation rejects invalid requests before any I/O.
// Evaluation is set based: relation filters ask the caller for the related
// rows of a whole batch at once.
package filter

import (
	"context"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

// RelatedFetcher resolves a relation for a batch of parent rows, returning
// the related rows keyed by parent id.
type RelatedFetcher interface {
	Related(ctx context.Context, rel *schema.Relation, parents []driver.Row) (map[int64][]driver.Row, error)
}

// Predicate is a compiled where tree bound to one entity.
type Predicate struct {
	entity *schema.Entity
	root   node
	push   []driver.Cond
}

type node interface {
	eval(ctx context.Context, rows []driver.Row, fetch RelatedFetcher) ([]Tri, error)
}

// Compile validates where against entity. A nil where matches every row.
func Compile(reg *schema.Registry, entity *schema.Entity, where query.Filter) (*Predicate, error) {
	c := compiler{reg: reg}
	root, err := c.compile(entity, where)
	if err != nil {
		return nil, err
	}
	return &Predicate{entity: entity, root: root, push: pushdown(root)}, nil
}

// Pushdown returns the equality and membership conditions every match must
// satisfy, for the driver to narrow its scan.
func (p *Predicate) Pushdown() []driver.Cond {
	return p.push
}

// Filter keeps the rows for which the predicate is true, in order.
func (p *Predicate) Filter(ctx context.Context, rows []driver.Row, fetch RelatedFetcher) ([]driver.Row, error) {
	if p == nil || p.root == nil || len(rows) == 0 {
		return rows, nil
	}
	results, err := p.root.eval(ctx, rows, fetch)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Row, 0, len(rows))
	for i, row := range rows {
		if results[i] == True {
			out = append(out, row)
		}
	}
	return out, nil
}

// Evaluate returns the truth value of the predicate for each row.
func (p *Predicate) Evaluate(ctx context.Context, rows []driver.Row, fetch RelatedFetcher) ([]Tri, error) {
	if p == nil || p.root == nil {
		out := make([]Tri, len(rows))
		for i := range out {
			out[i] = True
		}
		return out, nil
	}
	return p.root.eval(ctx, rows, fetch)
}

type compiler struct {
	reg *schema.Registry
}

func (c compiler) compile(entity *schema.Entity, f query.Filter) (node, error) {
	switch t := f.(type) {
	case nil:
		return nil, nil
	case query.AndFilter:
		children, err := c.compileAll(entity, t.Filters)
		if err != nil {
			return nil, err
		}
		return andNode{children: children}, nil
	case query.OrFilter:
		children, err := c.compileAll(entity, t.Filters)
		if err != nil {
			return nil, err
		}
		return orNode{children: children}, nil
	case query.NotFilter:
		children, err := c.compileAll(entity, t.Filters)
		if err != nil {
			return nil, err
		}
		return notNode{children: children}, nil
	case query.Cond:
		field, ok := entity.Field(t.Field)
		if !ok {
			if _, isRel := entity.Relation(t.Field); isRel {
				return nil, schema.Invalid(entity.Name, t.Field, "relation used as a scalar condition")
			}
			return nil, schema.Invalid(entity.Name, t.Field, "unknown field")
		}
		cond, err := NewCondition(entity.Name, field, t)
		if err != nil {
			return nil, err
		}
		return condNode{cond: cond}, nil
	case query.RelationFilter:
		return c.compileRelation(entity, t)
	case query.AggregateCond:
		return nil, schema.Invalid(entity.Name, t.Cond.Field, "aggregate conditions are only allowed in having")
	}
	return nil, schema.Invalid(entity.Name, "", "unsupported filter %T", f)
}

func (c compiler) compileAll(entity *schema.Entity, filters []query.Filter) ([]node, error) {
	out := make([]node, 0, len(filters))
	for _, f := range filters {
		n, err := c.compile(entity, f)
		if err != nil {
			return nil, err
		}
		if n == nil {
			n = constNode{value: True}
		}
		out = append(out, n)
	}
	return out, nil
}

func (c compiler) compileRelation(entity *schema.Entity, f query.RelationFilter) (node, error) {
	rel, ok := entity.Relation(f.Relation)
	if !ok {
		if _, isField := entity.Field(f.Relation); isField {
			return nil, schema.Invalid(entity.Name, f.Relation, "scalar field used as a relation filter")
		}
		return nil, schema.Invalid(entity.Name, f.Relation, "unknown relation")
	}
	switch f.Quantifier {
	case query.QuantSome, query.QuantEvery, query.QuantNone:
		if !rel.IsList() {
			return nil, schema.Invalid(entity.Name, rel.Name, "quantifier %s needs a list relation", f.Quantifier)
		}
	case query.QuantIs, query.QuantIsNot:
		if rel.IsList() {
			return nil, schema.Invalid(entity.Name, rel.Name, "quantifier %s needs a to-one relation", f.Quantifier)
		}
	default:
		return nil, schema.Invalid(entity.Name, rel.Name, "unknown quantifier %q", f.Quantifier)
	}
	target, ok := c.reg.Entity(rel.Target)
	if !ok {
		return nil, schema.Invalid(entity.Name, rel.Name, "unknown target %q", rel.Target)
	}
	inner, err := c.compile(target, f.Where)
	if err != nil {
		return nil, err
	}
	return relationNode{rel: rel, quantifier: f.Quantifier, inner: inner}, nil
}

// pushdown collects pushable conditions from the top-level conjunction.
func pushdown(n node) []driver.Cond {
	var out []driver.Cond
	var walk func(n node)
	walk = func(n node) {
		switch t := n.(type) {
		case andNode:
			for _, child := range t.children {
				walk(child)
			}
		case condNode:
			if t.cond.Pushable() {
				out = append(out, driver.Cond{Field: t.cond.Field, Values: t.cond.Values()})
			}
		}
	}
	walk(n)
	return out
}

type constNode struct{ value Tri }

func (n constNode) eval(_ context.Context, rows []driver.Row, _ RelatedFetcher) ([]Tri, error) {
	out := make([]Tri, len(rows))
	for i := range out {
		out[i] = n.value
	}
	return out, nil
}

type andNode struct{ children []node }

func (n andNode) eval(ctx context.Context, rows []driver.Row, fetch RelatedFetcher) ([]Tri, error) {
	out := make([]Tri, len(rows))
	for i := range out {
		out[i] = True
	}
	for _, child := range n.children {
		res, err := child.eval(ctx, rows, fetch)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = And(out[i], res[i])
		}
	}
	return out, nil
}

type orNode struct{ children []node }

func (n orNode) eval(ctx context.Context, rows []driver.Row, fetch RelatedFetcher) ([]Tri, error) {
	out := make([]Tri, len(rows))
	for _, child := range n.children {
		res, err := child.eval(ctx, rows, fetch)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = Or(out[i], res[i])
		}
	}
	return out, nil
}

// notNode is AND(NOT a, NOT b, ...).
type notNode struct{ children []node }

func (n notNode) eval(ctx context.Context, rows []driver.Row, fetch RelatedFetcher) ([]Tri, error) {
	out := make([]Tri, len(rows))
	for i := range out {
		out[i] = True
	}
	for _, child := range n.children {
		res, err := child.eval(ctx, rows, fetch)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = And(out[i], res[i].Not())
		}
	}
	return out, nil
}

type condNode struct{ cond *Condition }

func (n condNode) eval(_ context.Context, rows []driver.Row, _ RelatedFetcher) ([]Tri, error) {
	out := make([]Tri, len(rows))
	for i, row := range rows {
		out[i] = n.cond.Test(row[n.cond.Field])
	}
	return out, nil
}

type relationNode struct {
	rel        *schema.Relation
	quantifier query.Quantifier
	inner      node
}

func (n relationNode) eval(ctx context.Context, rows []driver.Row, fetch RelatedFetcher) ([]Tri, error) {
	related, err := fetch.Related(ctx, n.rel, rows)
	if err != nil {
		return nil, err
	}

	matched := map[int64]bool{}
	if n.inner != nil {
		var batch []driver.Row
		seen := map[int64]bool{}
		for _, children := range related {
			for _, child := range children {
				if !seen[child.ID()] {
					seen[child.ID()] = true
					batch = append(batch, child)
				}
			}
		}
		if len(batch) > 0 {
			res, err := n.inner.eval(ctx, batch, fetch)
			if err != nil {
				return nil, err
			}
			for i, child := range batch {
				matched[child.ID()] = res[i] == True
			}
		}
	}
	test := func(child driver.Row) bool {
		return n.inner == nil || matched[child.ID()]
	}

	out := make([]Tri, len(rows))
	for i, row := range rows {
		children := related[row.ID()]
		switch n.quantifier {
		case query.QuantSome:
			out[i] = triOf(anyRow(children, test))
		case query.QuantEvery:
			out[i] = triOf(allRows(children, test))
		case query.QuantNone:
			out[i] = triOf(!anyRow(children, test))
		case query.QuantIs:
			if n.inner == nil {
				out[i] = triOf(len(children) == 0)
			} else {
				out[i] = triOf(len(children) > 0 && test(children[0]))
			}
		case query.QuantIsNot:
			if n.inner == nil {
				out[i] = triOf(len(children) > 0)
			} else {
				out[i] = triOf(len(children) == 0 || !test(children[0]))
			}
		}
	}
	return out, nil
}

func anyRow(rows []driver.Row, test func(driver.Row) bool) bool {
	for _, r := range rows {
		if test(r) {
			return true
		}
	}
	return false
}

func allRows(rows []driver.Row, test func(driver.Row) bool) bool {
	for _, r := range rows {
		if !test(r) {
			return false
		}
	}
	return true
}
