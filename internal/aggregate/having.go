package aggregate

import (
	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/filter"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

// havingNode evaluates a having tree against one group.
type havingNode interface {
	test(g *group) filter.Tri
}

// compileHaving validates having: every field it names, plain or
// aggregated, must be a by field. _count of _all names no field.
func compileHaving(entity *schema.Entity, inBy map[string]bool, f query.Filter) (havingNode, error) {
	switch t := f.(type) {
	case nil:
		return nil, nil
	case query.AndFilter:
		nodes, err := compileHavingAll(entity, inBy, t.Filters)
		return havingAnd(nodes), err
	case query.OrFilter:
		nodes, err := compileHavingAll(entity, inBy, t.Filters)
		return havingOr(nodes), err
	case query.NotFilter:
		nodes, err := compileHavingAll(entity, inBy, t.Filters)
		return havingNot(nodes), err
	case query.Cond:
		field, ok := entity.Field(t.Field)
		if !ok {
			return nil, schema.Invalid(entity.Name, t.Field, "unknown having field")
		}
		if !inBy[t.Field] {
			return nil, schema.Invalid(entity.Name, t.Field, "having conditions on plain fields must use a by field")
		}
		cond, err := filter.NewCondition(entity.Name, field, t)
		if err != nil {
			return nil, err
		}
		return havingField{cond: cond}, nil
	case query.AggregateCond:
		return compileAggregateCond(entity, inBy, t)
	case query.RelationFilter:
		return nil, schema.Invalid(entity.Name, t.Relation, "relation filters are not allowed in having")
	}
	return nil, schema.Invalid(entity.Name, "", "unsupported having filter %T", f)
}

func compileHavingAll(entity *schema.Entity, inBy map[string]bool, filters []query.Filter) ([]havingNode, error) {
	nodes := make([]havingNode, 0, len(filters))
	for _, child := range filters {
		n, err := compileHaving(entity, inBy, child)
		if err != nil {
			return nil, err
		}
		if n == nil {
			n = havingConst(filter.True)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func compileAggregateCond(entity *schema.Entity, inBy map[string]bool, ac query.AggregateCond) (havingNode, error) {
	name := ac.Cond.Field
	var (
		field   *schema.Field
		operand *schema.Field
		compute reducer
	)
	switch ac.Func {
	case query.AggCount:
		if name != query.CountAll {
			f, ok := entity.Field(name)
			if !ok {
				return nil, schema.Invalid(entity.Name, name, "unknown having field")
			}
			field = f
		}
		operand = &schema.Field{Name: name, Type: schema.Int}
		compute = func(_ *schema.Field, rows []driver.Row) any { return countOf(rows, name) }
	case query.AggAvg, query.AggSum, query.AggMin, query.AggMax:
		f, err := numericField(entity, ac.Func, name)
		if err != nil {
			return nil, err
		}
		field = f
		operand = &schema.Field{Name: name, Type: f.Type, Nullable: true}
		switch ac.Func {
		case query.AggAvg:
			operand.Type = schema.Float
			compute = avgOf
		case query.AggSum:
			compute = sumOf
		case query.AggMin:
			compute = minOf
		default:
			compute = maxOf
		}
	default:
		return nil, schema.Invalid(entity.Name, name, "unknown aggregate %q", ac.Func)
	}
	if field != nil && !inBy[name] {
		return nil, schema.Invalid(entity.Name, name, "having fields must be listed in by")
	}
	cond, err := filter.NewCondition(entity.Name, operand, ac.Cond)
	if err != nil {
		return nil, err
	}
	return havingAggregate{field: field, compute: compute, cond: cond}, nil
}

type havingConst filter.Tri

func (n havingConst) test(*group) filter.Tri { return filter.Tri(n) }

type havingAnd []havingNode

func (n havingAnd) test(g *group) filter.Tri {
	out := filter.True
	for _, child := range n {
		out = filter.And(out, child.test(g))
	}
	return out
}

type havingOr []havingNode

func (n havingOr) test(g *group) filter.Tri {
	out := filter.False
	for _, child := range n {
		out = filter.Or(out, child.test(g))
	}
	return out
}

type havingNot []havingNode

func (n havingNot) test(g *group) filter.Tri {
	out := filter.True
	for _, child := range n {
		out = filter.And(out, child.test(g).Not())
	}
	return out
}

type havingField struct {
	cond *filter.Condition
}

func (n havingField) test(g *group) filter.Tri {
	return n.cond.Test(g.key[n.cond.Field])
}

type havingAggregate struct {
	field   *schema.Field
	compute reducer
	cond    *filter.Condition
}

func (n havingAggregate) test(g *group) filter.Tri {
	return n.cond.Test(n.compute(n.field, g.rows))
}
