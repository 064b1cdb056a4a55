package aggregate

import (
	"context"
	"sort"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/filter"
	"github.com/angelmondragon/shopclient/internal/loader"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	"github.com/angelmondragon/shopclient/pkg/pagination"
)

type group struct {
	key  driver.Row
	rows []driver.Row
}

// GroupBy partitions the rows matching where by the by fields, filters the
// groups with having and returns one record per surviving group.
func (a *Aggregator) GroupBy(ctx context.Context, exec driver.Executor, entity *schema.Entity, args query.GroupByArgs) ([]query.Record, error) {
	having, err := a.validateGroupBy(entity, args)
	if err != nil {
		return nil, err
	}
	rows, err := a.loader.FindRows(ctx, exec, entity, args.Where)
	if err != nil {
		return nil, err
	}

	groups := partition(rows, args.By)
	kept := groups[:0]
	for _, g := range groups {
		if having == nil || having.test(g) == filter.True {
			kept = append(kept, g)
		}
	}

	orderBy := args.OrderBy
	if len(orderBy) == 0 {
		for _, name := range args.By {
			orderBy = append(orderBy, query.OrderAsc(name))
		}
	}
	sortGroups(kept, orderBy)
	start, end := pagination.Window(len(kept), -1, args.Skip, args.Take)
	kept = kept[start:end]

	sel := selectors{Count: args.Count, Avg: args.Avg, Sum: args.Sum, Min: args.Min, Max: args.Max}
	out := make([]query.Record, 0, len(kept))
	for _, g := range kept {
		rec := query.Record{}
		for _, name := range args.By {
			f, _ := entity.Field(name)
			rec[name] = f.Output(g.key[name])
		}
		if len(sel.Count) > 0 {
			counts := query.Record{}
			for _, name := range sel.Count {
				counts[name] = countOf(g.rows, name)
			}
			rec[string(query.AggCount)] = counts
		}
		addSection(rec, query.AggAvg, sel.compute(entity, sel.Avg, g.rows, avgOf))
		addSection(rec, query.AggSum, sel.compute(entity, sel.Sum, g.rows, sumOf))
		addSection(rec, query.AggMin, sel.compute(entity, sel.Min, g.rows, minOf))
		addSection(rec, query.AggMax, sel.compute(entity, sel.Max, g.rows, maxOf))
		out = append(out, rec)
	}
	return out, nil
}

func addSection(rec query.Record, fn query.AggFunc, values map[string]any) {
	if values == nil {
		return
	}
	rec[string(fn)] = query.Record(values)
}

func (a *Aggregator) validateGroupBy(entity *schema.Entity, args query.GroupByArgs) (havingNode, error) {
	if len(args.By) == 0 {
		return nil, schema.Invalid(entity.Name, "", "by must not be empty")
	}
	inBy := map[string]bool{}
	for _, name := range args.By {
		if _, ok := entity.Field(name); !ok {
			if _, isRel := entity.Relation(name); isRel {
				return nil, schema.Invalid(entity.Name, name, "cannot group by a relation")
			}
			return nil, schema.Invalid(entity.Name, name, "unknown by field")
		}
		inBy[name] = true
	}

	having, err := compileHaving(entity, inBy, args.Having)
	if err != nil {
		return nil, err
	}

	for _, ob := range args.OrderBy {
		if !inBy[ob.Field] {
			return nil, schema.Invalid(entity.Name, ob.Field, "orderBy fields must be listed in by")
		}
	}
	if err := loader.ValidateOrderBy(entity, args.OrderBy); err != nil {
		return nil, err
	}
	if (args.Take != nil || args.Skip != 0) && len(args.OrderBy) == 0 {
		return nil, schema.Invalid(entity.Name, "", "take and skip require orderBy")
	}
	if args.Take != nil && *args.Take < 0 {
		return nil, schema.Invalid(entity.Name, "", "take must not be negative")
	}
	if args.Skip < 0 {
		return nil, schema.Invalid(entity.Name, "", "skip must not be negative")
	}

	sel := selectors{Count: args.Count, Avg: args.Avg, Sum: args.Sum, Min: args.Min, Max: args.Max}
	if err := sel.validate(entity); err != nil {
		return nil, err
	}
	return having, nil
}

func partition(rows []driver.Row, by []string) []*group {
	index := map[string]*group{}
	var groups []*group
	for _, r := range rows {
		k := loader.GroupKey(r, by)
		g, ok := index[k]
		if !ok {
			key := driver.Row{}
			for _, name := range by {
				key[name] = r[name]
			}
			g = &group{key: key}
			index[k] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}
	return groups
}

func sortGroups(groups []*group, orderBy []query.OrderBy) {
	sort.SliceStable(groups, func(i, j int) bool {
		return loader.CompareRows(groups[i].key, groups[j].key, orderBy) < 0
	})
}
