package loader

import (
	"context"
	"fmt"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/filter"
	"github.com/angelmondragon/shopclient/internal/schema"
)

// fetcher resolves relations for batches of rows through one executor.
type fetcher struct {
	exec driver.Executor
}

var _ filter.RelatedFetcher = fetcher{}

// Fetcher returns the relation resolver the filter evaluator uses.
func (l *Loader) Fetcher(exec driver.Executor) filter.RelatedFetcher {
	return fetcher{exec: exec}
}

func (f fetcher) Related(ctx context.Context, rel *schema.Relation, parents []driver.Row) (map[int64][]driver.Row, error) {
	out := make(map[int64][]driver.Row, len(parents))
	if len(parents) == 0 {
		return out, nil
	}
	switch rel.Kind {
	case schema.ToOne:
		keys := distinctInts(parents, rel.Field)
		if len(keys) == 0 {
			return out, nil
		}
		targets, err := f.byID(ctx, rel.Target, keys)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			fk, ok := p[rel.Field].(int64)
			if !ok {
				continue
			}
			if t, found := targets[fk]; found {
				out[p.ID()] = []driver.Row{t}
			}
		}
	case schema.ToMany:
		children, err := f.exec.Scan(ctx, driver.Scan{
			Entity: rel.Target,
			Conds:  []driver.Cond{{Field: rel.ForeignField, Values: distinctInts(parents, "id")}},
		})
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if owner, ok := child[rel.ForeignField].(int64); ok {
				out[owner] = append(out[owner], child)
			}
		}
	case schema.ManyToMany:
		joins, err := f.exec.Scan(ctx, driver.Scan{
			Entity: rel.Join,
			Conds:  []driver.Cond{{Field: rel.JoinField, Values: distinctInts(parents, "id")}},
		})
		if err != nil {
			return nil, err
		}
		keys := distinctInts(joins, rel.JoinTargetField)
		if len(keys) == 0 {
			return out, nil
		}
		targets, err := f.byID(ctx, rel.Target, keys)
		if err != nil {
			return nil, err
		}
		for _, j := range joins {
			owner, _ := j[rel.JoinField].(int64)
			target, _ := j[rel.JoinTargetField].(int64)
			if t, found := targets[target]; found {
				out[owner] = append(out[owner], t)
			}
		}
	default:
		return nil, fmt.Errorf("relation %s.%s: unknown kind", rel.Owner, rel.Name)
	}
	return out, nil
}

func (f fetcher) byID(ctx context.Context, entity string, ids []any) (map[int64]driver.Row, error) {
	rows, err := f.exec.Scan(ctx, driver.Scan{
		Entity: entity,
		Conds:  []driver.Cond{{Field: "id", Values: ids}},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]driver.Row, len(rows))
	for _, r := range rows {
		out[r.ID()] = r
	}
	return out, nil
}

func distinctInts(rows []driver.Row, field string) []any {
	seen := map[int64]bool{}
	out := []any{}
	for _, r := range rows {
		v, ok := r[field].(int64)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
