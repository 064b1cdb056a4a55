package mutation

import (
	"context"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

// Delete removes the row identified by where, applying referential
// actions, and returns the row as it was.
func (m *Executor) Delete(ctx context.Context, exec driver.Executor, entity *schema.Entity, where query.UniqueWhere) (driver.Row, error) {
	row, err := m.Locate(ctx, exec, entity, where)
	if err != nil {
		return nil, err
	}
	if _, err := m.DeleteRows(ctx, exec, entity, []driver.Row{row}); err != nil {
		return nil, err
	}
	return row, nil
}

// DeleteMany removes every row matching where and returns how many were
// deleted.
func (m *Executor) DeleteMany(ctx context.Context, exec driver.Executor, entity *schema.Entity, where query.Filter) (int64, error) {
	rows, err := m.loader.FindRows(ctx, exec, entity, where)
	if err != nil {
		return 0, err
	}
	return m.DeleteRows(ctx, exec, entity, rows)
}

// DeleteRows removes rows of entity. Referencing rows are visited first:
// Restrict aborts before anything is written, Cascade deletes them too and
// SetNull clears their foreign key.
func (m *Executor) DeleteRows(ctx context.Context, exec driver.Executor, entity *schema.Entity, rows []driver.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	plan := &deletePlan{ids: map[string][]int64{}, seen: map[string]map[int64]bool{}}
	if err := m.visit(ctx, exec, plan, entity, rows); err != nil {
		return 0, err
	}

	for _, n := range plan.nulls {
		for _, row := range n.rows {
			if plan.seen[n.entity.Name][row.ID()] {
				continue
			}
			if err := m.setColumn(ctx, exec, n.entity, row.ID(), n.field, nil); err != nil {
				return 0, err
			}
		}
	}

	var deleted int64
	for i := len(plan.order) - 1; i >= 0; i-- {
		e := plan.order[i]
		n, err := exec.Delete(ctx, e.Name, plan.ids[e.Name])
		if err != nil {
			return 0, err
		}
		if i == 0 {
			deleted = n
		}
	}
	return deleted, nil
}

type nullify struct {
	entity *schema.Entity
	field  string
	rows   []driver.Row
}

// deletePlan lists the rows to delete per entity in discovery order and the
// foreign keys to clear.
type deletePlan struct {
	order []*schema.Entity
	ids   map[string][]int64
	seen  map[string]map[int64]bool
	nulls []nullify
}

func (m *Executor) visit(ctx context.Context, exec driver.Executor, plan *deletePlan, entity *schema.Entity, rows []driver.Row) error {
	seen := plan.seen[entity.Name]
	if seen == nil {
		seen = map[int64]bool{}
		plan.seen[entity.Name] = seen
		plan.order = append(plan.order, entity)
	}
	var fresh []int64
	for _, r := range rows {
		if !seen[r.ID()] {
			seen[r.ID()] = true
			fresh = append(fresh, r.ID())
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	plan.ids[entity.Name] = append(plan.ids[entity.Name], fresh...)

	for _, in := range m.reg.Referencing(entity.Name) {
		refs, err := exec.Scan(ctx, driver.Scan{
			Entity: in.Entity.Name,
			Conds:  []driver.Cond{{Field: in.Relation.Field, Values: anyIDs(fresh)}},
		})
		if err != nil {
			return err
		}
		refs = pending(plan, in.Entity.Name, refs)
		if len(refs) == 0 {
			continue
		}
		switch in.Relation.OnDelete {
		case schema.Cascade:
			if err := m.visit(ctx, exec, plan, in.Entity, refs); err != nil {
				return err
			}
		case schema.SetNull:
			plan.nulls = append(plan.nulls, nullify{entity: in.Entity, field: in.Relation.Field, rows: refs})
		default:
			return foreignKeyError(in.Entity.Name, in.Relation,
				"%s still referenced by %d %s %s", entity.Name, len(refs), in.Entity.Name, plural(len(refs)))
		}
	}
	return nil
}

// pending drops rows already scheduled for deletion.
func pending(plan *deletePlan, entity string, rows []driver.Row) []driver.Row {
	seen := plan.seen[entity]
	if len(seen) == 0 {
		return rows
	}
	out := rows[:0]
	for _, r := range rows {
		if !seen[r.ID()] {
			out = append(out, r)
		}
	}
	return out
}

func plural(n int) string {
	if n == 1 {
		return "row"
	}
	return "rows"
}
