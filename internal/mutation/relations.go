package mutation

import (
	"context"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

// resolveToOne performs a to-one write and returns the foreign key value
// the owning row must carry. Disconnect yields nil.
func (m *Executor) resolveToOne(ctx context.Context, exec driver.Executor, w relationWrite) (any, error) {
	target := m.entity(w.rel.Target)
	switch write := w.write.(type) {
	case query.CreateRelated:
		row, err := m.createNested(ctx, exec, target, write.Data[0], nil)
		if err != nil {
			return nil, err
		}
		return row.ID(), nil
	case query.ConnectRelated:
		row, err := m.Locate(ctx, exec, target, write.Where[0])
		if err != nil {
			return nil, err
		}
		return row.ID(), nil
	case query.ConnectOrCreateRelated:
		row, err := m.connectOrCreate(ctx, exec, target, write.Items[0], nil)
		if err != nil {
			return nil, err
		}
		return row.ID(), nil
	case query.DisconnectRelated:
		return nil, nil
	}
	return nil, schema.Invalid(w.rel.Owner, w.rel.Name, "unsupported nested write %T", w.write)
}

func (m *Executor) createNested(ctx context.Context, exec driver.Executor, entity *schema.Entity, data query.Data, fixed driver.Row) (driver.Row, error) {
	p, err := m.parse(entity, data, false)
	if err != nil {
		return nil, err
	}
	return m.create(ctx, exec, entity, p, fixed)
}

// connectOrCreate returns the row matching item.Where, creating it from
// item.Create when absent.
func (m *Executor) connectOrCreate(ctx context.Context, exec driver.Executor, entity *schema.Entity, item query.ConnectOrCreateItem, fixed driver.Row) (driver.Row, error) {
	row, err := m.loader.FindUniqueRow(ctx, exec, entity, item.Where)
	if err != nil || row != nil {
		return row, err
	}
	return m.createNested(ctx, exec, entity, item.Create, fixed)
}

// writeList applies a write on a to-many or many-to-many relation of the
// row ownerID.
func (m *Executor) writeList(ctx context.Context, exec driver.Executor, ownerID int64, w relationWrite) error {
	if w.rel.Kind == schema.ManyToMany {
		return m.writeManyToMany(ctx, exec, ownerID, w)
	}
	return m.writeToMany(ctx, exec, ownerID, w)
}

func (m *Executor) writeToMany(ctx context.Context, exec driver.Executor, ownerID int64, w relationWrite) error {
	target := m.entity(w.rel.Target)
	fk := w.rel.ForeignField
	fixed := driver.Row{fk: ownerID}

	connect := func(where query.UniqueWhere) error {
		row, err := m.Locate(ctx, exec, target, where)
		if err != nil {
			return err
		}
		return m.setColumn(ctx, exec, target, row.ID(), fk, ownerID)
	}

	switch write := w.write.(type) {
	case query.CreateRelated:
		for _, d := range write.Data {
			if _, err := m.createNested(ctx, exec, target, d, fixed); err != nil {
				return err
			}
		}
	case query.ConnectRelated:
		for _, where := range write.Where {
			if err := connect(where); err != nil {
				return err
			}
		}
	case query.ConnectOrCreateRelated:
		for _, item := range write.Items {
			row, err := m.loader.FindUniqueRow(ctx, exec, target, item.Where)
			if err != nil {
				return err
			}
			if row == nil {
				if _, err := m.createNested(ctx, exec, target, item.Create, fixed); err != nil {
					return err
				}
				continue
			}
			if err := m.setColumn(ctx, exec, target, row.ID(), fk, ownerID); err != nil {
				return err
			}
		}
	case query.DisconnectRelated:
		for _, where := range write.Where {
			row, err := m.Locate(ctx, exec, target, where)
			if err != nil {
				return err
			}
			if !schema.Equal(row[fk], ownerID) {
				continue
			}
			if err := m.setColumn(ctx, exec, target, row.ID(), fk, nil); err != nil {
				return err
			}
		}
	case query.SetRelated:
		linked, err := exec.Scan(ctx, driver.Scan{Entity: target.Name, Conds: []driver.Cond{{Field: fk, Values: []any{ownerID}}}})
		if err != nil {
			return err
		}
		for _, row := range linked {
			if err := m.setColumn(ctx, exec, target, row.ID(), fk, nil); err != nil {
				return err
			}
		}
		for _, where := range write.Where {
			if err := connect(where); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Executor) writeManyToMany(ctx context.Context, exec driver.Executor, ownerID int64, w relationWrite) error {
	target := m.entity(w.rel.Target)
	switch write := w.write.(type) {
	case query.CreateRelated:
		for _, d := range write.Data {
			row, err := m.createNested(ctx, exec, target, d, nil)
			if err != nil {
				return err
			}
			if err := m.link(ctx, exec, w.rel, ownerID, row.ID()); err != nil {
				return err
			}
		}
	case query.ConnectRelated:
		for _, where := range write.Where {
			row, err := m.Locate(ctx, exec, target, where)
			if err != nil {
				return err
			}
			if err := m.link(ctx, exec, w.rel, ownerID, row.ID()); err != nil {
				return err
			}
		}
	case query.ConnectOrCreateRelated:
		for _, item := range write.Items {
			row, err := m.connectOrCreate(ctx, exec, target, item, nil)
			if err != nil {
				return err
			}
			if err := m.link(ctx, exec, w.rel, ownerID, row.ID()); err != nil {
				return err
			}
		}
	case query.DisconnectRelated:
		for _, where := range write.Where {
			row, err := m.Locate(ctx, exec, target, where)
			if err != nil {
				return err
			}
			if err := m.unlink(ctx, exec, w.rel, ownerID, []any{row.ID()}); err != nil {
				return err
			}
		}
	case query.SetRelated:
		rows := make([]driver.Row, 0, len(write.Where))
		for _, where := range write.Where {
			row, err := m.Locate(ctx, exec, target, where)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		if err := m.unlink(ctx, exec, w.rel, ownerID, nil); err != nil {
			return err
		}
		for _, row := range rows {
			if err := m.link(ctx, exec, w.rel, ownerID, row.ID()); err != nil {
				return err
			}
		}
	}
	return nil
}

// link inserts the join row for (ownerID, targetID) unless it exists.
func (m *Executor) link(ctx context.Context, exec driver.Executor, rel *schema.Relation, ownerID, targetID int64) error {
	existing, err := exec.Scan(ctx, driver.Scan{Entity: rel.Join, Conds: []driver.Cond{
		{Field: rel.JoinField, Values: []any{ownerID}},
		{Field: rel.JoinTargetField, Values: []any{targetID}},
	}})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	join := m.entity(rel.Join)
	_, err = m.create(ctx, exec, join, &payload{scalars: map[string]any{}}, driver.Row{
		rel.JoinField:       ownerID,
		rel.JoinTargetField: targetID,
	})
	return err
}

// unlink deletes the join rows of ownerID, restricted to targetIDs when
// given.
func (m *Executor) unlink(ctx context.Context, exec driver.Executor, rel *schema.Relation, ownerID int64, targetIDs []any) error {
	conds := []driver.Cond{{Field: rel.JoinField, Values: []any{ownerID}}}
	if targetIDs != nil {
		conds = append(conds, driver.Cond{Field: rel.JoinTargetField, Values: targetIDs})
	}
	rows, err := exec.Scan(ctx, driver.Scan{Entity: rel.Join, Conds: conds})
	if err != nil || len(rows) == 0 {
		return err
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID()
	}
	_, err = exec.Delete(ctx, rel.Join, ids)
	return err
}
