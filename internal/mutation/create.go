package mutation

import (
	"context"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

// Create inserts one row together with its nested writes and returns the
// stored row.
func (m *Executor) Create(ctx context.Context, exec driver.Executor, entity *schema.Entity, data query.Data) (driver.Row, error) {
	p, err := m.parse(entity, data, false)
	if err != nil {
		return nil, err
	}
	return m.create(ctx, exec, entity, p, nil)
}

// CreateMany inserts flat rows and returns how many were stored. With
// skipDuplicates, rows colliding with a unique constraint are left out.
func (m *Executor) CreateMany(ctx context.Context, exec driver.Executor, entity *schema.Entity, data []query.Data, skipDuplicates bool) (int64, error) {
	type pending struct {
		row     driver.Row
		scalars map[string]any
	}
	batch := make([]pending, 0, len(data))
	for _, d := range data {
		p, err := m.parse(entity, d, false)
		if err != nil {
			return 0, err
		}
		if p.nested() {
			return 0, schema.Invalid(entity.Name, "", "createMany does not accept nested relation writes")
		}
		row, err := m.buildRow(entity, p, nil)
		if err != nil {
			return 0, err
		}
		if err := checkRequired(entity, row); err != nil {
			return 0, err
		}
		batch = append(batch, pending{row: row, scalars: p.scalars})
	}

	var count int64
	for _, item := range batch {
		if err := m.checkForeignKeys(ctx, exec, entity, item.row, item.scalars); err != nil {
			return 0, err
		}
		_, inserted, err := exec.Insert(ctx, entity.Name, item.row, driver.InsertOptions{OnConflictDoNothing: skipDuplicates})
		if err != nil {
			return 0, driverError(entity, 0, err)
		}
		if inserted {
			count++
		}
	}
	return count, nil
}

// create stores a parsed row. fixed carries foreign keys set by a parent
// relation write; data may not touch them.
func (m *Executor) create(ctx context.Context, exec driver.Executor, entity *schema.Entity, p *payload, fixed driver.Row) (driver.Row, error) {
	for name := range fixed {
		if _, clash := p.scalars[name]; clash {
			return nil, schema.Invalid(entity.Name, name, "%s is set by the enclosing relation write", name)
		}
	}
	for _, w := range p.toOne {
		if _, clash := fixed[w.rel.Field]; clash {
			return nil, schema.Invalid(entity.Name, w.rel.Name, "relation %s is set by the enclosing relation write", w.rel.Name)
		}
	}

	row, err := m.buildRow(entity, p, fixed)
	if err != nil {
		return nil, err
	}
	for _, w := range p.toOne {
		id, err := m.resolveToOne(ctx, exec, w)
		if err != nil {
			return nil, err
		}
		row[w.rel.Field] = id
	}
	if err := checkRequired(entity, row); err != nil {
		return nil, err
	}
	if err := m.checkForeignKeys(ctx, exec, entity, row, p.scalars); err != nil {
		return nil, err
	}

	stored, _, err := exec.Insert(ctx, entity.Name, row, driver.InsertOptions{})
	if err != nil {
		return nil, driverError(entity, 0, err)
	}
	for _, w := range p.lists {
		if err := m.writeList(ctx, exec, stored.ID(), w); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// buildRow coerces the written scalars and fills defaults. Required fields
// without a value are left out for checkRequired.
func (m *Executor) buildRow(entity *schema.Entity, p *payload, fixed driver.Row) (driver.Row, error) {
	row := driver.Row{}
	now := m.now()
	for _, f := range entity.Fields() {
		if f.IsID() {
			continue
		}
		if v, ok := fixed[f.Name]; ok {
			row[f.Name] = v
			continue
		}
		if raw, ok := p.scalars[f.Name]; ok {
			v, err := m.coerce(entity, f, raw)
			if err != nil {
				return nil, err
			}
			row[f.Name] = v
			continue
		}
		switch {
		case f.Auto == schema.AutoCreatedAt || f.Auto == schema.AutoUpdatedAt:
			row[f.Name] = now
		case f.Default != nil:
			v, err := m.coerce(entity, f, f.Default)
			if err != nil {
				return nil, err
			}
			row[f.Name] = v
		case f.Nullable:
			row[f.Name] = nil
		}
	}
	return row, nil
}

func checkRequired(entity *schema.Entity, row driver.Row) error {
	for _, f := range entity.Fields() {
		if f.IsID() || f.Nullable {
			continue
		}
		if row[f.Name] == nil {
			return schema.Invalid(entity.Name, f.Name, "is required")
		}
	}
	return nil
}

// checkForeignKeys verifies that foreign keys written directly as scalars
// reference existing rows.
func (m *Executor) checkForeignKeys(ctx context.Context, exec driver.Executor, entity *schema.Entity, row driver.Row, written map[string]any) error {
	for _, rel := range entity.Relations() {
		if rel.Kind != schema.ToOne {
			continue
		}
		if _, ok := written[rel.Field]; !ok {
			continue
		}
		id, ok := row[rel.Field].(int64)
		if !ok {
			continue
		}
		rows, err := exec.Scan(ctx, driver.Scan{
			Entity: rel.Target,
			Conds:  []driver.Cond{{Field: "id", Values: []any{id}}},
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return foreignKeyError(entity.Name, rel, "no %s with id %d", rel.Target, id)
		}
	}
	return nil
}
