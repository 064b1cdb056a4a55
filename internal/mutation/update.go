package mutation

import (
	"context"
	"sort"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

// Update changes the row identified by where and returns the stored result.
func (m *Executor) Update(ctx context.Context, exec driver.Executor, entity *schema.Entity, where query.UniqueWhere, data query.Data) (driver.Row, error) {
	p, err := m.parse(entity, data, true)
	if err != nil {
		return nil, err
	}
	current, err := m.Locate(ctx, exec, entity, where)
	if err != nil {
		return nil, err
	}
	return m.apply(ctx, exec, entity, current, p)
}

// UpdateMany applies flat data to every row matching where and returns how
// many rows changed.
func (m *Executor) UpdateMany(ctx context.Context, exec driver.Executor, entity *schema.Entity, where query.Filter, data query.Data) (int64, error) {
	p, err := m.parse(entity, data, true)
	if err != nil {
		return 0, err
	}
	if p.nested() {
		return 0, schema.Invalid(entity.Name, "", "updateMany does not accept nested relation writes")
	}
	rows, err := m.loader.FindRows(ctx, exec, entity, where)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if _, err := m.apply(ctx, exec, entity, row, p); err != nil {
			return 0, err
		}
	}
	return int64(len(rows)), nil
}

// Upsert updates the row identified by where, or creates one from create
// when it does not exist. The id of an existing row never changes.
func (m *Executor) Upsert(ctx context.Context, exec driver.Executor, entity *schema.Entity, where query.UniqueWhere, create, update query.Data) (driver.Row, error) {
	cp, err := m.parse(entity, create, false)
	if err != nil {
		return nil, err
	}
	up, err := m.parse(entity, update, true)
	if err != nil {
		return nil, err
	}
	current, err := m.loader.FindUniqueRow(ctx, exec, entity, where)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return m.create(ctx, exec, entity, cp, nil)
	}
	return m.apply(ctx, exec, entity, current, up)
}

// apply writes a parsed update onto current.
func (m *Executor) apply(ctx context.Context, exec driver.Executor, entity *schema.Entity, current driver.Row, p *payload) (driver.Row, error) {
	values := driver.Row{}
	for _, name := range sortedNames(p.scalars) {
		f, _ := entity.Field(name)
		var (
			v   any
			err error
		)
		if a, ok := p.scalars[name].(query.Atomic); ok {
			v, err = m.atomic(entity, f, current[name], a)
		} else {
			v, err = m.coerce(entity, f, p.scalars[name])
		}
		if err != nil {
			return nil, err
		}
		values[name] = v
	}
	for _, w := range p.toOne {
		v, err := m.resolveToOne(ctx, exec, w)
		if err != nil {
			return nil, err
		}
		values[w.rel.Field] = v
	}
	if err := m.checkForeignKeys(ctx, exec, entity, values, p.scalars); err != nil {
		return nil, err
	}
	m.touch(entity, values)

	updated, err := exec.Update(ctx, entity.Name, current.ID(), values)
	if err != nil {
		return nil, driverError(entity, current.ID(), err)
	}
	for _, w := range p.lists {
		if err := m.writeList(ctx, exec, current.ID(), w); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func sortedNames(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
