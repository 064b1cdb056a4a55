package mutation

import (
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

type relationWrite struct {
	rel   *schema.Relation
	write query.RelationWrite
}

// payload is a validated Data map split into scalar values and nested
// writes. No I/O has happened yet.
type payload struct {
	scalars map[string]any
	toOne   []relationWrite
	lists   []relationWrite
}

func (p *payload) nested() bool {
	return len(p.toOne) > 0 || len(p.lists) > 0
}

// parse validates the shape of data for a create (update false) or an
// update (update true).
func (m *Executor) parse(entity *schema.Entity, data query.Data, update bool) (*payload, error) {
	p := &payload{scalars: map[string]any{}}
	for _, key := range sortedNames(data) {
		value := data[key]
		if f, ok := entity.Field(key); ok {
			if err := m.parseScalar(entity, f, value, update); err != nil {
				return nil, err
			}
			p.scalars[key] = value
			continue
		}
		rel, ok := entity.Relation(key)
		if !ok {
			return nil, schema.Invalid(entity.Name, key, "unknown field")
		}
		write, ok := value.(query.RelationWrite)
		if !ok || write == nil {
			return nil, schema.Invalid(entity.Name, key, "relation %s takes a nested write, got %T", key, value)
		}
		if err := m.parseRelationWrite(entity, rel, write, update); err != nil {
			return nil, err
		}
		if rel.Kind == schema.ToOne {
			p.toOne = append(p.toOne, relationWrite{rel: rel, write: write})
		} else {
			p.lists = append(p.lists, relationWrite{rel: rel, write: write})
		}
	}

	for _, w := range p.toOne {
		if _, mixed := p.scalars[w.rel.Field]; mixed {
			return nil, schema.Invalid(entity.Name, w.rel.Name, "cannot write both %s and relation %s", w.rel.Field, w.rel.Name)
		}
	}
	return p, nil
}

func (m *Executor) parseScalar(entity *schema.Entity, f *schema.Field, value any, update bool) error {
	if f.IsID() {
		return schema.Invalid(entity.Name, f.Name, "id is generated and cannot be written")
	}
	switch v := value.(type) {
	case query.RelationWrite:
		return schema.Invalid(entity.Name, f.Name, "nested writes need a relation, %s is a scalar field", f.Name)
	case query.Atomic:
		if !update {
			return schema.Invalid(entity.Name, f.Name, "%s is only valid in update", v.Op)
		}
		switch v.Op {
		case query.AtomicSet:
		case query.AtomicIncrement, query.AtomicDecrement, query.AtomicMultiply, query.AtomicDivide:
			if !f.Type.Numeric() {
				return schema.Invalid(entity.Name, f.Name, "%s needs a numeric field, got %s", v.Op, f.Type)
			}
		default:
			return schema.Invalid(entity.Name, f.Name, "unknown update operator %q", v.Op)
		}
	}
	return nil
}

func (m *Executor) parseRelationWrite(entity *schema.Entity, rel *schema.Relation, write query.RelationWrite, update bool) error {
	single := func(n int) error {
		if rel.Kind == schema.ToOne && n != 1 {
			return schema.Invalid(entity.Name, rel.Name, "to-one relation %s takes exactly one row, got %d", rel.Name, n)
		}
		return nil
	}
	switch w := write.(type) {
	case query.CreateRelated:
		return single(len(w.Data))
	case query.ConnectRelated:
		return single(len(w.Where))
	case query.ConnectOrCreateRelated:
		return single(len(w.Items))
	case query.DisconnectRelated:
		if !update {
			return schema.Invalid(entity.Name, rel.Name, "disconnect is only valid in update")
		}
		return m.checkDetachable(entity, rel)
	case query.SetRelated:
		if !update {
			return schema.Invalid(entity.Name, rel.Name, "set is only valid in update")
		}
		if rel.Kind == schema.ToOne {
			return schema.Invalid(entity.Name, rel.Name, "set needs a list relation")
		}
		return m.checkDetachable(entity, rel)
	}
	return schema.Invalid(entity.Name, rel.Name, "unsupported nested write %T", write)
}

// checkDetachable rejects unlinking rows whose foreign key is required.
func (m *Executor) checkDetachable(entity *schema.Entity, rel *schema.Relation) error {
	switch rel.Kind {
	case schema.ToOne:
		if !rel.Nullable {
			return schema.Invalid(entity.Name, rel.Name, "relation %s is required and cannot be disconnected", rel.Name)
		}
	case schema.ToMany:
		target := m.entity(rel.Target)
		fk, _ := target.Field(rel.ForeignField)
		if !fk.Nullable {
			return schema.Invalid(entity.Name, rel.Name, "%s.%s is required, rows of %s cannot be disconnected", target.Name, fk.Name, rel.Name)
		}
	}
	return nil
}
