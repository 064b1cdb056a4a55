package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// Builder accumulates entity definitions; Build validates them and returns
// the immutable Registry.
type Builder struct {
	entities []*EntityBuilder
}

func NewBuilder() *Builder {
	return &Builder{}
}

type EntityBuilder struct {
	entity *Entity
	last   *Field
	errs   []error
}

func (b *Builder) Entity(name, table string) *EntityBuilder {
	eb := &EntityBuilder{entity: &Entity{
		Name:      name,
		Table:     table,
		fieldByID: map[string]*Field{},
		relByName: map[string]*Relation{},
	}}
	b.entities = append(b.entities, eb)
	return eb
}

// Internal hides the entity from the client surface.
func (eb *EntityBuilder) Internal() *EntityBuilder {
	eb.entity.Internal = true
	return eb
}

// ID adds the auto-incrementing integer primary key.
func (eb *EntityBuilder) ID() *EntityBuilder {
	eb.add(&Field{Name: "id", Type: Int, Auto: AutoID})
	eb.entity.uniques = append(eb.entity.uniques, Unique{Name: eb.entity.Name + "_pkey", Fields: []string{"id"}})
	return eb
}

func (eb *EntityBuilder) CreatedAt() *EntityBuilder {
	return eb.add(&Field{Name: "createdAt", Type: DateTime, Auto: AutoCreatedAt})
}

func (eb *EntityBuilder) UpdatedAt() *EntityBuilder {
	return eb.add(&Field{Name: "updatedAt", Type: DateTime, Auto: AutoUpdatedAt})
}

func (eb *EntityBuilder) Timestamps() *EntityBuilder {
	return eb.CreatedAt().UpdatedAt()
}

func (eb *EntityBuilder) Scalar(name string, t FieldType) *EntityBuilder {
	return eb.add(&Field{Name: name, Type: t})
}

func (eb *EntityBuilder) Optional(name string, t FieldType) *EntityBuilder {
	return eb.add(&Field{Name: name, Type: t, Nullable: true})
}

// Default applies to the most recently added field.
func (eb *EntityBuilder) Default(v any) *EntityBuilder {
	if eb.last != nil {
		eb.last.Default = v
	}
	return eb
}

// OneOf restricts the most recently added field to the listed values.
func (eb *EntityBuilder) OneOf(values ...string) *EntityBuilder {
	if eb.last != nil {
		eb.last.Enum = values
	}
	return eb
}

// Validate attaches a go-playground validator tag to the most recently added
// field.
func (eb *EntityBuilder) Validate(tag string) *EntityBuilder {
	if eb.last != nil {
		eb.last.Validate = tag
	}
	return eb
}

// Unique marks the most recently added field as a single-field unique key.
func (eb *EntityBuilder) Unique() *EntityBuilder {
	if eb.last != nil {
		eb.UniqueOn(eb.last.Name)
	}
	return eb
}

// UniqueOn declares a (possibly compound) unique constraint.
func (eb *EntityBuilder) UniqueOn(fields ...string) *EntityBuilder {
	eb.entity.uniques = append(eb.entity.uniques, Unique{
		Name:   ConstraintName(eb.entity.Name, fields),
		Fields: fields,
	})
	return eb
}

// BelongsTo declares a to-one relation owned by this entity through fkField.
// The relation is nullable when fkField is.
func (eb *EntityBuilder) BelongsTo(name, target, fkField string, onDelete ReferentialAction) *EntityBuilder {
	return eb.relation(&Relation{
		Name:     name,
		Kind:     ToOne,
		Target:   target,
		Field:    fkField,
		OnDelete: onDelete,
	})
}

// HasMany declares a to-many relation whose rows carry foreignField.
func (eb *EntityBuilder) HasMany(name, target, foreignField string) *EntityBuilder {
	return eb.relation(&Relation{
		Name:         name,
		Kind:         ToMany,
		Target:       target,
		ForeignField: foreignField,
	})
}

// ManyToMany declares a relation mediated by join, where joinField points at
// this entity and joinTargetField at target.
func (eb *EntityBuilder) ManyToMany(name, target, join, joinField, joinTargetField string) *EntityBuilder {
	return eb.relation(&Relation{
		Name:            name,
		Kind:            ManyToMany,
		Target:          target,
		Join:            join,
		JoinField:       joinField,
		JoinTargetField: joinTargetField,
	})
}

func (eb *EntityBuilder) add(f *Field) *EntityBuilder {
	if _, dup := eb.entity.fieldByID[f.Name]; dup {
		eb.errs = append(eb.errs, fmt.Errorf("%s: duplicate field %q", eb.entity.Name, f.Name))
		return eb
	}
	if f.Column == "" {
		f.Column = ColumnName(f.Name)
	}
	eb.entity.fields = append(eb.entity.fields, f)
	eb.entity.fieldByID[f.Name] = f
	eb.last = f
	return eb
}

func (eb *EntityBuilder) relation(r *Relation) *EntityBuilder {
	r.Owner = eb.entity.Name
	if _, dup := eb.entity.relByName[r.Name]; dup {
		eb.errs = append(eb.errs, fmt.Errorf("%s: duplicate relation %q", eb.entity.Name, r.Name))
		return eb
	}
	if _, clash := eb.entity.fieldByID[r.Name]; clash {
		eb.errs = append(eb.errs, fmt.Errorf("%s: relation %q shadows a field", eb.entity.Name, r.Name))
		return eb
	}
	eb.entity.relations = append(eb.entity.relations, r)
	eb.entity.relByName[r.Name] = r
	return eb
}

// Build validates cross-entity references and freezes the registry.
func (b *Builder) Build() (*Registry, error) {
	reg := &Registry{
		entities: map[string]*Entity{},
		inbound:  map[string][]Inbound{},
	}
	var errs []string
	for _, eb := range b.entities {
		for _, err := range eb.errs {
			errs = append(errs, err.Error())
		}
		if _, dup := reg.entities[eb.entity.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate entity %q", eb.entity.Name))
			continue
		}
		reg.entities[eb.entity.Name] = eb.entity
		reg.order = append(reg.order, eb.entity.Name)
	}

	for _, name := range reg.order {
		e := reg.entities[name]
		if _, ok := e.fieldByID["id"]; !ok {
			errs = append(errs, fmt.Sprintf("%s: missing id field", name))
		}
		for _, u := range e.uniques {
			for _, f := range u.Fields {
				if _, ok := e.fieldByID[f]; !ok {
					errs = append(errs, fmt.Sprintf("%s: unique %s references unknown field %q", name, u.Name, f))
				}
			}
		}
		for _, r := range e.relations {
			if err := reg.link(e, r); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid schema: %s", strings.Join(errs, "; "))
	}
	return reg, nil
}

func (reg *Registry) link(e *Entity, r *Relation) error {
	target, ok := reg.entities[r.Target]
	if !ok {
		return fmt.Errorf("%s.%s: unknown target %q", e.Name, r.Name, r.Target)
	}
	switch r.Kind {
	case ToOne:
		fk, ok := e.fieldByID[r.Field]
		if !ok || fk.Type != Int {
			return fmt.Errorf("%s.%s: foreign key %q must be an Int field", e.Name, r.Name, r.Field)
		}
		if fk.Relation != "" {
			return fmt.Errorf("%s.%s: foreign key %q already used by %s", e.Name, r.Name, r.Field, fk.Relation)
		}
		if r.OnDelete == SetNull && !fk.Nullable {
			return fmt.Errorf("%s.%s: SetNull requires a nullable foreign key", e.Name, r.Name)
		}
		fk.Relation = r.Name
		r.Nullable = fk.Nullable
		reg.inbound[target.Name] = append(reg.inbound[target.Name], Inbound{Entity: e, Relation: r})
	case ToMany:
		fk, ok := target.fieldByID[r.ForeignField]
		if !ok || fk.Type != Int {
			return fmt.Errorf("%s.%s: foreign field %s.%s must be an Int field", e.Name, r.Name, target.Name, r.ForeignField)
		}
	case ManyToMany:
		join, ok := reg.entities[r.Join]
		if !ok {
			return fmt.Errorf("%s.%s: unknown join entity %q", e.Name, r.Name, r.Join)
		}
		for _, f := range []string{r.JoinField, r.JoinTargetField} {
			if jf, ok := join.fieldByID[f]; !ok || jf.Type != Int {
				return fmt.Errorf("%s.%s: join field %s.%s must be an Int field", e.Name, r.Name, join.Name, f)
			}
		}
		if !join.IsUniqueKey([]string{r.JoinField, r.JoinTargetField}) {
			return fmt.Errorf("%s.%s: join entity %s needs a unique key on (%s, %s)", e.Name, r.Name, join.Name, r.JoinField, r.JoinTargetField)
		}
	default:
		return fmt.Errorf("%s.%s: unknown relation kind", e.Name, r.Name)
	}
	return nil
}

// ColumnName converts a camelCase field name into its snake_case column.
// Runs of capitals are kept together: antiCSRFToken -> anti_csrf_token.
func ColumnName(field string) string {
	runes := []rune(field)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			prevUpper := i > 0 && unicode.IsUpper(runes[i-1])
			if i > 0 && (prevLower || (prevUpper && nextLower)) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
