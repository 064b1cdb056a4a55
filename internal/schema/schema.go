// Package schema holds the immutable description of every entity the engine
// can query: scalar fields, unique constraints, relations and the referential
// action applied when a referenced row is deleted.
package schema

import (
	"sort"
	"strings"
)

// FieldType is the semantic type of a scalar field.
type FieldType int

const (
	Int FieldType = iota + 1
	Float
	String
	DateTime
	JSON
)

func (t FieldType) String() string {
	switch t {
	case Int:
		return "Int"
	case Float:
		return "Float"
	case String:
		return "String"
	case DateTime:
		return "DateTime"
	case JSON:
		return "Json"
	}
	return "Unknown"
}

// Ordered reports whether lt/lte/gt/gte and ordering apply to the type.
func (t FieldType) Ordered() bool {
	return t == Int || t == Float || t == String || t == DateTime
}

// Numeric reports whether _avg/_sum/_min/_max apply to the type.
func (t FieldType) Numeric() bool {
	return t == Int || t == Float
}

// Auto marks fields the engine maintains itself.
type Auto int

const (
	AutoNone Auto = iota
	AutoID
	AutoCreatedAt
	AutoUpdatedAt
)

type Field struct {
	Name     string
	Column   string
	Type     FieldType
	Nullable bool
	Auto     Auto
	Default  any
	Enum     []string
	Validate string

	// Relation names the to-one relation this field is the foreign key of.
	Relation string
}

// IsID reports whether the field is the surrogate primary key.
func (f *Field) IsID() bool { return f.Auto == AutoID }

// Required reports whether create must receive a value for the field.
func (f *Field) Required() bool {
	return !f.Nullable && f.Auto == AutoNone && f.Default == nil
}

type RelationKind int

const (
	ToOne RelationKind = iota + 1
	ToMany
	ManyToMany
)

func (k RelationKind) String() string {
	switch k {
	case ToOne:
		return "to-one"
	case ToMany:
		return "to-many"
	case ManyToMany:
		return "many-to-many"
	}
	return "unknown"
}

// ReferentialAction is applied to rows holding a foreign key when the row
// they reference is deleted.
type ReferentialAction int

const (
	Restrict ReferentialAction = iota + 1
	Cascade
	SetNull
)

func (a ReferentialAction) String() string {
	switch a {
	case Restrict:
		return "Restrict"
	case Cascade:
		return "Cascade"
	case SetNull:
		return "SetNull"
	}
	return "Unknown"
}

type Relation struct {
	Name   string
	Kind   RelationKind
	Owner  string
	Target string

	// ToOne: the local foreign key, whether it may be null and what happens
	// to this row when the target is deleted.
	Field    string
	Nullable bool
	OnDelete ReferentialAction

	// ToMany: the foreign key on the target pointing back at the owner.
	ForeignField string

	// ManyToMany: the join entity and its two foreign keys.
	Join            string
	JoinField       string
	JoinTargetField string
}

// IsList reports whether the relation resolves to a list of rows.
func (r *Relation) IsList() bool { return r.Kind != ToOne }

type Unique struct {
	Name   string
	Fields []string
}

type Entity struct {
	Name     string
	Table    string
	Internal bool

	fields    []*Field
	fieldByID map[string]*Field
	relations []*Relation
	relByName map[string]*Relation
	uniques   []Unique
}

func (e *Entity) Fields() []*Field { return e.fields }

func (e *Entity) Relations() []*Relation { return e.relations }

func (e *Entity) Uniques() []Unique { return e.uniques }

func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.fieldByID[name]
	return f, ok
}

func (e *Entity) Relation(name string) (*Relation, bool) {
	r, ok := e.relByName[name]
	return r, ok
}

// FieldNames returns the scalar field names in declaration order.
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		names = append(names, f.Name)
	}
	return names
}

// UniqueFor returns the constraint whose field set equals keys exactly.
func (e *Entity) UniqueFor(keys []string) (Unique, bool) {
	want := sortedCopy(keys)
	for _, u := range e.uniques {
		if equalSets(want, sortedCopy(u.Fields)) {
			return u, true
		}
	}
	return Unique{}, false
}

// IsUniqueKey reports whether keys name exactly one unique constraint.
func (e *Entity) IsUniqueKey(keys []string) bool {
	_, ok := e.UniqueFor(keys)
	return ok
}

// InUniqueKey reports whether field participates in any unique constraint.
func (e *Entity) InUniqueKey(field string) bool {
	for _, u := range e.uniques {
		for _, f := range u.Fields {
			if f == field {
				return true
			}
		}
	}
	return false
}

// UniqueByName returns the constraint with the given name.
func (e *Entity) UniqueByName(name string) (Unique, bool) {
	for _, u := range e.uniques {
		if u.Name == name {
			return u, true
		}
	}
	return Unique{}, false
}

// UniqueByColumns returns the constraint covering exactly the given columns.
func (e *Entity) UniqueByColumns(columns []string) (Unique, bool) {
	fields := make([]string, 0, len(columns))
	for _, col := range columns {
		found := false
		for _, f := range e.fields {
			if f.Column == col {
				fields = append(fields, f.Name)
				found = true
				break
			}
		}
		if !found {
			return Unique{}, false
		}
	}
	return e.UniqueFor(fields)
}

// Inbound is a to-one relation declared on another entity that targets this
// one.
type Inbound struct {
	Entity   *Entity
	Relation *Relation
}

// Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	entities map[string]*Entity
	order    []string
	inbound  map[string][]Inbound
}

func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Entities returns every entity, including internal join entities.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// Public returns the entities that get a client delegate.
func (r *Registry) Public() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entities[name]; !e.Internal {
			out = append(out, e)
		}
	}
	return out
}

// Referencing returns the to-one relations, on any entity, that target name.
func (r *Registry) Referencing(name string) []Inbound {
	return r.inbound[name]
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ConstraintName builds the conventional name for a unique constraint.
func ConstraintName(entity string, fields []string) string {
	return entity + "_" + strings.Join(fields, "_") + "_key"
}
