// Package query defines the request surface of the engine: filter trees,
// ordering, selections, pagination, aggregation and mutation arguments.
// Everything here is plain data; validation happens when a request is
// compiled against the schema.
package query

// Filter is a node of a where (or having) tree. The concrete variants are
// AndFilter, OrFilter, NotFilter, Cond, RelationFilter and AggregateCond.
type Filter interface {
	isFilter()
}

type AndFilter struct{ Filters []Filter }

type OrFilter struct{ Filters []Filter }

// NotFilter negates each child and requires all negations to hold.
type NotFilter struct{ Filters []Filter }

type Op string

const (
	OpEquals     Op = "equals"
	OpNot        Op = "not"
	OpIn         Op = "in"
	OpNotIn      Op = "notIn"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
	OpEndsWith   Op = "endsWith"
)

// Ordered reports whether the operator needs an ordered field type.
func (o Op) Ordered() bool {
	return o == OpLt || o == OpLte || o == OpGt || o == OpGte
}

// Textual reports whether the operator only applies to strings.
func (o Op) Textual() bool {
	return o == OpContains || o == OpStartsWith || o == OpEndsWith
}

// Mode selects case sensitivity for string comparisons.
type Mode int

const (
	ModeDefault Mode = iota
	ModeInsensitive
)

// Cond compares one scalar field against a value.
type Cond struct {
	Field string
	Op    Op
	Value any
	Mode  Mode
}

// Insensitive returns a copy of c that compares strings case-insensitively.
func (c Cond) Insensitive() Cond {
	c.Mode = ModeInsensitive
	return c
}

type Quantifier string

const (
	QuantSome  Quantifier = "some"
	QuantEvery Quantifier = "every"
	QuantNone  Quantifier = "none"
	QuantIs    Quantifier = "is"
	QuantIsNot Quantifier = "isNot"
)

// RelationFilter applies Where to the rows reached through Relation. A nil
// Where under is/isNot tests whether the related row exists.
type RelationFilter struct {
	Relation   string
	Quantifier Quantifier
	Where      Filter
}

type AggFunc string

const (
	AggCount AggFunc = "_count"
	AggAvg   AggFunc = "_avg"
	AggSum   AggFunc = "_sum"
	AggMin   AggFunc = "_min"
	AggMax   AggFunc = "_max"
)

// AggregateCond compares an aggregate of a field; only valid in having.
type AggregateCond struct {
	Func AggFunc
	Cond Cond
}

func (AndFilter) isFilter()      {}
func (OrFilter) isFilter()       {}
func (NotFilter) isFilter()      {}
func (Cond) isFilter()           {}
func (RelationFilter) isFilter() {}
func (AggregateCond) isFilter()  {}

func And(filters ...Filter) Filter { return AndFilter{Filters: filters} }

func Or(filters ...Filter) Filter { return OrFilter{Filters: filters} }

func Not(filters ...Filter) Filter { return NotFilter{Filters: filters} }

// Match is shorthand for an AND of equals conditions.
func Match(values map[string]any) Filter {
	filters := make([]Filter, 0, len(values))
	for _, field := range sortedKeys(values) {
		filters = append(filters, Equals(field, values[field]))
	}
	return AndFilter{Filters: filters}
}

func Equals(field string, v any) Cond { return Cond{Field: field, Op: OpEquals, Value: v} }

func NotEquals(field string, v any) Cond { return Cond{Field: field, Op: OpNot, Value: v} }

func IsNull(field string) Cond { return Equals(field, nil) }

func IsNotNull(field string) Cond { return NotEquals(field, nil) }

func In(field string, values ...any) Cond { return Cond{Field: field, Op: OpIn, Value: values} }

func NotIn(field string, values ...any) Cond { return Cond{Field: field, Op: OpNotIn, Value: values} }

func Lt(field string, v any) Cond { return Cond{Field: field, Op: OpLt, Value: v} }

func Lte(field string, v any) Cond { return Cond{Field: field, Op: OpLte, Value: v} }

func Gt(field string, v any) Cond { return Cond{Field: field, Op: OpGt, Value: v} }

func Gte(field string, v any) Cond { return Cond{Field: field, Op: OpGte, Value: v} }

func Contains(field, s string) Cond { return Cond{Field: field, Op: OpContains, Value: s} }

func StartsWith(field, s string) Cond { return Cond{Field: field, Op: OpStartsWith, Value: s} }

func EndsWith(field, s string) Cond { return Cond{Field: field, Op: OpEndsWith, Value: s} }

func Some(relation string, where Filter) Filter {
	return RelationFilter{Relation: relation, Quantifier: QuantSome, Where: where}
}

func Every(relation string, where Filter) Filter {
	return RelationFilter{Relation: relation, Quantifier: QuantEvery, Where: where}
}

func None(relation string, where Filter) Filter {
	return RelationFilter{Relation: relation, Quantifier: QuantNone, Where: where}
}

func Is(relation string, where Filter) Filter {
	return RelationFilter{Relation: relation, Quantifier: QuantIs, Where: where}
}

func IsNot(relation string, where Filter) Filter {
	return RelationFilter{Relation: relation, Quantifier: QuantIsNot, Where: where}
}

// Having wraps a condition so it applies to an aggregate of the field.
func Having(fn AggFunc, c Cond) Filter { return AggregateCond{Func: fn, Cond: c} }
