package filter

import (
	"reflect"
	"strings"

	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

// Condition is a validated scalar comparison with its operand already
// coerced to the field type.
type Condition struct {
	Field  string
	Op     query.Op
	Mode   query.Mode
	typ    schema.FieldType
	value  any
	values []any
}

// NewCondition validates c against field. entity is only used in errors.
func NewCondition(entity string, field *schema.Field, c query.Cond) (*Condition, error) {
	op := c.Op
	if op == "" {
		op = query.OpEquals
	}
	switch {
	case op.Ordered() && !field.Type.Ordered():
		return nil, schema.Invalid(entity, field.Name, "operator %s is not supported on %s fields", op, field.Type)
	case op.Textual() && field.Type != schema.String:
		return nil, schema.Invalid(entity, field.Name, "operator %s requires a String field", op)
	case c.Mode == query.ModeInsensitive && field.Type != schema.String:
		return nil, schema.Invalid(entity, field.Name, "insensitive mode requires a String field")
	}

	cond := &Condition{Field: field.Name, Op: op, Mode: c.Mode, typ: field.Type}
	switch op {
	case query.OpIn, query.OpNotIn:
		list, ok := toList(c.Value)
		if !ok {
			return nil, schema.Invalid(entity, field.Name, "operator %s needs a list", op)
		}
		cond.values = make([]any, 0, len(list))
		for _, item := range list {
			if item == nil {
				return nil, schema.Invalid(entity, field.Name, "operator %s does not accept null items", op)
			}
			v, err := field.Coerce(item)
			if err != nil {
				return nil, schema.Invalid(entity, field.Name, "%v", err)
			}
			cond.values = append(cond.values, v)
		}
	case query.OpEquals, query.OpNot:
		if c.Value == nil && op == query.OpEquals && !field.Nullable {
			return nil, schema.Invalid(entity, field.Name, "field is required and can never be null")
		}
		v, err := field.Coerce(c.Value)
		if err != nil {
			return nil, schema.Invalid(entity, field.Name, "%v", err)
		}
		cond.value = v
	case query.OpLt, query.OpLte, query.OpGt, query.OpGte,
		query.OpContains, query.OpStartsWith, query.OpEndsWith:
		if c.Value == nil {
			return nil, schema.Invalid(entity, field.Name, "operator %s needs a value", op)
		}
		v, err := field.Coerce(c.Value)
		if err != nil {
			return nil, schema.Invalid(entity, field.Name, "%v", err)
		}
		cond.value = v
	default:
		return nil, schema.Invalid(entity, field.Name, "unknown operator %q", op)
	}
	return cond, nil
}

// Test evaluates the condition against one stored value.
func (c *Condition) Test(v any) Tri {
	switch c.Op {
	case query.OpEquals:
		if c.value == nil {
			return triOf(v == nil)
		}
		if v == nil {
			return Unknown
		}
		return triOf(c.equal(v, c.value))
	case query.OpNot:
		if c.value == nil {
			return triOf(v != nil)
		}
		if v == nil {
			return Unknown
		}
		return triOf(!c.equal(v, c.value))
	case query.OpIn:
		if len(c.values) == 0 {
			return False
		}
		if v == nil {
			return Unknown
		}
		for _, item := range c.values {
			if c.equal(v, item) {
				return True
			}
		}
		return False
	case query.OpNotIn:
		if v == nil {
			return Unknown
		}
		for _, item := range c.values {
			if c.equal(v, item) {
				return False
			}
		}
		return True
	}

	if v == nil {
		return Unknown
	}
	switch c.Op {
	case query.OpLt:
		return triOf(c.compare(v, c.value) < 0)
	case query.OpLte:
		return triOf(c.compare(v, c.value) <= 0)
	case query.OpGt:
		return triOf(c.compare(v, c.value) > 0)
	case query.OpGte:
		return triOf(c.compare(v, c.value) >= 0)
	}

	s, _ := v.(string)
	needle, _ := c.value.(string)
	if c.Mode == query.ModeInsensitive {
		s, needle = strings.ToLower(s), strings.ToLower(needle)
	}
	switch c.Op {
	case query.OpContains:
		return triOf(strings.Contains(s, needle))
	case query.OpStartsWith:
		return triOf(strings.HasPrefix(s, needle))
	case query.OpEndsWith:
		return triOf(strings.HasSuffix(s, needle))
	}
	return Unknown
}

// Pushable reports whether the condition can be handed to a driver scan.
// Only Int and String equality is pushed; other types compare differently
// across backends.
func (c *Condition) Pushable() bool {
	if c.Mode != query.ModeDefault || (c.typ != schema.Int && c.typ != schema.String) {
		return false
	}
	return (c.Op == query.OpEquals && c.value != nil) || c.Op == query.OpIn
}

// Values returns the operand list for equals and in.
func (c *Condition) Values() []any {
	if c.Op == query.OpIn {
		return c.values
	}
	return []any{c.value}
}

func (c *Condition) equal(a, b any) bool {
	return c.compare(a, b) == 0
}

func (c *Condition) compare(a, b any) int {
	if c.Mode == query.ModeInsensitive {
		as, aok := a.(string)
		bs, bok := b.(string)
		if aok && bok {
			return strings.Compare(strings.ToLower(as), strings.ToLower(bs))
		}
	}
	return schema.Compare(a, b)
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
