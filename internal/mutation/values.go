package mutation

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
)

// coerce converts a written value to its canonical form and checks it.
func (m *Executor) coerce(entity *schema.Entity, f *schema.Field, raw any) (any, error) {
	v, err := f.Coerce(raw)
	if err != nil {
		return nil, schema.Invalid(entity.Name, f.Name, "%v", err)
	}
	return v, m.check(entity, f, v)
}

// check enforces nullability, enum membership and the validator tag.
func (m *Executor) check(entity *schema.Entity, f *schema.Field, v any) error {
	if v == nil {
		if !f.Nullable {
			return schema.Invalid(entity.Name, f.Name, "must not be null")
		}
		return nil
	}
	if len(f.Enum) > 0 {
		s, _ := v.(string)
		if !slices.Contains(f.Enum, s) {
			return schema.Invalid(entity.Name, f.Name, "must be one of %s", strings.Join(f.Enum, ", "))
		}
	}
	if f.Validate != "" {
		if err := m.validate.Var(v, f.Validate); err != nil {
			var errs validator.ValidationErrors
			if errors.As(err, &errs) && len(errs) > 0 {
				return schema.Invalid(entity.Name, f.Name, "%s", validationMessage(errs[0]))
			}
			return schema.Invalid(entity.Name, f.Name, "%v", err)
		}
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "latitude":
		return "must be a valid latitude"
	case "longitude":
		return "must be a valid longitude"
	}
	return "is invalid"
}

// atomic applies an update operator to the stored value. Arithmetic on a
// null value leaves it null.
func (m *Executor) atomic(entity *schema.Entity, f *schema.Field, current any, a query.Atomic) (any, error) {
	if a.Op == query.AtomicSet {
		return m.coerce(entity, f, a.Value)
	}
	operand, err := f.Coerce(a.Value)
	if err != nil {
		return nil, schema.Invalid(entity.Name, f.Name, "%v", err)
	}
	if operand == nil {
		return nil, schema.Invalid(entity.Name, f.Name, "%s operand must not be null", a.Op)
	}
	if current == nil {
		return nil, nil
	}

	var out any
	switch cur := current.(type) {
	case int64:
		n := operand.(int64)
		switch a.Op {
		case query.AtomicIncrement:
			out = cur + n
		case query.AtomicDecrement:
			out = cur - n
		case query.AtomicMultiply:
			out = cur * n
		case query.AtomicDivide:
			if n == 0 {
				return nil, schema.Invalid(entity.Name, f.Name, "division by zero")
			}
			out = cur / n
		}
	case float64:
		n := operand.(float64)
		switch a.Op {
		case query.AtomicIncrement:
			out = cur + n
		case query.AtomicDecrement:
			out = cur - n
		case query.AtomicMultiply:
			out = cur * n
		case query.AtomicDivide:
			if n == 0 {
				return nil, schema.Invalid(entity.Name, f.Name, "division by zero")
			}
			out = cur / n
		}
	default:
		return nil, schema.Invalid(entity.Name, f.Name, "stored value %T is not numeric", current)
	}
	return out, m.check(entity, f, out)
}
