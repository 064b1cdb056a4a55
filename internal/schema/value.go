package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
)

// Invalid builds the validation error used for every request problem that
// can be detected against the registry.
func Invalid(entity, field, format string, args ...any) *pkgerrors.Error {
	reason := fmt.Sprintf(format, args...)
	msg := reason
	if field != "" {
		msg = fmt.Sprintf("%s.%s: %s", entity, field, reason)
	} else if entity != "" {
		msg = fmt.Sprintf("%s: %s", entity, reason)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{
		"entity": entity,
		"field":  field,
		"reason": reason,
	})
}

// Coerce converts v to the canonical representation of the field type:
// int64, float64, string, UTC time.Time or canonical JSON text. nil stays nil.
func (f *Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		if f.Type != JSON {
			return f.Coerce(rv.Elem().Interface())
		}
	}

	switch f.Type {
	case Int:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u := rv.Uint()
			if u > math.MaxInt64 {
				return nil, fmt.Errorf("value %d overflows Int", u)
			}
			return int64(u), nil
		case reflect.Float32, reflect.Float64:
			fv := rv.Float()
			if fv != math.Trunc(fv) || math.IsInf(fv, 0) || math.IsNaN(fv) {
				return nil, fmt.Errorf("value %v is not an integer", fv)
			}
			return int64(fv), nil
		}
	case Float:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint()), nil
		case reflect.Float32, reflect.Float64:
			fv := rv.Float()
			if math.IsInf(fv, 0) || math.IsNaN(fv) {
				return nil, fmt.Errorf("value %v is not a finite number", fv)
			}
			return fv, nil
		}
	case String:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case DateTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, fmt.Errorf("value %q is not an RFC 3339 timestamp", t)
			}
			return parsed.UTC(), nil
		}
	case JSON:
		return CanonicalJSON(v)
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, f.Type)
}

// CanonicalJSON renders v as compact JSON with sorted object keys.
// json.RawMessage and []byte are taken as already-encoded JSON.
func CanonicalJSON(v any) (string, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode json: %w", err)
		}
		raw = encoded
	}
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return "", fmt.Errorf("invalid json: %w", err)
	}
	out, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(out), nil
}

// Compare orders two canonical values of the same field type. nil sorts
// before everything else.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return cmpOrdered(av, bv)
		case float64:
			return cmpOrdered(float64(av), bv)
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return cmpOrdered(av, bv)
		case int64:
			return cmpOrdered(av, float64(bv))
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Equal reports whether two canonical values are the same.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Output converts a canonical value into what a result record carries.
func (f *Field) Output(v any) any {
	if v == nil {
		return nil
	}
	if f.Type == JSON {
		if s, ok := v.(string); ok {
			return json.RawMessage(s)
		}
	}
	return v
}
