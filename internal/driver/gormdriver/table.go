package gormdriver

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	gormschema "gorm.io/gorm/schema"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/schema"
	"github.com/angelmondragon/shopclient/pkg/db"
)

const (
	idField  = "id"
	idColumn = "id"
)

// table binds an entity to its model: each registry field to the struct
// field GORM parsed for the same column.
type table struct {
	entity *schema.Entity
	model  reflect.Type
	fields map[string]*gormschema.Field
}

func newTable(e *schema.Entity, sch *gormschema.Schema) (*table, error) {
	t := &table{entity: e, model: sch.ModelType, fields: make(map[string]*gormschema.Field)}
	for _, f := range e.Fields() {
		gf := sch.LookUpField(f.Column)
		if gf == nil || gf.DBName != f.Column {
			return nil, fmt.Errorf("model %s has no column %s for %s.%s", sch.Name, f.Column, e.Name, f.Name)
		}
		t.fields[f.Name] = gf
	}
	return t, nil
}

func (t *table) column(field string) (string, error) {
	gf, ok := t.fields[field]
	if !ok {
		return "", fmt.Errorf("%s has no field %q", t.entity.Name, field)
	}
	return gf.DBName, nil
}

func (t *table) newModel() reflect.Value {
	return reflect.New(t.model)
}

func (t *table) toRow(v reflect.Value) driver.Row {
	v = reflect.Indirect(v)
	row := make(driver.Row, len(t.fields))
	for name, gf := range t.fields {
		row[name] = canonical(v.FieldByIndex(gf.StructField.Index))
	}
	return row
}

func (t *table) assign(model reflect.Value, values driver.Row) error {
	v := model.Elem()
	for name, value := range values {
		gf, ok := t.fields[name]
		if !ok {
			return fmt.Errorf("%s has no field %q", t.entity.Name, name)
		}
		if err := set(v.FieldByIndex(gf.StructField.Index), value); err != nil {
			return fmt.Errorf("%s.%s: %w", t.entity.Name, name, err)
		}
	}
	return nil
}

// translate maps backend failures onto the driver error contract.
func (t *table) translate(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return driver.ErrSessionClosed
	}
	v, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	cerr := &driver.ConstraintError{Entity: t.entity.Name, Err: err}
	u, found := t.entity.UniqueByName(v.Constraint)
	if !found && len(v.Columns) > 0 {
		u, found = t.entity.UniqueByColumns(v.Columns)
	}
	if found {
		cerr.Constraint = u.Name
		cerr.Fields = u.Fields
	}
	return cerr
}

// canonical reads a model field as a row value.
func canonical(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.String:
		return v.String()
	}
	if ts, ok := v.Interface().(time.Time); ok {
		return ts.UTC()
	}
	return v.Interface()
}

func set(dst reflect.Value, value any) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(value)
	target := dst.Type()
	if target.Kind() == reflect.Pointer {
		if !convertible(src.Type(), target.Elem()) {
			return fmt.Errorf("cannot store %T as %s", value, target)
		}
		elem := reflect.New(target.Elem())
		elem.Elem().Set(src.Convert(target.Elem()))
		dst.Set(elem)
		return nil
	}
	if !convertible(src.Type(), target) {
		return fmt.Errorf("cannot store %T as %s", value, target)
	}
	dst.Set(src.Convert(target))
	return nil
}

// convertible rejects the integer to string conversion reflect allows.
func convertible(from, to reflect.Type) bool {
	if to.Kind() == reflect.String && from.Kind() != reflect.String {
		return false
	}
	return from.ConvertibleTo(to)
}
