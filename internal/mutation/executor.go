// Package mutation applies writes: single and batch creates, updates,
// upserts and deletes, nested relation writes, foreign key checks and the
// referential actions declared in the schema.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/loader"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
)

// Executor runs mutations against any driver.Executor. Multi-step writes
// are only atomic when exec is a transaction session; the caller owns that.
type Executor struct {
	reg      *schema.Registry
	loader   *loader.Loader
	validate *validator.Validate
	now      func() time.Time
}

func New(l *loader.Loader) *Executor {
	return &Executor{
		reg:      l.Registry(),
		loader:   l,
		validate: validator.New(),
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// WithClock replaces the time source used for createdAt and updatedAt.
func (m *Executor) WithClock(now func() time.Time) *Executor {
	m.now = now
	return m
}

// Locate returns the row identified by where or a NOT_FOUND error.
func (m *Executor) Locate(ctx context.Context, exec driver.Executor, entity *schema.Entity, where query.UniqueWhere) (driver.Row, error) {
	row, err := m.loader.FindUniqueRow(ctx, exec, entity, where)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, NotFound(entity.Name, where)
	}
	return row, nil
}

// NotFound reports a unique lookup that matched no row.
func NotFound(entity string, where query.UniqueWhere) *pkgerrors.Error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "no %s record matches the given unique where", entity).
		WithDetails(map[string]any{"entity": entity, "where": map[string]any(where)})
}

// ForeignKeyName is the conventional name of the foreign key behind a
// to-one relation.
func ForeignKeyName(entity string, field string) string {
	return entity + "_" + field + "_fkey"
}

func foreignKeyError(entity string, rel *schema.Relation, format string, args ...any) *pkgerrors.Error {
	name := ForeignKeyName(entity, rel.Field)
	return pkgerrors.Newf(pkgerrors.CodeConstraint, "foreign key constraint %s failed: %s", name, fmt.Sprintf(format, args...)).
		WithDetails(map[string]any{
			"constraint": name,
			"fields":     []string{rel.Field},
			"kind":       "foreign_key",
		})
}

// driverError translates the typed failures a driver reports on writes.
// Anything else is returned unchanged for the caller to classify.
func driverError(entity *schema.Entity, id int64, err error) error {
	var ce *driver.ConstraintError
	switch {
	case errors.As(err, &ce):
		fields := ce.Fields
		if fields == nil {
			fields = []string{}
		}
		msg := "unique constraint failed"
		if ce.Constraint != "" {
			msg = fmt.Sprintf("unique constraint %s failed", ce.Constraint)
		}
		return pkgerrors.Wrap(pkgerrors.CodeConstraint, err, msg).WithDetails(map[string]any{
			"constraint": ce.Constraint,
			"fields":     fields,
			"kind":       "unique",
		})
	case errors.Is(err, driver.ErrRowNotFound):
		return NotFound(entity.Name, query.ByID(id))
	}
	return err
}

func (m *Executor) entity(name string) *schema.Entity {
	e, ok := m.reg.Entity(name)
	if !ok {
		panic(fmt.Sprintf("mutation: registry has no entity %q", name))
	}
	return e
}

// touch refreshes updatedAt unless the caller set it explicitly.
func (m *Executor) touch(entity *schema.Entity, values driver.Row) {
	for _, f := range entity.Fields() {
		if f.Auto != schema.AutoUpdatedAt {
			continue
		}
		if _, set := values[f.Name]; !set {
			values[f.Name] = m.now()
		}
	}
}

func (m *Executor) setColumn(ctx context.Context, exec driver.Executor, entity *schema.Entity, id int64, field string, value any) error {
	values := driver.Row{field: value}
	m.touch(entity, values)
	if _, err := exec.Update(ctx, entity.Name, id, values); err != nil {
		return driverError(entity, id, err)
	}
	return nil
}

func anyIDs(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
