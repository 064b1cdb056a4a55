// Package driver defines the storage contract the engine runs on. A driver
// stores rows of canonical values keyed by field name and answers equality
// scans; filtering, ordering and relation resolution happen above it.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Row maps field names to canonical values (int64, float64, string,
// time.Time in UTC, canonical JSON text or nil).
type Row map[string]any

// Clone returns a shallow copy; canonical values are immutable.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the surrogate key of the row.
func (r Row) ID() int64 {
	id, _ := r["id"].(int64)
	return id
}

// Cond restricts a scan to rows whose field equals one of Values. An empty
// Values list matches nothing.
type Cond struct {
	Field  string
	Values []any
}

type Scan struct {
	Entity string
	Conds  []Cond
}

type InsertOptions struct {
	// OnConflictDoNothing skips rows that would violate a unique constraint.
	OnConflictDoNothing bool
}

// Executor is the set of row operations available both on the driver and
// inside a transaction session.
type Executor interface {
	// Scan returns the rows matching every condition, ordered by id.
	Scan(ctx context.Context, scan Scan) ([]Row, error)
	// Insert stores row and returns it with its generated id. inserted is
	// false when the row was skipped because of OnConflictDoNothing.
	Insert(ctx context.Context, entity string, row Row, opts InsertOptions) (stored Row, inserted bool, err error)
	// Update merges values into the row with the given id and returns the
	// stored result, or ErrRowNotFound.
	Update(ctx context.Context, entity string, id int64, values Row) (Row, error)
	// Delete removes the rows with the given ids and reports how many existed.
	Delete(ctx context.Context, entity string, ids []int64) (int64, error)
}

type IsolationLevel string

const (
	IsolationDefault         IsolationLevel = ""
	IsolationReadUncommitted IsolationLevel = "ReadUncommitted"
	IsolationReadCommitted   IsolationLevel = "ReadCommitted"
	IsolationRepeatableRead  IsolationLevel = "RepeatableRead"
	IsolationSerializable    IsolationLevel = "Serializable"
)

// ParseIsolationLevel accepts the level names case-insensitively.
func ParseIsolationLevel(value string) (IsolationLevel, error) {
	for _, level := range []IsolationLevel{
		IsolationDefault,
		IsolationReadUncommitted,
		IsolationReadCommitted,
		IsolationRepeatableRead,
		IsolationSerializable,
	} {
		if strings.EqualFold(string(level), strings.TrimSpace(value)) {
			return level, nil
		}
	}
	return IsolationDefault, fmt.Errorf("unsupported isolation level %q", value)
}

type TxOptions struct {
	Isolation IsolationLevel
	// MaxWait bounds how long Begin may wait to acquire the transaction.
	MaxWait time.Duration
}

type Driver interface {
	Executor
	Begin(ctx context.Context, opts TxOptions) (Session, error)
	Close() error
}

// Session is an open transaction. After Commit or Rollback every method
// returns ErrSessionClosed.
type Session interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

var (
	ErrRowNotFound     = errors.New("row not found")
	ErrSessionClosed   = errors.New("transaction session closed")
	ErrBeginTimeout    = errors.New("timed out waiting to begin transaction")
	ErrUniqueViolation = errors.New("unique constraint violated")
)

// ConstraintError reports a unique constraint violation. Constraint and
// Fields are empty when the backend did not say which constraint failed.
type ConstraintError struct {
	Entity     string
	Constraint string
	Fields     []string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("%s: unique constraint violated", e.Entity)
	}
	return fmt.Sprintf("%s: unique constraint %s violated on (%s)", e.Entity, e.Constraint, strings.Join(e.Fields, ", "))
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrUniqueViolation
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}
