package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorDump is the log payload for a failed command.
type ErrorDump struct {
	Message string        `json:"message"`
	Code    Code          `json:"code,omitempty"`
	Details any           `json:"details,omitempty"`
	Causes  []string      `json:"causes,omitempty"`
	SQL     *SQLDiagnosis `json:"sql,omitempty"`
}

// SQLDiagnosis carries the server-side fields of a Postgres error.
type SQLDiagnosis struct {
	State      string `json:"state"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Dump flattens err for logging. Joined errors are walked depth first.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{Message: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Details = te.Details()
	}
	d.Causes = causes(err, nil)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		d.SQL = &SQLDiagnosis{
			State:      pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
			Message:    pgErr.Message,
		}
	}
	return d
}

func causes(err error, out []string) []string {
	if err == nil {
		return out
	}
	out = append(out, fmt.Sprintf("%T: %v", err, err))
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			out = causes(inner, out)
		}
		return out
	default:
		return causes(errors.Unwrap(err), out)
	}
}
