package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation   = "23505"
	sqliteUniquePrefix  = "UNIQUE constraint failed: "
	sqliteUniqueMessage = "UNIQUE constraint failed"
)

// Violation describes a unique constraint failure reported by the database.
// Postgres names the constraint; SQLite lists the offending columns.
type Violation struct {
	Constraint string
	Table      string
	Columns    []string
}

// UniqueViolation extracts what the backend reported about a unique
// violation. ok is false for any other error.
func UniqueViolation(err error) (Violation, bool) {
	if err == nil {
		return Violation{}, false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return Violation{}, false
		}
		return Violation{Constraint: pgErr.ConstraintName, Table: pgErr.TableName}, true
	}

	msg := err.Error()
	if idx := strings.Index(msg, sqliteUniquePrefix); idx >= 0 {
		var v Violation
		for _, part := range strings.Split(msg[idx+len(sqliteUniquePrefix):], ",") {
			table, column, found := strings.Cut(strings.TrimSpace(part), ".")
			if !found {
				continue
			}
			v.Table = table
			v.Columns = append(v.Columns, column)
		}
		return v, true
	}
	if strings.Contains(msg, sqliteUniqueMessage) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return Violation{}, true
	}
	return Violation{}, false
}

// IsUniqueViolation reports whether err is a unique violation. When
// constraintName is provided the violation must name that constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	v, ok := UniqueViolation(err)
	if !ok {
		return false
	}
	return constraintName == "" || v.Constraint == constraintName
}
