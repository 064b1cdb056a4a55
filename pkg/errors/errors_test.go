package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, publicMsg: "record not found", detailsOK: true},
		{code: CodeConstraint, publicMsg: "constraint violated", detailsOK: true},
		{code: CodeUnknownRequest, publicMsg: "unknown request error"},
		{code: CodeInitialization, publicMsg: "storage unavailable", retryable: true},
		{code: CodeTxTimeout, publicMsg: "transaction timed out", retryable: true, detailsOK: true},
		{code: CodeTxClosed, publicMsg: "transaction already closed"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToUnknownRequest(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.PublicMessage != "unknown request error" {
		t.Fatalf("expected unknown request metadata, got %q", meta.PublicMessage)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConstraint, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConstraint {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if got := Newf(CodeNotFound, "no %s", "shop").Message(); got != "no shop" {
		t.Fatalf("unexpected formatted message %q", got)
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNotFound, "no entry"))
	if got := As(err); got == nil || got.Code() != CodeNotFound {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
	if !IsNotFound(err) || IsValidation(err) || IsConstraint(err) {
		t.Fatalf("predicate helpers disagree with code")
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknownRequest {
		t.Fatalf("untyped errors should report unknown request")
	}
}

func TestDumpIncludesPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "Shop_name_key", TableName: "shops", Message: "duplicate key value"}
	err := Wrap(CodeConstraint, pgErr, "unique constraint failed").WithDetails(map[string]any{"constraint": "Shop_name_key"})

	d := Dump(err)
	if d.Code != CodeConstraint {
		t.Fatalf("expected constraint code, got %s", d.Code)
	}
	if d.SQL == nil || d.SQL.State != "23505" || d.SQL.Constraint != "Shop_name_key" || d.SQL.Table != "shops" {
		t.Fatalf("unexpected sql diagnosis %+v", d.SQL)
	}
	if len(d.Causes) != 2 {
		t.Fatalf("expected two causes, got %d", len(d.Causes))
	}
	if Dump(nil).Message != "" {
		t.Fatalf("dump of nil should be empty")
	}
}

func TestDumpWalksJoinedErrors(t *testing.T) {
	err := stdErrors.Join(stdErrors.New("close driver"), stdErrors.New("close redis"))

	d := Dump(err)
	if d.SQL != nil {
		t.Fatalf("plain errors carry no sql diagnosis")
	}
	if len(d.Causes) != 3 {
		t.Fatalf("expected joined error and both parts, got %v", d.Causes)
	}
}
