package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConstraint     Code = "CONSTRAINT_VIOLATION"
	CodeUnknownRequest Code = "UNKNOWN_REQUEST"
	CodeInitialization Code = "INITIALIZATION_ERROR"
	CodeTxTimeout      Code = "TRANSACTION_TIMEOUT"
	CodeTxClosed       Code = "TRANSACTION_CLOSED"
)

type Metadata struct {
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		Retryable:      false,
		PublicMessage:  "record not found",
		DetailsAllowed: true,
	},
	CodeConstraint: {
		Retryable:      false,
		PublicMessage:  "constraint violated",
		DetailsAllowed: true,
	},
	CodeUnknownRequest: {
		Retryable:      false,
		PublicMessage:  "unknown request error",
		DetailsAllowed: false,
	},
	CodeInitialization: {
		Retryable:      true,
		PublicMessage:  "storage unavailable",
		DetailsAllowed: false,
	},
	CodeTxTimeout: {
		Retryable:      true,
		PublicMessage:  "transaction timed out",
		DetailsAllowed: true,
	},
	CodeTxClosed: {
		Retryable:      false,
		PublicMessage:  "transaction already closed",
		DetailsAllowed: false,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeUnknownRequest]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknownRequest
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the outermost typed error in the chain, or
// CodeUnknownRequest when the chain carries none.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeUnknownRequest
}

func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

func IsConstraint(err error) bool { return hasCode(err, CodeConstraint) }

func hasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
