package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeIntegrity     Code = "INTEGRITY_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeGateway       Code = "PAYMENT_GATEWAY_ERROR"
)

// Class groups codes by how a caller should react to them.
type Class string

const (
	// ClassValidation is rejected input; nothing was mutated.
	ClassValidation Class = "validation"
	// ClassConflict is well-formed input the current state refuses (stock, order status, mixed sellers).
	ClassConflict Class = "conflict"
	// ClassExternal is a payment gateway or infrastructure failure; the core never retries it.
	ClassExternal Class = "external"
	// ClassIntegrity is an unauthenticated or untrusted payload.
	ClassIntegrity Class = "integrity"
	ClassFatal     Class = "fatal"
)

type Metadata struct {
	HTTPStatus     int
	Class          Class
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, ClassValidation, false, "validation failed", true},
	CodeUnauthorized:  {http.StatusUnauthorized, ClassValidation, false, "authentication required", false},
	CodeForbidden:     {http.StatusForbidden, ClassValidation, false, "access denied", false},
	CodeNotFound:      {http.StatusNotFound, ClassValidation, false, "resource not found", false},
	CodeConflict:      {http.StatusConflict, ClassConflict, false, "conflict detected", false},
	CodeStateConflict: {http.StatusUnprocessableEntity, ClassConflict, false, "state transition disallowed", true},
	CodeIdempotency:   {http.StatusConflict, ClassConflict, false, "idempotency key reused", true},
	CodeRateLimit:     {http.StatusTooManyRequests, ClassConflict, false, "rate limit exceeded", false},
	CodeIntegrity:     {http.StatusBadRequest, ClassIntegrity, false, "payload rejected", false},
	CodeInternal:      {http.StatusInternalServerError, ClassFatal, true, "internal server error", false},
	CodeDependency:    {http.StatusServiceUnavailable, ClassExternal, true, "dependency unavailable", true},
	CodeGateway:       {http.StatusBadGateway, ClassExternal, false, "payment provider error", false},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service returns; controllers map it to a status.
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
		return CodeInternal
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
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// ClassOf classifies err; untyped errors are fatal.
func ClassOf(err error) Class {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.Code()).Class
	}
	return ClassFatal
}

// StatusOf is the HTTP status for err; untyped errors map to 500.
func StatusOf(err error) int {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.Code()).HTTPStatus
	}
	return http.StatusInternalServerError
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
