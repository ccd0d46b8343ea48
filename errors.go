package userauth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a business error for boundary mapping and
// logging.
type ErrorKind int

const (
	// KindValidation is malformed input, surfaced with detail.
	KindValidation ErrorKind = iota
	// KindConflict is a duplicate email or nickname.
	KindConflict
	// KindNotFound is an unknown account.
	KindNotFound
	// KindUnauthorized covers bad passwords, invalid/expired tokens and
	// invalid/expired verification codes.
	KindUnauthorized
	// KindForbidden is an inactive account.
	KindForbidden
	// KindCrypto is a transport-decryption failure; the caller only ever
	// sees the generic message, details go to the log.
	KindCrypto
	// KindInfrastructure is an unreachable store or mail relay; rendered
	// as a generic internal error.
	KindInfrastructure
)

// Error is a typed business error with a stable numeric code and a
// client-safe message. Anything not wrapped in *Error is treated as an
// infrastructure failure at the boundary.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes sentinel comparison work on wrapped copies: two *Error values
// match when kind and code agree.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithCause returns a copy of e carrying err for logging. The
// client-visible code and message are unchanged.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

// Business error catalogue. Codes follow the HTTP-like numbering the API
// envelope exposes.
var (
	ErrCodeInvalid          = &Error{Kind: KindUnauthorized, Code: 400, Message: "verification code invalid or expired"}
	ErrEmailTaken           = &Error{Kind: KindConflict, Code: 400, Message: "email already registered"}
	ErrNicknameTaken        = &Error{Kind: KindConflict, Code: 400, Message: "nickname already in use"}
	ErrCredentialUnreadable = &Error{Kind: KindCrypto, Code: 400, Message: "password decryption failed"}
	ErrAccountNotFound      = &Error{Kind: KindNotFound, Code: 404, Message: "account not found"}
	ErrPasswordIncorrect    = &Error{Kind: KindUnauthorized, Code: 401, Message: "incorrect password"}
	ErrAccountInactive      = &Error{Kind: KindForbidden, Code: 403, Message: "account not active"}
	ErrInternal             = &Error{Kind: KindInfrastructure, Code: 500, Message: "internal error"}
)

// NewValidationError builds a field-level validation error.
func NewValidationError(detail string) *Error {
	return &Error{Kind: KindValidation, Code: 400, Message: "validation failed: " + detail}
}

// AsBusiness extracts the *Error from err, if any.
func AsBusiness(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
