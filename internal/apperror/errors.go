package apperror

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable class of an engine error.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindPartyMismatch   Kind = "PARTY_MISMATCH"
	KindPosting         Kind = "POSTING_ERROR"
	KindAlreadyIncluded Kind = "ALREADY_INCLUDED"
	KindImmutableReturn Kind = "IMMUTABLE_RETURN"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindInternal        Kind = "INTERNAL"
)

// Sentinels matched through errors.Is against any *Error of the same kind.
var (
	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrPartyMismatch is returned when a document type and its party reference disagree.
	ErrPartyMismatch = errors.New("party does not match document type")

	// ErrPosting is returned for re-posting, missing account configuration or a lost posting race.
	ErrPosting = errors.New("ledger posting failed")

	// ErrAlreadyIncluded is returned when an invoice is already part of a challan.
	ErrAlreadyIncluded = errors.New("invoice already included in a challan")

	// ErrImmutableReturn is returned when a challan belongs to a filed return.
	ErrImmutableReturn = errors.New("return already filed")

	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("conflicting concurrent operation")
)

var sentinels = map[Kind]error{
	KindValidation:      ErrValidation,
	KindPartyMismatch:   ErrPartyMismatch,
	KindPosting:         ErrPosting,
	KindAlreadyIncluded: ErrAlreadyIncluded,
	KindImmutableReturn: ErrImmutableReturn,
	KindNotFound:        ErrNotFound,
	KindConflict:        ErrConflict,
}

// Error carries a stable Kind plus human-readable detail.
type Error struct {
	// Kind is the taxonomy entry.
	Kind Kind

	// Op is the operation that failed (e.g. "PostInvoice", "GenerateChallan").
	Op string

	// Field names the offending input field for validation failures.
	Field string

	// Detail is the human-readable message.
	Detail string

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel as well as the wrapped cause.
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Kind]; ok && s == target {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind
	}
	return false
}

func newError(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func NewValidationError(op, field, detail string) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Detail: detail}
}

func NewPartyMismatchError(op, detail string) *Error {
	return newError(KindPartyMismatch, op, detail)
}

func NewPostingError(op, detail string) *Error {
	return newError(KindPosting, op, detail)
}

func NewAlreadyIncludedError(op, detail string) *Error {
	return newError(KindAlreadyIncluded, op, detail)
}

func NewImmutableReturnError(op, detail string) *Error {
	return newError(KindImmutableReturn, op, detail)
}

func NewNotFoundError(op, detail string) *Error {
	return newError(KindNotFound, op, detail)
}

// NewConflictError wraps a cause such as a failed distributed lock.
func NewConflictError(op, detail string, err error) *Error {
	e := newError(KindConflict, op, detail)
	e.Err = err
	return e
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
