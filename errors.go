package ident

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/ident/principal"
)

// Error classes. Every error returned by a Resolver matches exactly one of
// them via errors.Is.
var (
	// ErrNotFound is returned when the principal, connector mapping or domain
	// does not exist.
	ErrNotFound = errors.New("ident: not found")

	// ErrConflict is returned when a write would give a connector-local record
	// a second owner, or when the principal id is already taken.
	ErrConflict = errors.New("ident: conflict")

	// ErrValidation is returned when input is rejected before any write.
	ErrValidation = errors.New("ident: validation failed")

	// ErrStorage is returned for I/O or driver failures and for detected
	// inconsistencies in persisted data.
	ErrStorage = errors.New("ident: storage failure")
)

// Error carries the operation context of a resolver failure.
type Error struct {
	// Op is the resolver operation, one of the Op* constants.
	Op string

	// Kind is the principal namespace the operation ran against.
	Kind principal.Kind

	PrincipalID string
	ConnectorID string

	// Class is one of ErrNotFound, ErrConflict, ErrValidation, ErrStorage.
	Class error

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("ident: ")
	b.WriteString(string(e.Kind))
	b.WriteByte(' ')
	b.WriteString(e.Op)
	if e.PrincipalID != "" {
		b.WriteString(" principal=")
		b.WriteString(e.PrincipalID)
	}
	if e.ConnectorID != "" {
		b.WriteString(" connector=")
		b.WriteString(e.ConnectorID)
	}
	b.WriteString(": ")
	b.WriteString(strings.TrimPrefix(e.Class.Error(), "ident: "))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the class sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

// ClassOf returns the class sentinel err belongs to, or nil when err is nil.
// Errors that did not come from a Resolver are ErrStorage.
func ClassOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict):
		return ErrConflict
	default:
		return ErrStorage
	}
}

// classify maps a store error onto the resolver's error classes.
func classify(err error) error {
	switch {
	case errors.Is(err, principal.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, principal.ErrDuplicate), errors.Is(err, principal.ErrExists):
		return ErrConflict
	default:
		return ErrStorage
	}
}

// BulkFailure is one principal that CreateMany could not create.
type BulkFailure struct {
	// Index is the principal's position in the input slice.
	Index       int
	PrincipalID string
	Err         error
}

// BulkError reports the failed principals of a CreateMany call. Principals
// not listed were committed.
type BulkError struct {
	Total    int
	Failures []BulkFailure // ordered by Index
}

func (b *BulkError) Error() string {
	msg := fmt.Sprintf("ident: bulk create: %d of %d principals failed", len(b.Failures), b.Total)
	if len(b.Failures) > 0 {
		msg += ": " + b.Failures[0].Err.Error()
		if len(b.Failures) > 1 {
			msg += fmt.Sprintf(" (and %d more)", len(b.Failures)-1)
		}
	}
	return msg
}

// Unwrap lets errors.Is match the class of any failure.
func (b *BulkError) Unwrap() []error {
	errs := make([]error, len(b.Failures))
	for i, f := range b.Failures {
		errs[i] = f.Err
	}
	return errs
}
