package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error produced by the core matches exactly one of these
// through errors.Is, in addition to its underlying cause.
var (
	ErrNotFound          = errors.New("not found")
	ErrSecurityViolation = errors.New("security violation")
	ErrProvider          = errors.New("provider failure")
	ErrIO                = errors.New("io failure")
	ErrCorruptRecord     = errors.New("corrupt record")
	ErrValidation        = errors.New("validation error")
	ErrProvenance        = errors.New("provenance embedding failed")
	ErrPartialCascade    = errors.New("records removed, files could not be removed")
	ErrConflict          = errors.New("conflict")
)

// OpError identifies which operation failed and on which entity.
type OpError struct {
	Kind   error  // one of the Err* kinds above
	Op     string // e.g. "save", "load", "resolve"
	Entity string // e.g. "card", "project", "image"
	ID     string
	Err    error
}

func (e *OpError) Error() string {
	parts := make([]string, 0, 4)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Entity != "" {
		if e.ID != "" {
			parts = append(parts, fmt.Sprintf("%s %q", e.Entity, e.ID))
		} else {
			parts = append(parts, e.Entity)
		}
	}
	msg := strings.Join(parts, " ")
	kind := "error"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	if msg != "" {
		msg = kind + ": " + msg
	} else {
		msg = kind
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *OpError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap tags err with an error kind and the operation context.
func Wrap(kind error, op, entity, id string, err error) error {
	return &OpError{Kind: kind, Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorrupt reports whether err carries a CorruptRecord error.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptRecord)
}
