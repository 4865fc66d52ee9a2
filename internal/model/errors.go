package model

import (
	"errors"
	"fmt"
)

// Kind classifies failures of the sync pipeline.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindConfiguration Kind = "configuration"
	KindFetch         Kind = "fetch"
	KindStorage       Kind = "storage"
	KindExport        Kind = "export"
)

// Sentinels for errors.Is matching on kind.
var (
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrFetch         = &Error{Kind: KindFetch}
	ErrStorage       = &Error{Kind: KindStorage}
	ErrExport        = &Error{Kind: KindExport}
)

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Op == "":
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// NewError classifies err under kind. A nil err yields nil.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
