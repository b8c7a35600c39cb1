package walletrpc

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed balance query. Kinds are stable and are
// what callers see once the error crosses the RPC boundary.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindUnavailable
	KindTimeout
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindNotFound:
		return "NotFound"
	case KindUnavailable:
		return "Unavailable"
	case KindTimeout:
		return "Timeout"
	case KindCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Error is a classified failure produced by the node client or the
// handler.
type Error struct {
	Kind Kind
	// Op names the operation that failed (e.g. "decode", "lookup").
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// AsError checks whether an error is an Error and returns it.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err. Unclassified errors are Internal,
// except bare context errors which keep their meaning.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindInternal
}

// Classify maps a BalanceSource outcome onto a Kind.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrUnknownKey):
		return KindNotFound
	case errors.Is(err, ErrBusy), errors.Is(err, ErrUnreachable):
		return KindUnavailable
	case errors.Is(err, ErrMalformedResponse):
		return KindInternal
	}
	return KindOf(err)
}
