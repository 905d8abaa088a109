package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorKind classifies domain errors so callers can branch on the kind
// instead of inspecting message text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindNotFound: a referenced receipt/reason/employee is missing. Surfaced
	// to the caller, never retried.
	KindNotFound
	// KindValidation: rejected before any write (bad state transition,
	// empty reason set, malformed payload).
	KindValidation
	// KindStorage: transient storage failure, propagated for the caller to
	// decide on retry.
	KindStorage
	// KindDelivery: per-recipient notification failure. Logged and retried
	// on the next dispatcher tick.
	KindDelivery
)

type DomainError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return e.Msg + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *DomainError) Unwrap() error { return e.Err }

func NotFoundError(format string, args ...any) error {
	return &DomainError{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...), Err: ErrorRecordNotFound}
}

func ValidationError(format string, args ...any) error {
	return &DomainError{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func StorageError(err error) error {
	if err == nil {
		return nil
	}
	return &DomainError{Kind: KindStorage, Msg: "storage failure", Err: err}
}

func DeliveryError(err error) error {
	if err == nil {
		return nil
	}
	return &DomainError{Kind: KindDelivery, Msg: "delivery failure", Err: err}
}

// KindOf returns the classification of err, unwrapping as needed. Errors
// wrapping the ErrorRecordNotFound sentinel map to KindNotFound.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrorRecordNotFound) {
		return KindNotFound
	}
	return KindUnknown
}
