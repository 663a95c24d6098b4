package access

import (
	"errors"
)

// Kind classifies a business failure of the access core.
type Kind string

const (
	KindNotFound          Kind = "NotFound"
	KindNotAllowed        Kind = "NotAllowed"
	KindInvalidCredential Kind = "InvalidCredential"
	KindMasterPinRequired Kind = "MasterPinRequired"
	KindInvalidMasterPin  Kind = "InvalidMasterPin"
	KindValidation        Kind = "ValidationError"
	KindInvalidOrExpired  Kind = "InvalidOrExpired"
)

// parent returns the broader kind k refines, or "".
func (k Kind) parent() Kind {
	switch k {
	case KindMasterPinRequired, KindInvalidMasterPin:
		return KindInvalidCredential
	default:
		return ""
	}
}

// Error is the typed failure returned by every core operation.
//
// Match on kind with errors.Is against the package sentinels:
//
//	if errors.Is(err, access.ErrNotAllowed) {
//	    // 403
//	}
//
// ErrInvalidCredential also matches its refinements MasterPinRequired and
// InvalidMasterPin.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Sentinels for errors.Is.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrNotAllowed        = &Error{Kind: KindNotAllowed}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential}
	ErrMasterPinRequired = &Error{Kind: KindMasterPinRequired}
	ErrInvalidMasterPin  = &Error{Kind: KindInvalidMasterPin}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInvalidOrExpired  = &Error{Kind: KindInvalidOrExpired}
)

func (e *Error) Error() string {
	if e.Op != "" {
		return e.Op + ": " + e.Description()
	}
	return e.Description()
}

// Description is the message without the operation prefix, suitable for
// API responses.
func (e *Error) Description() string {
	var msg string
	switch {
	case e.Message != "" && e.Err != nil:
		msg = e.Message + ": " + e.Err.Error()
	case e.Message != "":
		msg = e.Message
	case e.Err != nil:
		msg = e.Err.Error()
	default:
		msg = string(e.Kind)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, or of a kind refining it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind || (t.Kind != "" && e.Kind.parent() == t.Kind)
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func notFound(op string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}
