package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies operation failures.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	KindTransport
	KindHTTPStatus
	KindDecoding
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http-status"
	case KindDecoding:
		return "decoding"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	ErrCancelled         = fmt.Errorf("operation cancelled")
	ErrNilURL            = fmt.Errorf("request URL cannot be nil")
	ErrNoTransport       = fmt.Errorf("no transport configured")
	ErrEmptyPayload      = fmt.Errorf("downloaded payload is empty")
	ErrBodyOverflow      = fmt.Errorf("received more data than the declared content length")
	ErrDuplicateResponse = fmt.Errorf("response already received")
)

// Error is the failure delivered to completion callbacks.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsCancelled reports whether err means the operation was stopped rather than failed.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindHTTPStatus {
		return fe.StatusCode
	}
	return 0
}

func cancelledError() *Error {
	return &Error{Kind: KindCancelled, Err: ErrCancelled}
}

func statusError(code int) *Error {
	return &Error{Kind: KindHTTPStatus, StatusCode: code}
}

func decodingError(err error) *Error {
	return &Error{Kind: KindDecoding, Err: err}
}

// classify turns whatever a transport returned into an *Error.
func classify(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: KindTransport, Err: err}
}
