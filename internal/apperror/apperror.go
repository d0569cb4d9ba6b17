// Package apperror defines the typed error taxonomy shared by the HTTP
// facade and the session engine, mirroring the original service's
// CoreException: every error carries a Kind the caller can switch on instead
// of pattern-matching message strings.
package apperror

import (
	"fmt"

	"github.com/mdobak/go-xerrors"
)

// Kind classifies an apperror.Error for the HTTP boundary and the consumer
// loop's "log and skip" policy.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedRequest
	KindNotFound
	KindInvalidSampleType
	KindMalformedSamples
	KindSearchFailed
	KindMethodNotAllowed
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "MalformedRequest"
	case KindNotFound:
		return "NotFound"
	case KindInvalidSampleType:
		return "InvalidSampleType"
	case KindMalformedSamples:
		return "MalformedSamples"
	case KindSearchFailed:
		return "SearchFailed"
	case KindMethodNotAllowed:
		return "MethodNotAllowed"
	default:
		return "Unknown"
	}
}

// Error is the wire-facing error type. It wraps an xerrors-produced cause so
// a stack trace survives for logging, while Message is what the HTTP
// facade/consumer loop actually reports.
type Error struct {
	kind    Kind
	Message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, Message: message, cause: xerrors.New(message)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, Message: message, cause: xerrors.Wrap(cause, message)}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf extracts the Kind from err, defaulting to KindUnknown when err
// isn't (or doesn't wrap) an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if asError(err, &appErr) {
		return appErr.kind
	}
	return KindUnknown
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// NotFoundf builds a KindNotFound error, formatted like fmt.Errorf.
func NotFoundf(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// MalformedRequestf builds a KindMalformedRequest error.
func MalformedRequestf(format string, args ...any) *Error {
	return New(KindMalformedRequest, fmt.Sprintf(format, args...))
}

// InvalidSampleTypef builds a KindInvalidSampleType error.
func InvalidSampleTypef(format string, args ...any) *Error {
	return New(KindInvalidSampleType, fmt.Sprintf(format, args...))
}

// MalformedSamplesf builds a KindMalformedSamples error.
func MalformedSamplesf(format string, args ...any) *Error {
	return New(KindMalformedSamples, fmt.Sprintf(format, args...))
}

// SearchFailedf builds a KindSearchFailed error.
func SearchFailedf(format string, args ...any) *Error {
	return New(KindSearchFailed, fmt.Sprintf(format, args...))
}

// MethodNotAllowedf builds a KindMethodNotAllowed error.
func MethodNotAllowedf(format string, args ...any) *Error {
	return New(KindMethodNotAllowed, fmt.Sprintf(format, args...))
}
