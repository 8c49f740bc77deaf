package taxform

import (
	"errors"
	"fmt"
)

// ErrorKind categorises fill failures
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUnknownForm
	KindTemplateMissing
	KindInvalidPayload
	KindNoMappingForForm
	KindFillFailure
)

// String returns a string representation of the ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindUnknownForm:
		return "UNKNOWN_FORM"
	case KindTemplateMissing:
		return "TEMPLATE_MISSING"
	case KindInvalidPayload:
		return "INVALID_PAYLOAD"
	case KindNoMappingForForm:
		return "NO_MAPPING_FOR_FORM"
	case KindFillFailure:
		return "FILL_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Error is the structured error returned by every fill entry point
type Error struct {
	Kind    ErrorKind
	Form    string
	Message string
	Err     error
}

// Sentinels for errors.Is
var (
	ErrUnknownForm      = &Error{Kind: KindUnknownForm}
	ErrTemplateMissing  = &Error{Kind: KindTemplateMissing}
	ErrInvalidPayload   = &Error{Kind: KindInvalidPayload}
	ErrNoMappingForForm = &Error{Kind: KindNoMappingForForm}
	ErrFillFailure      = &Error{Kind: KindFillFailure}
)

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s]", e.Kind)
	if e.Form != "" {
		msg += " " + e.Form + ":"
	}
	if e.Message != "" {
		msg += " " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, form, message string, err error) *Error {
	return &Error{Kind: kind, Form: form, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
