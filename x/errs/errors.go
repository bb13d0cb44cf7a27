package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies harness failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnreachable
	KindTimeout
	KindInvalidKey
	KindAssertionFailed
	KindMalformedCommand
	KindInvalidOrder
	KindMissingInput
	KindConfig
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindTimeout:
		return "timeout"
	case KindInvalidKey:
		return "invalid_key"
	case KindAssertionFailed:
		return "assertion_failed"
	case KindMalformedCommand:
		return "malformed_command"
	case KindInvalidOrder:
		return "invalid_order"
	case KindMissingInput:
		return "missing_input"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrUnreachable      = &Error{Kind: KindUnreachable}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrInvalidKey       = &Error{Kind: KindInvalidKey}
	ErrAssertionFailed  = &Error{Kind: KindAssertionFailed}
	ErrMalformedCommand = &Error{Kind: KindMalformedCommand}
	ErrInvalidOrder     = &Error{Kind: KindInvalidOrder}
	ErrMissingInput     = &Error{Kind: KindMissingInput}
	ErrConfig           = &Error{Kind: KindConfig}
)

// Error is a structured harness error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
	Context map[string]any
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithCause adds a cause error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithContext adds a key/value pair rendered in the message
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
