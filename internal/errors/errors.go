// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. The bridge, the cursors and the backends all report
// failures through E so callers can branch on the Kind instead of matching strings.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ProtocolMisuse indicates the caller broke the request cycle contract,
	// e.g. starting a second request while one is pending.
	ProtocolMisuse Kind = "protocol_misuse"
	// NotReady indicates results were read while a request cycle is still open.
	NotReady Kind = "not_ready"
	// NoData indicates a wait elapsed or a cycle finished without any response.
	NoData Kind = "no_data"
	// BackendFailure carries a failure reported by the backend.
	BackendFailure Kind = "backend_failure"
	// Closed indicates a cursor was used after it was closed or finished.
	Closed Kind = "closed"
	// InvalidColumn indicates a bad column definition, index or name.
	InvalidColumn Kind = "invalid_column"
	// Unsupported indicates a statement the backend cannot execute.
	Unsupported Kind = "unsupported"
	// Transport indicates a failure talking to a remote backend.
	Transport Kind = "transport"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is and errors.As.
func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf is New with a format string.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *E
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
