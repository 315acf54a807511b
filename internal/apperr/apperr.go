// Package apperr defines the application's error taxonomy and the cause-chain
// formatting used when a handler or reconciler logs a failure instead of
// aborting.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for HTTP status mapping and retry policy.
type Kind string

const (
	KindStore        Kind = "store"
	KindOrchestrator Kind = "orchestrator"
	KindWebhook      Kind = "webhook"
	KindSourceForge  Kind = "source_forge"
	KindParse        Kind = "parse"
	KindInvalidInput Kind = "invalid_input"
	KindNotFound     Kind = "not_found"
)

// Error is the application's error type. It always carries a Kind and
// optionally wraps a cause, so errors.Is/errors.As and the standard
// fmt.Errorf("%w") chain both work.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error around an existing cause. If cause is nil, Wrap
// returns nil so callers can write `return apperr.Wrap(...)` inline after an
// `if err != nil` check without an extra branch.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HTTPStatus maps an error's Kind to an HTTP status code, per the taxonomy
// table: Store and Orchestrator errors surface as 500 except NotFound/
// Orchestrator-not-found which surface as 404; Parse and InvalidInput as 400;
// SourceForge as 502. Errors with no recognized Kind default to 500.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput, KindParse:
		return http.StatusBadRequest
	case KindSourceForge:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FormatChain renders err and every wrapped cause beneath it, one per line,
// prefixed "Caused by:" below the first line. Used for log output where the
// entire cause chain is wanted rather than just the top-level message.
func FormatChain(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(err.Error())
	cause := errors.Unwrap(err)
	for cause != nil {
		b.WriteString("\n  Caused by: ")
		b.WriteString(cause.Error())
		cause = errors.Unwrap(cause)
	}
	return b.String()
}
