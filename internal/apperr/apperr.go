// internal/apperr/apperr.go
//
// Typed error taxonomy shared by every siteconf component.
//
// Context
// -------
// Callers need a stable, machine-readable kind so the HTTP layer can pick a
// status code and a generic message without parsing error strings.  Each
// *Error carries:
//
//   - Kind  – one of the constants below; never shown with internal detail.
//   - Msg   – short user-safe message.
//   - Op    – logical operation, e.g. "auth.Login", for logs only.
//   - Err   – wrapped cause, for logs only.
//
// Notes
// -----
//   - Use KindOf(err) instead of type switches; it unwraps via errors.As.
//   - Errors that carry no *Error are treated as KindUpstream.
//   - Oxford commas, two spaces after periods.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable error class reported to callers.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
	KindPartial    Kind = "partial_failure"
)

// Error is the concrete error type for the taxonomy.
type Error struct {
	Kind Kind
	Msg  string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.message(), e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.message())
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.message(), e.Err)
	}
	return e.message()
}

func (e *Error) Unwrap() error { return e.Err }

// message falls back to a generic phrase so Msg may be left empty.
func (e *Error) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return defaultMessage(e.Kind)
}

// Public returns the message that may be shown to an end user.
func (e *Error) Public() string { return e.message() }

// Constructors.  Each takes the op first so log lines read naturally.

func Auth(op, msg string) *Error { return &Error{Kind: KindAuth, Op: op, Msg: msg} }

func Validation(op, msg string) *Error { return &Error{Kind: KindValidation, Op: op, Msg: msg} }

func NotFound(op, msg string) *Error { return &Error{Kind: KindNotFound, Op: op, Msg: msg} }

func Conflict(op, msg string) *Error { return &Error{Kind: KindConflict, Op: op, Msg: msg} }

// Upstream wraps a MetadataStore or ObjectStore failure.  The cause is kept
// for logging; the public message stays generic.
func Upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// KindOf returns the Kind of err.  nil maps to "" and foreign errors map to
// KindUpstream.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// PublicMessage returns a user-safe message for any error.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Public()
	}
	return defaultMessage(KindUpstream)
}

// HTTPStatus maps a Kind to the response status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPartial:
		return http.StatusMultiStatus
	case KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func defaultMessage(k Kind) string {
	switch k {
	case KindAuth:
		return "authentication required"
	case KindValidation:
		return "invalid request"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "already exists"
	case KindPartial:
		return "some writes failed"
	case KindUpstream:
		return "storage unavailable"
	}
	return "internal error"
}
