package session

import "errors"

// Kind classifies a session failure so the transport layer can pick a status
// without inspecting internals. Messages on Error are client-safe; wrapped
// causes are for logs only.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuth
	KindUpload
)

type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func errValidation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func errConflict(message string) error {
	return &Error{Kind: KindConflict, Message: message}
}

func errNotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func errAuth(message string) error {
	return &Error{Kind: KindAuth, Message: message}
}

func errUpload(message string, cause error) error {
	return &Error{Kind: KindUpload, Message: message, cause: cause}
}

func errInternal(cause error) error {
	return &Error{Kind: KindInternal, Message: "internal error", cause: cause}
}

// KindOf maps any error to its Kind; unclassified errors count as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for classified errors and a
// generic one otherwise, so raw internal detail never crosses the boundary.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "An internal error occurred"
}
