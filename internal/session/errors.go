package session

import (
	"errors"
	"fmt"
)

// Kind is the programmatic discriminant of a session error (spec.md §4.1).
type Kind int

const (
	KindSessionNotFound Kind = iota
	KindSessionNotReady
	KindSessionLimit
	KindSpawnFailed
	KindTimeout
	KindCommandFailed
	KindParseError
	KindInvalidArgument
	KindFileNotFound
	KindAttachFailed
	KindAlreadyRunning
	KindNotRunning
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindSessionNotFound:
		return "session_not_found"
	case KindSessionNotReady:
		return "session_not_ready"
	case KindSessionLimit:
		return "session_limit"
	case KindSpawnFailed:
		return "spawn_failed"
	case KindTimeout:
		return "timeout"
	case KindCommandFailed:
		return "command_failed"
	case KindParseError:
		return "parse_error"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindFileNotFound:
		return "file_not_found"
	case KindAttachFailed:
		return "attach_failed"
	case KindAlreadyRunning:
		return "already_running"
	case KindNotRunning:
		return "not_running"
	default:
		return "internal"
	}
}

// Error is the error type every component in this package returns. Every
// error carries a human-readable message; Kind is the programmatic
// discriminant a caller should switch on (spec.md §4.1). Grounded on
// agent-cli-wrapper/acp/errors.go's tagged-error-type-plus-sentinel shape.
type Error struct {
	Kind    Kind
	Message string
	Column  int // set for KindParseError when known, else -1
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind alone via a zero-message sentinel, e.g.
// errors.Is(err, &Error{Kind: KindTimeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Column: -1}
}

func wrapErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Column: -1, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, else
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Sentinels for the common cases callers compare against directly.
var (
	ErrSessionNotFound = &Error{Kind: KindSessionNotFound, Message: "session not found", Column: -1}
	ErrSessionNotReady = &Error{Kind: KindSessionNotReady, Message: "session not ready to accept commands", Column: -1}
	ErrAlreadyRunning  = &Error{Kind: KindAlreadyRunning, Message: "a command is already in flight for this session", Column: -1}
)
