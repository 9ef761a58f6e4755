package errors

import "errors"

// Taxonomy reasons returned to relying parties.
var (
	ErrArgument              = errors.New("argument")
	ErrBadRequest            = errors.New("bad-request")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not-found")
	ErrConflict              = errors.New("conflict")
	ErrGrantInvalid          = errors.New("grant.invalid")
	ErrGrantUnauthorized     = errors.New("grant.unauthorized")
	ErrKeyNotFound           = errors.New("key.notfound")
	ErrCharacterNotSpecified = errors.New("character.notspecified")
	ErrCharacterNotFound     = errors.New("character.notfound")
	ErrUserBanned            = errors.New("user.banned")
	ErrCyclicReference       = errors.New("cyclic-reference")
	ErrStillReferenced       = errors.New("still-referenced")
	ErrUpstream              = errors.New("eve.unknown")
	ErrBlacklist             = errors.New("blacklist")
)

// OAuth2 token endpoint errors (RFC 6749 section 5.2).
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrAccessDenied            = errors.New("access_denied")
)

// Error attaches a caller-facing reason or message to one of the sentinel errors.
type Error struct {
	Err     error
	Reason  string
	Message string
}

func (e *Error) Error() string {
	r := e.Reason
	if r == "" && e.Err != nil {
		r = e.Err.Error()
	}
	if e.Message != "" {
		return r + ": " + e.Message
	}
	return r
}

func (e *Error) Unwrap() error { return e.Err }

// WithMessage keeps the identity of err for Is while carrying a detail message.
func WithMessage(err error, msg string) error {
	return &Error{Err: err, Message: msg}
}

// MissingArgument reports a required caller argument that was not supplied.
func MissingArgument(name string) error {
	return &Error{Err: ErrArgument, Reason: "argument." + name + ".missing"}
}

// MalformedArgument reports a caller argument that could not be parsed.
func MalformedArgument(name, msg string) error {
	return &Error{Err: ErrArgument, Reason: "argument." + name + ".malformed", Message: msg}
}

// New, Is and As re-export the standard helpers so callers need a single import.
func New(text string) error { return errors.New(text) }

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
