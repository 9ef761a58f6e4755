package errors

import (
	"errors"
	"net/http"
)

// known is ordered most specific first; ReasonOf and StatusOf walk it with errors.Is.
var known = []error{
	ErrArgument,
	ErrBadRequest,
	ErrUnauthorized,
	ErrForbidden,
	ErrNotFound,
	ErrConflict,
	ErrGrantInvalid,
	ErrGrantUnauthorized,
	ErrKeyNotFound,
	ErrCharacterNotSpecified,
	ErrCharacterNotFound,
	ErrUserBanned,
	ErrCyclicReference,
	ErrStillReferenced,
	ErrUpstream,
	ErrBlacklist,
	ErrInvalidRequest,
	ErrInvalidClient,
	ErrInvalidGrant,
	ErrInvalidScope,
	ErrUnsupportedGrantType,
	ErrUnsupportedResponseType,
	ErrAccessDenied,
}

// StatusCodes maps reasons to HTTP statuses. Reasons absent here are reported
// inside a 200 body with success=false.
var StatusCodes = map[error]int{
	ErrArgument:                http.StatusBadRequest,
	ErrBadRequest:              http.StatusBadRequest,
	ErrUnauthorized:            http.StatusUnauthorized,
	ErrForbidden:               http.StatusForbidden,
	ErrNotFound:                http.StatusNotFound,
	ErrConflict:                http.StatusConflict,
	ErrCyclicReference:         http.StatusConflict,
	ErrStillReferenced:         http.StatusConflict,
	ErrBlacklist:               http.StatusBadRequest,
	ErrInvalidRequest:          http.StatusBadRequest,
	ErrInvalidClient:           http.StatusUnauthorized,
	ErrInvalidGrant:            http.StatusBadRequest,
	ErrInvalidScope:            http.StatusBadRequest,
	ErrUnsupportedGrantType:    http.StatusBadRequest,
	ErrUnsupportedResponseType: http.StatusBadRequest,
	ErrAccessDenied:            http.StatusForbidden,
}

// Descriptions for the OAuth2 errors, returned as error_description.
var Descriptions = map[error]string{
	ErrInvalidRequest:          "The request is missing a required parameter, includes an invalid parameter value, or is otherwise malformed",
	ErrInvalidClient:           "Client authentication failed",
	ErrInvalidGrant:            "The provided authorization grant or refresh token is invalid, expired, revoked or was issued to another client",
	ErrInvalidScope:            "The requested scope is invalid, unknown, or exceeds the scope granted by the resource owner",
	ErrUnsupportedGrantType:    "The authorization grant type is not supported by the authorization server",
	ErrUnsupportedResponseType: "The authorization server does not support obtaining an authorization code using this method",
	ErrAccessDenied:            "The resource owner or authorization server denied the request",
}

// Response is the JSON body of every failed API call.
type Response struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// Sentinel returns the taxonomy sentinel err wraps, or nil.
func Sentinel(err error) error {
	for _, k := range known {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// ReasonOf returns the caller-facing reason string; unknown errors report fallback.
func ReasonOf(err error, fallback error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	if s := Sentinel(err); s != nil {
		return s.Error()
	}
	return fallback.Error()
}

// StatusOf returns the HTTP status for err. Unknown errors are 500.
func StatusOf(err error) int {
	s := Sentinel(err)
	if s == nil {
		return http.StatusInternalServerError
	}
	if code, ok := StatusCodes[s]; ok {
		return code
	}
	return http.StatusOK
}

// NewResponse builds the failure body for err.
func NewResponse(err error, fallback error) Response {
	r := Response{Reason: ReasonOf(err, fallback)}
	var e *Error
	if errors.As(err, &e) {
		r.Message = e.Message
	}
	return r
}
