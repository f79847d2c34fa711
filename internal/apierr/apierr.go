// Package apierr maps the error kinds in §7 to HTTP status codes and the
// {error:{message,type}} wire shape every failed request returns.
package apierr

import "net/http"

// Kind is one of §7's closed set of machine-readable error types.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid_request_error"
	KindNotFound           Kind = "not_found"
	KindToolInvocationBlocked Kind = "tool_invocation_blocked"
	KindConfigurationError Kind = "configuration_error"
	KindAPIError           Kind = "api_error"
)

// Error is a user-visible API error, convertible to {error:{message,type}}.
type Error struct {
	Kind    Kind
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Message }

// Body is the wire shape written to the response.
type Body struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (e *Error) Body() Body {
	var b Body
	b.Error.Message = e.Message
	b.Error.Type = string(e.Kind)
	return b
}

func InvalidRequest(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message, Status: http.StatusBadRequest}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Status: http.StatusNotFound}
}

func ToolInvocationBlocked(denyReason string) *Error {
	return &Error{Kind: KindToolInvocationBlocked, Message: denyReason, Status: http.StatusForbidden}
}

func ConfigurationError(message string) *Error {
	return &Error{Kind: KindConfigurationError, Message: message, Status: http.StatusInternalServerError}
}

func APIError(message string, status int) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &Error{Kind: KindAPIError, Message: message, Status: status}
}
