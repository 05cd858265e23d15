package client

import (
	"fmt"
	"net/http"
)

// HTTPAction is the HTTP-level outcome a client requires before
// authentication can proceed: render a challenge, redirect the browser to the
// identity provider, or reject the caller outright. It is a normal control
// signal of the handshake rather than an error, so client operations return
// it as an explicit value next to their result.
type HTTPAction struct {
	// Code is the HTTP status the gate must produce. Supported codes are
	// StatusUnauthorized, StatusForbidden, StatusTemporaryRedirect and StatusOK.
	Code int
	// Location carries the redirect target for StatusTemporaryRedirect.
	Location string
	// Content carries the response body for StatusOK challenges.
	Content string
}

// Unauthorized builds the action rejecting the caller with a 401.
func Unauthorized() *HTTPAction {
	return &HTTPAction{Code: http.StatusUnauthorized}
}

// Forbidden builds the action rejecting the caller with a 403.
func Forbidden() *HTTPAction {
	return &HTTPAction{Code: http.StatusForbidden}
}

// Redirect builds the action sending the browser to the given location.
func Redirect(location string) *HTTPAction {
	return &HTTPAction{Code: http.StatusTemporaryRedirect, Location: location}
}

// OK builds the action rendering provider-supplied content directly.
func OK(content string) *HTTPAction {
	return &HTTPAction{Code: http.StatusOK, Content: content}
}

// RedirectActionType discriminates the two shapes a handshake initiation can
// take: an HTTP redirect or inline content rendered as a 200 response.
type RedirectActionType int

const (
	// RedirectActionRedirect sends the browser to Location.
	RedirectActionRedirect RedirectActionType = iota + 1
	// RedirectActionSuccess renders Content with a 200 status.
	RedirectActionSuccess
)

// RedirectAction is produced by a client when the gate initiates a handshake
// on the stateful failure path.
type RedirectAction struct {
	Type     RedirectActionType
	Location string
	Content  string
}

// NewRedirect builds a redirect-type action to the given location.
func NewRedirect(location string) *RedirectAction {
	return &RedirectAction{Type: RedirectActionRedirect, Location: location}
}

// NewSuccess builds an inline-content action.
func NewSuccess(content string) *RedirectAction {
	return &RedirectAction{Type: RedirectActionSuccess, Content: content}
}

// ConfigError marks a fatal configuration problem: an unresolved client name,
// an unsupported action code, or a client used in a flow it cannot serve.
// It is never retried and never converted into an authentication failure.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}
