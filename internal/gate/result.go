package gate

import (
	"net/http"

	"github.com/leleuj/authgate/internal/client"
)

// HTMLContentType is the content type of rendered error pages and provider
// challenges.
const HTMLContentType = "text/html; charset=utf-8"

// Result is the HTTP-level outcome of a gate invocation: a status, an
// optional redirect location, and an optional body.
type Result struct {
	Status      int
	Location    string
	ContentType string
	Body        []byte
}

// WriteTo renders the result onto a response writer.
func (res *Result) WriteTo(w http.ResponseWriter) {
	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	if res.Location != "" {
		w.Header().Set("Location", res.Location)
	}
	w.WriteHeader(res.Status)
	if len(res.Body) > 0 {
		_, _ = w.Write(res.Body)
	}
}

// ErrorPages holds the fixed content rendered for 401 and 403 outcomes.
// Injected at gate construction; there is no package-level page state.
type ErrorPages struct {
	Unauthorized string
	Forbidden    string
}

// DefaultErrorPages returns the built-in error page content.
func DefaultErrorPages() ErrorPages {
	return ErrorPages{
		Unauthorized: "<html><body><h1>401 - Unauthorized</h1></body></html>",
		Forbidden:    "<html><body><h1>403 - Forbidden</h1></body></html>",
	}
}

// Unauthorized builds the fixed 401 result.
func (g *Gate) Unauthorized() *Result {
	return &Result{
		Status:      http.StatusUnauthorized,
		ContentType: HTMLContentType,
		Body:        []byte(g.pages.Unauthorized),
	}
}

// Forbidden builds the fixed 403 result.
func (g *Gate) Forbidden() *Result {
	return &Result{
		Status:      http.StatusForbidden,
		ContentType: HTMLContentType,
		Body:        []byte(g.pages.Forbidden),
	}
}

func redirectResult(location string) *Result {
	return &Result{Status: http.StatusFound, Location: location}
}

func contentResult(content string) *Result {
	return &Result{
		Status:      http.StatusOK,
		ContentType: HTMLContentType,
		Body:        []byte(content),
	}
}

// actionResult maps a required HTTP action to a result. It is total over the
// supported codes; any other code is a fatal configuration error.
func (g *Gate) actionResult(action *client.HTTPAction) (*Result, error) {
	switch action.Code {
	case http.StatusUnauthorized:
		return g.Unauthorized(), nil
	case http.StatusForbidden:
		return g.Forbidden(), nil
	case http.StatusTemporaryRedirect:
		return redirectResult(action.Location), nil
	case http.StatusOK:
		return contentResult(action.Content), nil
	default:
		return nil, client.NewConfigError("unsupported HTTP action code %d", action.Code)
	}
}

// redirectActionResult maps a handshake-initiation action to a result.
func redirectActionResult(action *client.RedirectAction) (*Result, error) {
	switch action.Type {
	case client.RedirectActionRedirect:
		return redirectResult(action.Location), nil
	case client.RedirectActionSuccess:
		return contentResult(action.Content), nil
	default:
		return nil, client.NewConfigError("unsupported redirect action type %d", action.Type)
	}
}
