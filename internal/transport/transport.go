package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Transport performs authenticated requests against the remote service.
type Transport interface {
	// GetJSON issues a GET and decodes a 2xx JSON body into out.
	// Non-2xx responses return *models.APIError, network failures *NetworkError.
	GetJSON(ctx context.Context, req Request, out interface{}) error

	// Close releases idle connections.
	Close() error
}

// Request addresses one remote resource with basic auth.
type Request struct {
	BaseURL  string
	Path     string
	Query    url.Values
	Username string
	Password string
}

// URL returns the absolute request URL.
func (r Request) URL() string {
	u := r.BaseURL + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

// NetworkError is returned when no HTTP response was received.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a connectivity failure.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
