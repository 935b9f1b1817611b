package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/TheMichaelB/formsync/internal/models"
)

// MockTransport provides a mock implementation for testing.
// Responses and errors are keyed by request path.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration
	Responses map[string]interface{}
	Errors    map[string]error

	// Request tracking
	Requests []Request

	closed bool
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Responses: make(map[string]interface{}),
		Errors:    make(map[string]error),
	}
}

// GetJSON mocks an authenticated GET.
func (m *MockTransport) GetJSON(ctx context.Context, req Request, out interface{}) error {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	err, hasErr := m.Errors[req.Path]
	resp, hasResp := m.Responses[req.Path]
	m.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &NetworkError{URL: req.URL(), Err: ctxErr}
	}

	if hasErr {
		return err
	}

	if !hasResp {
		return &models.APIError{
			Code:       models.ErrCodeNotFound,
			Message:    fmt.Sprintf("no mock response for %s", req.Path),
			StatusCode: http.StatusNotFound,
			URL:        req.URL(),
		}
	}

	if out == nil {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal mock response: %w", err)
	}
	return json.Unmarshal(data, out)
}

// Close mocks connection closing.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// AddResponse registers a response for path.
func (m *MockTransport) AddResponse(path string, response interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[path] = response
}

// AddError registers an error for path.
func (m *MockTransport) AddError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[path] = err
}

// AddStatus registers an HTTP error status for path.
func (m *MockTransport) AddStatus(path string, status int) {
	m.AddError(path, &models.APIError{
		Code:       codeForStatus(status),
		Message:    http.StatusText(status),
		StatusCode: status,
	})
}

// RequestedPaths returns the paths requested so far, in order.
func (m *MockTransport) RequestedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, len(m.Requests))
	for i, r := range m.Requests {
		paths[i] = r.Path
	}
	return paths
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
