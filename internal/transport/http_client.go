package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/TheMichaelB/formsync/internal/config"
	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/models"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// HTTPClient handles HTTP communication with the remote service.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	logger    *events.Logger

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		logger:     logger.WithField("component", "http_client"),
	}
}

// GetJSON sends an authenticated GET request and decodes the response.
func (c *HTTPClient) GetJSON(ctx context.Context, r Request, out interface{}) error {
	target := r.URL()

	c.logger.WithFields(map[string]interface{}{
		"method": http.MethodGet,
		"url":    target,
	}).Debug("Sending request")

	var body []byte
	err := c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return permanent(fmt.Errorf("create request: %w", err))
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.SetBasicAuth(r.Username, r.Password)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return permanent(&NetworkError{URL: target, Err: ctx.Err()})
			}
			return &NetworkError{URL: target, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			apiErr := newAPIError(resp.StatusCode, target, snippet)
			if c.isRetryable(resp.StatusCode) {
				return apiErr
			}
			return permanent(apiErr)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &NetworkError{URL: target, Err: fmt.Errorf("read response: %w", err)}
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.WithFields(map[string]interface{}{
		"url":  target,
		"size": len(body),
	}).Debug("Received response")

	if out == nil {
		return nil
	}
	// Numbers stay json.Number so large identifiers survive decoding.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse response from %s: %w", target, err)
	}
	return nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// retry executes fn with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Debug("Retrying request")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
				delay *= 2
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		var stop *permanentError
		if errors.As(err, &stop) {
			return stop.err
		}
		lastErr = err
	}

	if c.maxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func (c *HTTPClient) isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		(status >= 500 && status < 600)
}

// permanentError short-circuits retry.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// remoteError is the error body shape used by the remote service.
type remoteError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

func newAPIError(status int, target string, body []byte) *models.APIError {
	apiErr := &models.APIError{
		Code:       codeForStatus(status),
		Message:    http.StatusText(status),
		StatusCode: status,
		URL:        target,
	}

	var remote remoteError
	if err := json.Unmarshal(body, &remote); err == nil && remote.Message != "" {
		apiErr.Message = remote.Message
	} else if len(body) > 0 {
		apiErr.Message = string(body)
	}
	return apiErr
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.ErrCodeAuth
	case status == http.StatusNotFound:
		return models.ErrCodeNotFound
	case status >= 500:
		return models.ErrCodeServer
	default:
		return models.ErrCodeValidation
	}
}
