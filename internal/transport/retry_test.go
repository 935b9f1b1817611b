package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/formsync/internal/events"
)

func newRetryClient(maxRetries int, delay time.Duration) *HTTPClient {
	var buf bytes.Buffer
	return &HTTPClient{
		maxRetries: maxRetries,
		retryDelay: delay,
		logger:     events.NewTestLogger(events.DebugLevel, "json", &buf),
	}
}

func TestRetryWithBackoff(t *testing.T) {
	attempts := 0
	startTime := time.Now()
	client := newRetryClient(3, 20*time.Millisecond)

	err := client.retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// Delays: 20ms + 40ms
	assert.GreaterOrEqual(t, time.Since(startTime), 60*time.Millisecond)
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	attempts := 0
	client := newRetryClient(5, 100*time.Millisecond)

	err := client.retry(ctx, func() error {
		attempts++
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.LessOrEqual(t, attempts, 3)
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	client := newRetryClient(2, time.Millisecond)
	persistent := errors.New("persistent error")

	err := client.retry(context.Background(), func() error {
		attempts++
		return persistent
	})

	assert.ErrorIs(t, err, persistent)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 3, attempts)
}

func TestRetryPermanentErrorStops(t *testing.T) {
	attempts := 0
	client := newRetryClient(5, time.Millisecond)
	fatal := errors.New("bad request")

	err := client.retry(context.Background(), func() error {
		attempts++
		return permanent(fatal)
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryDisabled(t *testing.T) {
	attempts := 0
	client := newRetryClient(0, time.Millisecond)
	flaky := errors.New("flaky")

	err := client.retry(context.Background(), func() error {
		attempts++
		return flaky
	})

	assert.Same(t, flaky, err)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	client := newRetryClient(0, time.Millisecond)

	assert.True(t, client.isRetryable(429))
	assert.True(t, client.isRetryable(500))
	assert.True(t, client.isRetryable(503))
	assert.False(t, client.isRetryable(401))
	assert.False(t, client.isRetryable(404))
}
