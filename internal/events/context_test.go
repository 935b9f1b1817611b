package events_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/formsync/internal/events"
)

func TestFromContext(t *testing.T) {
	logger := events.FromContext(context.Background())
	assert.NotNil(t, logger)
}

func TestWithLogger(t *testing.T) {
	logger := events.NewTestLogger(events.InfoLevel, "text", &bytes.Buffer{})

	ctx := events.WithLogger(context.Background(), logger)

	assert.Same(t, logger, events.FromContext(ctx))
}

func TestWithProjectID(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "json", &buf))

	ctx = events.WithProjectID(ctx, "project-7")
	ctx = events.WithRunID(ctx, "run-1")

	assert.Equal(t, "project-7", events.GetProjectID(ctx))
	assert.Equal(t, "run-1", events.GetRunID(ctx))

	events.FromContext(ctx).Info("tagged")
	assert.Contains(t, buf.String(), `"project_id":"project-7"`)
	assert.Contains(t, buf.String(), `"run_id":"run-1"`)
}

func TestContextIDsEmpty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, events.GetProjectID(ctx))
	assert.Empty(t, events.GetRunID(ctx))
}

func TestSetDefault(t *testing.T) {
	previous := events.Default()
	t.Cleanup(func() { events.SetDefault(previous) })

	custom := events.NewTestLogger(events.DebugLevel, "text", &bytes.Buffer{})
	events.SetDefault(custom)

	assert.Same(t, custom, events.FromContext(context.Background()))
}
