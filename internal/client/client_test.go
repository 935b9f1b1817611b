package client_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/formsync/internal/client"
	"github.com/TheMichaelB/formsync/internal/crypto"
	"github.com/TheMichaelB/formsync/internal/models"
	"github.com/TheMichaelB/formsync/test/testutil"
)

func TestNewRequiresKey(t *testing.T) {
	cfg := testutil.TestConfigWithDir(t.TempDir())
	cfg.Security.EncryptionKey = ""

	_, err := client.New(context.Background(), cfg, testutil.NewTestLogger())

	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "security.encryption_key", cfgErr.Key)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestNewUnknownDriver(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := testutil.TestConfigWithDir(t.TempDir())
	cfg.Security.EncryptionKey = key
	cfg.Database.Driver = "oracle"

	_, err = client.New(context.Background(), cfg, testutil.NewTestLogger())
	assert.Error(t, err)
}

func TestClientLifecycle(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()
	server.AddForm(testutil.TestProjectID, testutil.SampleForm("household"), testutil.SampleSubmissions("household", 4))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := testutil.TestConfigWithDir(t.TempDir())
	cfg.Security.EncryptionKey = key

	ctx, cancel := testutil.TestContext()
	defer cancel()

	c, err := client.New(ctx, cfg, testutil.NewTestLogger())
	require.NoError(t, err)

	_, err = c.Sync.Connect(ctx, testutil.TestProjectID, testutil.SampleCredentials(server))
	require.NoError(t, err)

	result, err := c.Sync.SyncOnce(ctx, testutil.TestProjectID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FormsSynced)
	assert.Equal(t, 4, result.SubmissionsSynced)

	n, err := c.Documents().Count(ctx, models.CollectionSubmissions)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	families, err := c.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	require.NoError(t, c.Close(ctx))
}

func TestConnectDoesNotRetryValidation(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()
	server.FailPath("/v1/projects", http.StatusServiceUnavailable)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := testutil.TestConfigWithDir(t.TempDir())
	cfg.Security.EncryptionKey = key
	cfg.API.MaxRetries = 3
	cfg.API.RetryDelay = time.Millisecond

	ctx, cancel := testutil.TestContext()
	defer cancel()

	c, err := client.New(ctx, cfg, testutil.NewTestLogger())
	require.NoError(t, err)
	defer c.Close(ctx)

	_, err = c.Sync.Connect(ctx, testutil.TestProjectID, testutil.SampleCredentials(server))

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, models.ReasonAuthFailed, verr.Reason)
	assert.Equal(t, 1, server.RequestCount("/v1/projects"))
}
