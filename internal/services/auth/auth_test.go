package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/formsync/internal/config"
	"github.com/TheMichaelB/formsync/internal/models"
	"github.com/TheMichaelB/formsync/internal/services/auth"
	"github.com/TheMichaelB/formsync/internal/transport"
	"github.com/TheMichaelB/formsync/test/testutil"
)

func newService(probeFormID string) *auth.Service {
	logger := testutil.NewTestLogger()
	cfg := &config.APIConfig{Timeout: 5 * time.Second, UserAgent: "formsync-test"}
	return auth.NewService(transport.NewHTTPClient(cfg, logger), 5*time.Second, probeFormID, logger)
}

func reasonOf(t *testing.T, err error) models.ValidationReason {
	t.Helper()
	var validationErr *models.ValidationError
	require.True(t, errors.As(err, &validationErr), "expected ValidationError, got %v", err)
	return validationErr.Reason
}

func TestValidateSuccess(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()
	server.AddForm(testutil.TestProjectID, testutil.SampleForm("malnutrition_test_v1"), nil)

	err := newService("malnutrition_test_v1").Validate(context.Background(), testutil.SampleCredentials(server))
	require.NoError(t, err)

	assert.Equal(t, 1, server.RequestCount("/v1/projects"))
	assert.Equal(t, 1, server.RequestCount("/v1/projects/7"))
	assert.Equal(t, 1, server.RequestCount("/v1/projects/7/forms/malnutrition_test_v1"))
}

func TestValidateProbeFormIsBestEffort(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()

	err := newService("missing_form").Validate(context.Background(), testutil.SampleCredentials(server))
	assert.NoError(t, err)
	assert.Equal(t, 1, server.RequestCount("/v1/projects/7/forms/missing_form"))
}

func TestValidateProbeDisabled(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()

	require.NoError(t, newService("").Validate(context.Background(), testutil.SampleCredentials(server)))
	assert.Len(t, server.Requests(), 2)
}

func TestValidateMissingFields(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()

	creds := testutil.SampleCredentials(server)
	creds.Password = ""

	err := newService("").Validate(context.Background(), creds)

	assert.Equal(t, models.ReasonMissingField, reasonOf(t, err))
	assert.Empty(t, server.Requests(), "no network call for missing fields")
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*testutil.TestServer, *models.Credentials)
		reason models.ValidationReason
		class  models.ErrorClass
	}{
		{
			name: "wrong password",
			setup: func(_ *testutil.TestServer, c *models.Credentials) {
				c.Password = "wrong"
			},
			reason: models.ReasonInvalidCredentials,
			class:  models.ClassRemote,
		},
		{
			name: "server error on auth probe",
			setup: func(s *testutil.TestServer, _ *models.Credentials) {
				s.FailPath("/v1/projects", http.StatusInternalServerError)
			},
			reason: models.ReasonAuthFailed,
			class:  models.ClassRemote,
		},
		{
			name: "unknown project",
			setup: func(_ *testutil.TestServer, c *models.Credentials) {
				c.ProjectID = "999"
			},
			reason: models.ReasonProjectNotFound,
			class:  models.ClassBadInput,
		},
		{
			name: "forbidden project",
			setup: func(s *testutil.TestServer, _ *models.Credentials) {
				s.FailPath("/v1/projects/7", http.StatusForbidden)
			},
			reason: models.ReasonProjectLookupFailed,
			class:  models.ClassRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewTestServer()
			defer server.Close()

			creds := testutil.SampleCredentials(server)
			tt.setup(server, &creds)

			err := newService("").Validate(context.Background(), creds)

			assert.Equal(t, tt.reason, reasonOf(t, err))
			assert.Equal(t, tt.class, models.Classify(err))
		})
	}
}

func TestValidateConnectivity(t *testing.T) {
	server := testutil.NewTestServer()
	creds := testutil.SampleCredentials(server)
	server.Close()

	err := newService("").Validate(context.Background(), creds)

	assert.Equal(t, models.ReasonConnectivity, reasonOf(t, err))
}

func TestValidateMockTransport(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse("/v1/projects", []models.Document{})
	mock.AddResponse("/v1/projects/3", models.Document{"id": 3})

	svc := auth.NewService(mock, time.Second, "", testutil.NewTestLogger())
	err := svc.Validate(context.Background(), models.Credentials{
		BaseURL:   "https://central.example.org//",
		Username:  "u",
		Password:  "p",
		ProjectID: "3",
	})

	require.NoError(t, err)
	require.Len(t, mock.Requests, 2)
	assert.Equal(t, "https://central.example.org", mock.Requests[0].BaseURL)
}
