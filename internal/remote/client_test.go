package remote_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/formsync/internal/models"
	"github.com/TheMichaelB/formsync/internal/remote"
	"github.com/TheMichaelB/formsync/internal/transport"
)

func testCreds() models.Credentials {
	return models.Credentials{
		BaseURL:   "https://central.example.org/",
		Username:  "collector",
		Password:  "pw",
		ProjectID: "4",
	}
}

func TestClientPaths(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse("/v1/projects", []models.Document{{"id": 4}})
	mock.AddResponse("/v1/projects/4", models.Document{"id": 4, "name": "Nutrition"})
	mock.AddResponse("/v1/projects/4/forms", []models.Document{{"xmlFormId": "a"}, {"xmlFormId": "b"}})
	mock.AddResponse("/v1/projects/4/forms/a", models.Document{"xmlFormId": "a"})
	mock.AddResponse("/v1/projects/4/forms/a/submissions", []models.Document{{"instanceId": "uuid:1"}})

	client := remote.NewClient(mock, testCreds())
	ctx := context.Background()

	projects, err := client.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	project, err := client.GetProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Nutrition", project["name"])

	forms, err := client.ListForms(ctx)
	require.NoError(t, err)
	assert.Len(t, forms, 2)

	_, err = client.GetForm(ctx, "a")
	require.NoError(t, err)

	subs, err := client.ListSubmissions(ctx, "a", nil)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	require.Len(t, mock.Requests, 5)
	for _, r := range mock.Requests {
		assert.Equal(t, "https://central.example.org", r.BaseURL)
		assert.Equal(t, "collector", r.Username)
		assert.Equal(t, "pw", r.Password)
	}
	assert.Empty(t, mock.Requests[4].Query)
}

func TestClientSubmissionsSince(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse("/v1/projects/4/forms/a/submissions", []models.Document{})

	since := time.Date(2024, 5, 1, 9, 0, 0, 0, time.FixedZone("EAT", 3*3600))
	_, err := remote.NewClient(mock, testCreds()).ListSubmissions(context.Background(), "a", &since)
	require.NoError(t, err)

	require.Len(t, mock.Requests, 1)
	assert.Equal(t, "2024-05-01T06:00:00Z", mock.Requests[0].Query.Get("since"))
}

func TestClientEscapesIdentifiers(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse("/v1/projects/4/forms/a%2Fb/submissions", []models.Document{})

	_, err := remote.NewClient(mock, testCreds()).ListSubmissions(context.Background(), "a/b", nil)
	require.NoError(t, err)
}

func TestClientWrapsErrors(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddStatus("/v1/projects/4/forms", http.StatusInternalServerError)

	_, err := remote.NewClient(mock, testCreds()).ListForms(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /v1/projects/4/forms")
	var apiErr *models.APIError
	assert.True(t, errors.As(err, &apiErr))
}
