package testutil

import (
	"bytes"
	"fmt"
	"time"

	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/models"
)

// Default account accepted by TestServer.
const (
	TestUsername  = "collector@example.org"
	TestPassword  = "correct horse"
	TestProjectID = "7"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// SampleCredentials returns credentials valid against server.
func SampleCredentials(server *TestServer) models.Credentials {
	return models.Credentials{
		BaseURL:   server.URL + "/",
		Username:  TestUsername,
		Password:  TestPassword,
		ProjectID: TestProjectID,
	}
}

// SampleForm builds a remote form document.
func SampleForm(xmlFormID string) models.Document {
	return models.Document{
		"xmlFormId": xmlFormID,
		"name":      "Form " + xmlFormID,
		"version":   "1",
		"state":     "open",
		"createdAt": "2024-01-10T08:00:00.000Z",
	}
}

// SampleSubmissions builds n remote submission documents for a form.
func SampleSubmissions(xmlFormID string, n int) []models.Document {
	subs := make([]models.Document, n)
	for i := range subs {
		subs[i] = models.Document{
			"instanceId":  fmt.Sprintf("uuid:%s-%d", xmlFormID, i),
			"submitterId": float64(i + 1),
			"reviewState": nil,
			"createdAt":   time.Date(2024, 2, 1, 10, i, 0, 0, time.UTC).Format(time.RFC3339),
		}
	}
	return subs
}
