package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TheMichaelB/formsync/internal/config"
	"github.com/TheMichaelB/formsync/internal/models"
)

// LogEntry represents a captured log entry for testing
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"msg"`
}

// RecordedRequest is one request seen by TestServer.
type RecordedRequest struct {
	Path  string
	Query url.Values
}

type testProject struct {
	forms       []models.Document
	submissions map[string][]models.Document
}

// TestServer is an in-process stand-in for the remote form service.
type TestServer struct {
	*httptest.Server
	mu       sync.RWMutex
	users    map[string]string
	projects map[string]*testProject
	failures map[string]int
	requests []RecordedRequest
}

// NewTestServer creates a server with the default account and an empty
// TestProjectID project.
func NewTestServer() *TestServer {
	ts := &TestServer{
		users:    map[string]string{TestUsername: TestPassword},
		projects: make(map[string]*testProject),
		failures: make(map[string]int),
	}
	ts.AddProject(TestProjectID)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/projects", ts.handleProjects)
	mux.HandleFunc("GET /v1/projects/{id}", ts.handleProject)
	mux.HandleFunc("GET /v1/projects/{id}/forms", ts.handleForms)
	mux.HandleFunc("GET /v1/projects/{id}/forms/{formId}", ts.handleForm)
	mux.HandleFunc("GET /v1/projects/{id}/forms/{formId}/submissions", ts.handleSubmissions)

	ts.Server = httptest.NewServer(ts.authenticate(mux))
	return ts
}

// AddProject registers an empty project.
func (ts *TestServer) AddProject(id string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.projects[id] = &testProject{submissions: make(map[string][]models.Document)}
}

// AddForm adds a form and its submissions to a project.
func (ts *TestServer) AddForm(projectID string, form models.Document, submissions []models.Document) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	p := ts.projects[projectID]
	p.forms = append(p.forms, form)
	if id, ok := form.StringField(models.FieldXMLFormID); ok {
		p.submissions[id] = append(p.submissions[id], submissions...)
	}
}

// FailPath makes every request for path answer with status.
// A zero status clears the failure.
func (ts *TestServer) FailPath(path string, status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if status == 0 {
		delete(ts.failures, path)
		return
	}
	ts.failures[path] = status
}

// Requests returns every request received so far.
func (ts *TestServer) Requests() []RecordedRequest {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]RecordedRequest, len(ts.requests))
	copy(out, ts.requests)
	return out
}

// RequestCount counts requests for path.
func (ts *TestServer) RequestCount(path string) int {
	n := 0
	for _, r := range ts.Requests() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (ts *TestServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests = append(ts.requests, RecordedRequest{Path: r.URL.Path, Query: r.URL.Query()})
		status, failing := ts.failures[r.URL.Path]
		ts.mu.Unlock()

		user, pass, ok := r.BasicAuth()
		ts.mu.RLock()
		expected, known := ts.users[user]
		ts.mu.RUnlock()
		if !ok || !known || expected != pass {
			writeError(w, http.StatusUnauthorized, "Could not authenticate with the provided credentials.")
			return
		}

		if failing {
			writeError(w, status, http.StatusText(status))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (ts *TestServer) handleProjects(w http.ResponseWriter, r *http.Request) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	projects := make([]models.Document, 0, len(ts.projects))
	for id := range ts.projects {
		projects = append(projects, models.Document{"id": id, "name": "Project " + id})
	}
	writeJSON(w, projects)
}

func (ts *TestServer) handleProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if ts.project(id) == nil {
		writeError(w, http.StatusNotFound, "Could not find the resource you were looking for.")
		return
	}
	writeJSON(w, models.Document{"id": id, "name": "Project " + id})
}

func (ts *TestServer) handleForms(w http.ResponseWriter, r *http.Request) {
	p := ts.project(r.PathValue("id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "Could not find the resource you were looking for.")
		return
	}

	ts.mu.RLock()
	defer ts.mu.RUnlock()
	forms := p.forms
	if forms == nil {
		forms = []models.Document{}
	}
	writeJSON(w, forms)
}

func (ts *TestServer) handleForm(w http.ResponseWriter, r *http.Request) {
	p := ts.project(r.PathValue("id"))
	formID := r.PathValue("formId")

	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if p != nil {
		for _, f := range p.forms {
			if id, _ := f.StringField(models.FieldXMLFormID); id == formID {
				writeJSON(w, f)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "Could not find the resource you were looking for.")
}

func (ts *TestServer) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	p := ts.project(r.PathValue("id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "Could not find the resource you were looking for.")
		return
	}

	ts.mu.RLock()
	defer ts.mu.RUnlock()
	subs := p.submissions[r.PathValue("formId")]
	if subs == nil {
		subs = []models.Document{}
	}
	writeJSON(w, subs)
}

func (ts *TestServer) project(id string) *testProject {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.projects[id]
}

// TestTimeout provides timeout context for tests.
func TestTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// TestContext creates a test context with reasonable timeout.
func TestContext() (context.Context, context.CancelFunc) {
	return TestTimeout(30 * time.Second)
}

// TestConfigWithDir creates a test configuration rooted at dataDir with
// short sync intervals.
func TestConfigWithDir(dataDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dataDir
	cfg.Database.DSN = filepath.Join(dataDir, "formsync.db")
	cfg.DocStore.Path = filepath.Join(dataDir, "documents.db")
	cfg.API.Timeout = 5 * time.Second
	cfg.API.ValidateTimeout = 5 * time.Second
	cfg.Sync.Interval = 50 * time.Millisecond
	cfg.Sync.PausedPollInterval = 10 * time.Millisecond
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	cfg.Log.Color = false
	return cfg
}

// WaitForCondition waits for a condition to be true with timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if condition() {
			return
		}
		select {
		case <-timer.C:
			t.Fatalf("Timeout waiting for condition: %s", message)
		case <-ticker.C:
		}
	}
}

// LogOutput captures JSON log output for testing.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write implements io.Writer to capture log output.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	var entry LogEntry
	if err := json.Unmarshal(p, &entry); err == nil {
		lo.mu.Lock()
		lo.entries = append(lo.entries, entry)
		lo.mu.Unlock()
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	entries := make([]LogEntry, len(lo.entries))
	copy(entries, lo.entries)
	return entries
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	for _, entry := range lo.Entries() {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    float64(status),
		"message": message,
	})
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
