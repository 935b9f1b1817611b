package remote

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/TheMichaelB/formsync/internal/models"
	"github.com/TheMichaelB/formsync/internal/transport"
)

// Client exposes the form-collection API for one set of credentials.
type Client struct {
	transport transport.Transport
	creds     models.Credentials
}

// NewClient binds creds to a transport. Credentials are canonicalized.
func NewClient(t transport.Transport, creds models.Credentials) *Client {
	return &Client{
		transport: t,
		creds:     creds.Canonical(),
	}
}

// ProjectID returns the bound project.
func (c *Client) ProjectID() string {
	return c.creds.ProjectID
}

// ListProjects fetches every project visible to the account.
func (c *Client) ListProjects(ctx context.Context) ([]models.Document, error) {
	var projects []models.Document
	if err := c.get(ctx, "/v1/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject fetches the bound project.
func (c *Client) GetProject(ctx context.Context) (models.Document, error) {
	var project models.Document
	if err := c.get(ctx, c.projectPath(), nil, &project); err != nil {
		return nil, err
	}
	return project, nil
}

// ListForms fetches the project's forms.
func (c *Client) ListForms(ctx context.Context) ([]models.Document, error) {
	var forms []models.Document
	if err := c.get(ctx, c.projectPath()+"/forms", nil, &forms); err != nil {
		return nil, err
	}
	return forms, nil
}

// GetForm fetches a single form by xmlFormId.
func (c *Client) GetForm(ctx context.Context, formID string) (models.Document, error) {
	var form models.Document
	if err := c.get(ctx, c.formPath(formID), nil, &form); err != nil {
		return nil, err
	}
	return form, nil
}

// ListSubmissions fetches a form's submissions, restricted to those newer
// than since when it is non-nil.
func (c *Client) ListSubmissions(ctx context.Context, formID string, since *time.Time) ([]models.Document, error) {
	var query url.Values
	if since != nil {
		query = url.Values{"since": []string{since.UTC().Format(time.RFC3339)}}
	}

	var submissions []models.Document
	if err := c.get(ctx, c.formPath(formID)+"/submissions", query, &submissions); err != nil {
		return nil, err
	}
	return submissions, nil
}

func (c *Client) projectPath() string {
	return "/v1/projects/" + url.PathEscape(c.creds.ProjectID)
}

func (c *Client) formPath(formID string) string {
	return c.projectPath() + "/forms/" + url.PathEscape(formID)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	err := c.transport.GetJSON(ctx, transport.Request{
		BaseURL:  c.creds.BaseURL,
		Path:     path,
		Query:    query,
		Username: c.creds.Username,
		Password: c.creds.Password,
	}, out)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}
