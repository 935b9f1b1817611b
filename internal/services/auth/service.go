package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/models"
	"github.com/TheMichaelB/formsync/internal/remote"
	"github.com/TheMichaelB/formsync/internal/transport"
)

// Service validates project credentials against the remote service
// before they are stored.
type Service struct {
	transport   transport.Transport
	timeout     time.Duration
	probeFormID string
	logger      *events.Logger
}

// NewService creates a validation service. An empty probeFormID disables
// the optional form probe.
func NewService(t transport.Transport, timeout time.Duration, probeFormID string, logger *events.Logger) *Service {
	return &Service{
		transport:   t,
		timeout:     timeout,
		probeFormID: probeFormID,
		logger:      logger.WithField("service", "auth"),
	}
}

// Validate checks field presence, then that the account can authenticate
// and that the project exists. Failures are *models.ValidationError.
func (s *Service) Validate(ctx context.Context, creds models.Credentials) error {
	creds = creds.Canonical()
	if err := creds.CheckFields(); err != nil {
		return err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"project_id": creds.ProjectID,
		"base_url":   creds.BaseURL,
		"username":   creds.Username,
	})
	logger.Info("Validating credentials")

	client := remote.NewClient(s.transport, creds)

	if _, err := client.ListProjects(ctx); err != nil {
		verr := classifyAuthError(err)
		logger.WithError(err).WithField("reason", string(verr.Reason)).Warn("Authentication probe failed")
		return verr
	}

	if _, err := client.GetProject(ctx); err != nil {
		verr := classifyProjectError(creds.ProjectID, err)
		logger.WithError(err).WithField("reason", string(verr.Reason)).Warn("Project probe failed")
		return verr
	}

	if s.probeFormID != "" {
		if _, err := client.GetForm(ctx, s.probeFormID); err != nil {
			logger.WithError(err).WithField("form_id", s.probeFormID).Warn("Probe form not accessible")
		} else {
			logger.WithField("form_id", s.probeFormID).Debug("Probe form accessible")
		}
	}

	logger.Info("Credentials validated")
	return nil
}

func classifyAuthError(err error) *models.ValidationError {
	var apiErr *models.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized:
		return &models.ValidationError{
			Reason:     models.ReasonInvalidCredentials,
			Message:    "invalid username or password",
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	case errors.As(err, &apiErr):
		return &models.ValidationError{
			Reason:     models.ReasonAuthFailed,
			Message:    fmt.Sprintf("authentication failed with status %d", apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	case transport.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded):
		return &models.ValidationError{
			Reason:  models.ReasonConnectivity,
			Message: "could not connect to server",
			Err:     err,
		}
	default:
		return &models.ValidationError{
			Reason:  models.ReasonAuthFailed,
			Message: "unexpected response from server",
			Err:     err,
		}
	}
}

func classifyProjectError(projectID string, err error) *models.ValidationError {
	var apiErr *models.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		return &models.ValidationError{
			Reason:     models.ReasonProjectNotFound,
			Message:    fmt.Sprintf("project %s not found", projectID),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	case errors.As(err, &apiErr):
		return &models.ValidationError{
			Reason:     models.ReasonProjectLookupFailed,
			Message:    fmt.Sprintf("project lookup failed with status %d", apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	case transport.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded):
		return &models.ValidationError{
			Reason:  models.ReasonConnectivity,
			Message: "could not connect to server",
			Err:     err,
		}
	default:
		return &models.ValidationError{
			Reason:  models.ReasonProjectLookupFailed,
			Message: "unexpected response from server",
			Err:     err,
		}
	}
}
