package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/metrics"
	"github.com/TheMichaelB/formsync/internal/models"
	"github.com/TheMichaelB/formsync/internal/state"
)

// Validator checks credentials against the remote service.
type Validator interface {
	Validate(ctx context.Context, creds models.Credentials) error
}

// CredentialEncrypter seals credentials for storage.
type CredentialEncrypter interface {
	Encrypt(creds models.Credentials) (string, error)
}

// ConnectResult describes a stored connection.
type ConnectResult struct {
	Record  *models.CredentialRecord
	Status  *models.SyncStatus
	Created bool
}

// Service is the control surface over credentials, status and sync tasks.
type Service struct {
	validator Validator
	vault     CredentialEncrypter
	state     state.Store
	registry  *Registry
	metrics   *metrics.Metrics
	logLimit  int
	logger    *events.Logger
}

// NewService creates a sync service.
func NewService(
	validator Validator,
	vault CredentialEncrypter,
	st state.Store,
	registry *Registry,
	m *metrics.Metrics,
	logLimit int,
	logger *events.Logger,
) *Service {
	if logLimit <= 0 {
		logLimit = state.DefaultLogLimit
	}

	return &Service{
		validator: validator,
		vault:     vault,
		state:     st,
		registry:  registry,
		metrics:   m,
		logLimit:  logLimit,
		logger:    logger.WithField("service", "sync"),
	}
}

// Connect validates creds, encrypts them and stores them for projectID.
// Nothing is stored when validation fails. A first connect creates an idle
// status; reconnecting replaces the credentials and keeps the status.
func (s *Service) Connect(ctx context.Context, projectID string, creds models.Credentials) (*ConnectResult, error) {
	creds = creds.Canonical()
	if creds.ProjectID == "" {
		creds.ProjectID = projectID
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if creds.ProjectID != projectID {
		return nil, &models.ValidationError{
			Reason:  models.ReasonProjectMismatch,
			Message: fmt.Sprintf("credentials are for project %s, not %s", creds.ProjectID, projectID),
		}
	}

	if err := s.validator.Validate(ctx, creds); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			s.metrics.Validation(string(verr.Reason))
		}
		return nil, err
	}
	s.metrics.Validation("")

	ciphertext, err := s.vault.Encrypt(creds)
	if err != nil {
		return nil, fmt.Errorf("encrypt credentials: %w", err)
	}

	rec, created, err := s.state.SaveCredentials(ctx, projectID, ciphertext)
	if err != nil {
		return nil, err
	}

	status, err := s.state.GetStatus(ctx, projectID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"project_id": projectID,
		"created":    created,
	}).Info("Project connected")

	return &ConnectResult{Record: rec, Status: status, Created: created}, nil
}

// Start begins syncing projectID.
func (s *Service) Start(ctx context.Context, projectID string) (*models.StatusSnapshot, error) {
	if _, err := s.registry.Start(ctx, projectID); err != nil {
		return nil, err
	}
	return s.GetStatus(ctx, projectID)
}

// Stop pauses syncing projectID.
func (s *Service) Stop(ctx context.Context, projectID string) (*models.StatusSnapshot, error) {
	if _, err := s.registry.Stop(ctx, projectID); err != nil {
		return nil, err
	}
	return s.GetStatus(ctx, projectID)
}

// Pause stops syncing projectID whether or not its loop lives in this
// process. Projects that are not syncing keep their status.
func (s *Service) Pause(ctx context.Context, projectID string) (*models.StatusSnapshot, error) {
	if _, err := s.registry.Pause(ctx, projectID); err != nil {
		return nil, err
	}
	return s.GetStatus(ctx, projectID)
}

// GetStatus returns the persisted status with live task membership.
func (s *Service) GetStatus(ctx context.Context, projectID string) (*models.StatusSnapshot, error) {
	st, err := s.state.GetStatus(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &models.StatusSnapshot{SyncStatus: *st, IsActive: s.registry.IsActive(projectID)}, nil
}

// ListLogs returns recent history, most recent first. A non-positive
// limit uses the configured default.
func (s *Service) ListLogs(ctx context.Context, projectID string, limit int) ([]models.LogEntry, error) {
	if limit <= 0 {
		limit = s.logLimit
	}
	return s.state.ListLogs(ctx, projectID, limit)
}

// ListAllStatuses returns every project's status.
func (s *Service) ListAllStatuses(ctx context.Context) ([]models.StatusSnapshot, error) {
	return s.registry.Snapshot(ctx)
}

// SyncOnce runs a single cycle now and records it in the history.
func (s *Service) SyncOnce(ctx context.Context, projectID string) (*CycleResult, error) {
	return s.registry.RunOnce(ctx, projectID)
}

// DeleteProject stops any live task and removes the project with its
// status and history.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	if err := s.registry.Remove(ctx, projectID); err != nil {
		return err
	}

	s.logger.WithField("project_id", projectID).Info("Project deleted")
	return nil
}

// Shutdown stops every live task without touching persisted status.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.registry.Shutdown(ctx)
}
