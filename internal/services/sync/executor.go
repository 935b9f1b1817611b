package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/TheMichaelB/formsync/internal/docstore"
	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/models"
	"github.com/TheMichaelB/formsync/internal/remote"
	"github.com/TheMichaelB/formsync/internal/state"
	"github.com/TheMichaelB/formsync/internal/transport"
)

// Cycle phases reported in *models.SyncCycleError.
const (
	PhaseCredentials = "credentials"
	PhaseStatus      = "status"
	PhaseForms       = "forms"
	PhaseStore       = "store"
)

// CredentialDecrypter opens stored credentials.
type CredentialDecrypter interface {
	Decrypt(ciphertext string) (models.Credentials, error)
}

// CycleRunner runs one fetch-and-upsert pass for a project.
type CycleRunner interface {
	RunCycle(ctx context.Context, projectID string) (*CycleResult, error)
}

// FormError is a per-form submission failure that did not abort the cycle.
type FormError struct {
	FormID string
	Err    error
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	FormsSynced       int
	SubmissionsSynced int
	FormErrors        []FormError
}

// Message is the history line for a successful cycle.
func (r *CycleResult) Message() string {
	return fmt.Sprintf("Successfully synced %d forms and %d submissions", r.FormsSynced, r.SubmissionsSynced)
}

// Executor mirrors a project's forms and submissions into the document store.
type Executor struct {
	state     state.Store
	docs      docstore.Store
	vault     CredentialDecrypter
	transport transport.Transport
	now       func() time.Time
	logger    *events.Logger
}

// NewExecutor creates a cycle executor.
func NewExecutor(st state.Store, docs docstore.Store, vault CredentialDecrypter, t transport.Transport, logger *events.Logger) *Executor {
	return &Executor{
		state:     st,
		docs:      docs,
		vault:     vault,
		transport: t,
		now:       time.Now,
		logger:    logger.WithField("component", "sync_executor"),
	}
}

// RunCycle fetches forms, then each form's submissions since the last
// successful sync, and upserts them. Failing to fetch one form's
// submissions is recorded in the result and does not fail the cycle.
func (e *Executor) RunCycle(ctx context.Context, projectID string) (*CycleResult, error) {
	logger := e.logger.WithFields(map[string]interface{}{
		"project_id": projectID,
		"run_id":     events.GetRunID(ctx),
	})

	creds, err := e.loadCredentials(ctx, projectID)
	if err != nil {
		return nil, cycleErr(projectID, PhaseCredentials, err)
	}

	status, err := e.state.GetStatus(ctx, projectID)
	if err != nil {
		return nil, cycleErr(projectID, PhaseStatus, err)
	}

	client := remote.NewClient(e.transport, creds)

	forms, err := client.ListForms(ctx)
	if err != nil {
		return nil, cycleErr(projectID, PhaseForms, err)
	}

	logger.WithField("forms", len(forms)).Debug("Fetched forms")

	result := &CycleResult{}
	for _, form := range forms {
		formID, ok := form.StringField(models.FieldXMLFormID)
		if !ok {
			logger.Debug("Skipping form without xmlFormId")
			continue
		}

		doc := form.Tag(projectID, "", e.now())
		if err := e.docs.Upsert(ctx, models.CollectionForms, docstore.FormFilter(projectID, formID), doc); err != nil {
			return nil, cycleErr(projectID, PhaseStore, err)
		}
		result.FormsSynced++

		n, err := e.syncSubmissions(ctx, client, projectID, formID, status.LastSyncTime)
		result.SubmissionsSynced += n
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WithError(err).WithField("form_id", formID).Error("Error syncing submissions")
			result.FormErrors = append(result.FormErrors, FormError{FormID: formID, Err: err})
		}
	}

	logger.WithFields(map[string]interface{}{
		"forms":       result.FormsSynced,
		"submissions": result.SubmissionsSynced,
		"form_errors": len(result.FormErrors),
	}).Info("Cycle complete")

	return result, nil
}

func (e *Executor) loadCredentials(ctx context.Context, projectID string) (models.Credentials, error) {
	rec, err := e.state.GetCredentials(ctx, projectID)
	if err != nil {
		return models.Credentials{}, err
	}

	creds, err := e.vault.Decrypt(rec.Ciphertext)
	if err != nil {
		return models.Credentials{}, err
	}

	creds.ProjectID = projectID
	return creds, nil
}

// syncSubmissions returns how many submissions were stored before any error.
func (e *Executor) syncSubmissions(ctx context.Context, client *remote.Client, projectID, formID string, since *time.Time) (int, error) {
	subs, err := client.ListSubmissions(ctx, formID, since)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, sub := range subs {
		instanceID, ok := sub.StringField(models.FieldInstanceID)
		if !ok {
			e.logger.WithFields(map[string]interface{}{
				"project_id": projectID,
				"form_id":    formID,
			}).Warn("Skipping submission without instanceId")
			continue
		}

		doc := sub.Tag(projectID, formID, e.now())
		if err := e.docs.Upsert(ctx, models.CollectionSubmissions, docstore.SubmissionFilter(projectID, instanceID), doc); err != nil {
			return stored, err
		}
		stored++
	}

	return stored, nil
}

func cycleErr(projectID, phase string, err error) error {
	return &models.SyncCycleError{ProjectID: projectID, Phase: phase, Err: err}
}
