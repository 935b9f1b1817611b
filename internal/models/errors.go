package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeAuth       = "AUTH_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeDecryption = "DECRYPTION_ERROR"
	ErrCodeNetwork    = "NETWORK_ERROR"
	ErrCodeStorage    = "STORAGE_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
	ErrCodeServer     = "SERVER_ERROR"
)

// Sentinel errors
var (
	ErrNotFound         = errors.New("not found")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidStatus    = errors.New("invalid sync status")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrSyncInProgress   = errors.New("sync already in progress")
)

// ValidationReason enumerates why credentials were rejected.
type ValidationReason string

const (
	ReasonMissingField        ValidationReason = "missing_field"
	ReasonInvalidCredentials  ValidationReason = "invalid_credentials"
	ReasonAuthFailed          ValidationReason = "auth_failed"
	ReasonConnectivity        ValidationReason = "connectivity"
	ReasonProjectNotFound     ValidationReason = "project_not_found"
	ReasonProjectLookupFailed ValidationReason = "project_lookup_failed"
	ReasonProjectMismatch     ValidationReason = "project_mismatch"
)

// ErrorClass groups errors by who has to act on them.
type ErrorClass string

const (
	ClassBadInput ErrorClass = "bad_input"
	ClassRemote   ErrorClass = "remote"
	ClassInternal ErrorClass = "internal"
)

// APIError represents a non-success response from the remote service.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	URL        string `json:"url,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// ValidationError reports rejected credentials.
type ValidationError struct {
	Reason     ValidationReason
	Message    string
	StatusCode int
	Err        error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation %s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("validation %s: %s", e.Reason, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConfigError is raised at startup for unusable configuration.
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidConfig
}

// DecryptError represents a credential decryption failure.
type DecryptError struct {
	Reason string
	Err    error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("decrypt: %s: %v", e.Reason, e.Err)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

// SyncCycleError describes why a single sync cycle failed.
type SyncCycleError struct {
	ProjectID string
	Phase     string
	Err       error
}

func (e *SyncCycleError) Error() string {
	return fmt.Sprintf("sync %s: project %s: %v", e.Phase, e.ProjectID, e.Err)
}

func (e *SyncCycleError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failed persistence operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Classify maps an error onto the three caller-facing classes.
func Classify(err error) ErrorClass {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Reason {
		case ReasonMissingField, ReasonProjectNotFound, ReasonProjectMismatch:
			return ClassBadInput
		default:
			return ClassRemote
		}
	}

	var decryptErr *DecryptError
	var configErr *ConfigError
	var storageErr *StorageError
	if errors.As(err, &decryptErr) || errors.As(err, &configErr) || errors.As(err, &storageErr) {
		return ClassInternal
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ClassRemote
	}

	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidStatus) || errors.Is(err, ErrSyncInProgress) {
		return ClassBadInput
	}

	return ClassInternal
}
