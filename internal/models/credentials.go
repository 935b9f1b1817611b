package models

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Credentials are the plaintext access details for one remote project.
// They only live in memory; at rest they exist as a CredentialRecord.
type Credentials struct {
	BaseURL   string `json:"base_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	ProjectID string `json:"project_id"`
}

// Canonical returns a normalized copy: surrounding whitespace trimmed,
// text in NFC form and trailing slashes removed from the base URL.
// Canonical is idempotent.
func (c Credentials) Canonical() Credentials {
	return Credentials{
		BaseURL:   strings.TrimRight(strings.TrimSpace(norm.NFC.String(c.BaseURL)), "/"),
		Username:  strings.TrimSpace(norm.NFC.String(c.Username)),
		Password:  c.Password,
		ProjectID: strings.TrimSpace(norm.NFC.String(c.ProjectID)),
	}
}

// CheckFields reports the first missing field.
func (c Credentials) CheckFields() error {
	fields := []struct {
		name  string
		value string
	}{
		{"base_url", c.BaseURL},
		{"username", c.Username},
		{"password", c.Password},
		{"project_id", c.ProjectID},
	}

	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{
				Reason:  ReasonMissingField,
				Message: fmt.Sprintf("%s is required", f.name),
			}
		}
	}
	return nil
}

// String never prints the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{base_url=%s username=%s project_id=%s password=***}",
		c.BaseURL, c.Username, c.ProjectID)
}

// CredentialRecord is the stored, encrypted form of Credentials.
type CredentialRecord struct {
	ProjectID  string    `json:"project_id"`
	Ciphertext string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
