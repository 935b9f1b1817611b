package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TheMichaelB/formsync/internal/models"
)

const credentialPurpose = "project-credentials/v1"

// Vault seals project credentials under a single process-wide key.
type Vault struct {
	provider Provider
	key      []byte
}

// NewVault derives the vault key from a base64 master key.
// A missing or malformed key is a configuration error.
func NewVault(masterKey string) (*Vault, error) {
	return NewVaultWithProvider(NewProvider(), masterKey)
}

// NewVaultWithProvider is NewVault with an explicit provider.
func NewVaultWithProvider(provider Provider, masterKey string) (*Vault, error) {
	masterKey = strings.TrimSpace(masterKey)
	if masterKey == "" {
		return nil, &models.ConfigError{
			Key:    "security.encryption_key",
			Reason: "encryption key is not set; generate one with `formsync keygen`",
		}
	}

	secret, err := decodeKey(masterKey)
	if err != nil {
		return nil, &models.ConfigError{Key: "security.encryption_key", Reason: "not valid base64", Err: err}
	}

	key, err := provider.DeriveKey(secret, credentialPurpose)
	if err != nil {
		return nil, &models.ConfigError{Key: "security.encryption_key", Reason: "unusable key", Err: err}
	}

	return &Vault{provider: provider, key: key}, nil
}

// Encrypt canonicalizes and seals creds.
// Output: base64url(version || nonce || ciphertext || tag)
func (v *Vault) Encrypt(creds models.Credentials) (string, error) {
	payload, err := json.Marshal(creds.Canonical())
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}

	sealed, err := v.provider.EncryptData(payload, v.key)
	if err != nil {
		return "", fmt.Errorf("encrypt credentials: %w", err)
	}

	blob := make([]byte, 0, 1+len(sealed))
	blob = append(blob, EncryptionVersion)
	blob = append(blob, sealed...)

	return base64.RawURLEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. Every failure is a *models.DecryptError.
func (v *Vault) Decrypt(ciphertext string) (models.Credentials, error) {
	var creds models.Credentials

	blob, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return creds, decryptErr("decode", ErrInvalidCiphertext)
	}

	if len(blob) == 0 || blob[0] != EncryptionVersion {
		return creds, decryptErr("version", ErrInvalidCiphertext)
	}

	payload, err := v.provider.DecryptData(blob[1:], v.key)
	if err != nil {
		return creds, decryptErr("open", err)
	}

	if err := json.Unmarshal(payload, &creds); err != nil {
		return creds, decryptErr("unmarshal", err)
	}

	return creds, nil
}

// GenerateKey returns a fresh base64 master key.
func GenerateKey() (string, error) {
	secret := make([]byte, MinSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secret), nil
}

func decodeKey(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}

	var lastErr error
	for _, enc := range encodings {
		secret, err := enc.DecodeString(s)
		if err == nil {
			return secret, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func decryptErr(reason string, err error) error {
	return &models.DecryptError{
		Reason: reason,
		Err:    fmt.Errorf("%w: %w", models.ErrDecryptionFailed, err),
	}
}
