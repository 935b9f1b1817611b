package crypto

// Provider defines the primitive operations the vault is built on.
type Provider interface {
	// DeriveKey expands a master secret into a purpose-bound key.
	DeriveKey(secret []byte, purpose string) ([]byte, error)

	// EncryptData encrypts plaintext using AES-GCM.
	EncryptData(plaintext, key []byte) ([]byte, error)

	// DecryptData decrypts ciphertext using AES-GCM.
	DecryptData(ciphertext, key []byte) ([]byte, error)
}
