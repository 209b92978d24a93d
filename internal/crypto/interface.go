package crypto

// Provider defines the interface for cryptographic operations.
type Provider interface {
	// DeriveKey derives a file key from a password. A nil salt generates a
	// fresh one; the salt used is always returned.
	DeriveKey(password string, salt []byte) (key, usedSalt []byte, err error)

	// Encrypt encrypts plaintext using AES-256-CBC with a fresh IV.
	Encrypt(plaintext, key []byte) (ciphertext, iv []byte, err error)

	// Decrypt reverses Encrypt. Bad length or padding yields an
	// integrity error.
	Decrypt(ciphertext, key, iv []byte) ([]byte, error)
}
