package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/TheMichaelB/lockbox/internal/models"
)

const (
	// Key sizes
	KeySize   = 32 // AES-256
	BlockSize = models.IVSize
	IVSize    = models.IVSize

	// PBKDF2 parameters
	DefaultIterations = 100000
	SaltSize          = models.SaltSize
)

// Errors
var (
	ErrInvalidKey  = errors.New("invalid key size")
	ErrInvalidIV   = errors.New("invalid iv size")
	ErrInvalidSalt = errors.New("invalid salt size")
)

// CryptoProvider handles all cryptographic operations.
type CryptoProvider struct {
	iterations int
}

// NewProvider creates a crypto provider.
func NewProvider() Provider {
	return &CryptoProvider{
		iterations: DefaultIterations,
	}
}

// normalizeText applies NFKC so visually identical passwords typed on
// different keyboards derive the same key.
func normalizeText(s string) string {
	return norm.NFKC.String(s)
}

// DeriveKey derives a file key using PBKDF2-HMAC-SHA256.
func (p *CryptoProvider) DeriveKey(password string, salt []byte) ([]byte, []byte, error) {
	return deriveKey(password, salt, p.iterations)
}

// Encrypt encrypts plaintext using AES-256-CBC.
func (p *CryptoProvider) Encrypt(plaintext, key []byte) ([]byte, []byte, error) {
	return Encrypt(plaintext, key)
}

// Decrypt decrypts AES-256-CBC ciphertext.
func (p *CryptoProvider) Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	return Decrypt(ciphertext, key, iv)
}

// DeriveKey derives a file key with the default iteration count.
func DeriveKey(password string, salt []byte) ([]byte, []byte, error) {
	return deriveKey(password, salt, DefaultIterations)
}

func deriveKey(password string, salt []byte, iterations int) ([]byte, []byte, error) {
	if len(salt) == 0 {
		salt = make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("generate salt: %w", err)
		}
	} else if len(salt) != SaltSize {
		return nil, nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidSalt, SaltSize, len(salt))
	}

	key := pbkdf2.Key(
		[]byte(normalizeText(password)),
		salt,
		iterations,
		KeySize,
		sha256.New,
	)

	return key, salt, nil
}

// KeyHash returns the hex SHA-256 of a derived key. It only lets the
// service reject wrong passwords early; it is not an access boundary.
func KeyHash(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// KeyHashMatches compares the hash of key against a stored hash in
// constant time.
func KeyHashMatches(key []byte, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(KeyHash(key)), []byte(stored)) == 1
}

// ValidateKeySize checks if the key is the correct size.
func ValidateKeySize(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return nil
}
