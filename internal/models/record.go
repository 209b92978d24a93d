package models

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Sizes shared by the crypto layer and record validation.
const (
	IVSize      = 16 // AES block size
	SaltSize    = 16
	KeyHashSize = 64 // hex SHA-256
)

// VaultRecord is the persisted metadata for one encrypted file.
type VaultRecord struct {
	ID               string    `json:"id" db:"id"`
	OwnerID          string    `json:"owner_id" db:"owner_id"`
	OriginalFilename string    `json:"original_filename" db:"original_filename"`
	CiphertextRef    string    `json:"ciphertext_ref" db:"ciphertext_ref"`
	PlaintextSize    int64     `json:"plaintext_size" db:"plaintext_size"`
	Salt             []byte    `json:"-" db:"salt"`
	IV               []byte    `json:"-" db:"iv"`
	KeyHash          string    `json:"-" db:"key_hash"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	ModifiedAt       time.Time `json:"modified_at" db:"modified_at"`
}

// Validate checks the record invariants before it is persisted.
func (r *VaultRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record id is required")
	}

	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("owner id is required")
	}

	if r.CiphertextRef == "" {
		return fmt.Errorf("ciphertext reference is required")
	}

	if r.PlaintextSize < 0 {
		return fmt.Errorf("plaintext size cannot be negative")
	}

	if len(r.IV) != IVSize {
		return fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(r.IV))
	}

	if len(r.Salt) != SaltSize {
		return fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(r.Salt))
	}

	if len(r.KeyHash) != KeyHashSize {
		return fmt.Errorf("key hash must be %d hex characters", KeyHashSize)
	}
	if _, err := hex.DecodeString(r.KeyHash); err != nil {
		return fmt.Errorf("key hash is not hex: %w", err)
	}

	if r.ModifiedAt.Before(r.CreatedAt) {
		return fmt.Errorf("modified_at cannot be before created_at")
	}

	return nil
}

// OwnedBy reports whether userID owns the record.
func (r *VaultRecord) OwnedBy(userID string) bool {
	return r != nil && userID != "" && r.OwnerID == userID
}

// UploadRequest carries everything the boundary collected for an upload.
type UploadRequest struct {
	OwnerID  string
	Filename string
	Data     []byte
	Password string
	Confirm  string
}

// Validate applies the upload policy: minimum password length,
// matching confirmation and the deployment size limit (0 disables it).
func (r *UploadRequest) Validate(minPasswordLen int, maxSize int64) error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return &ValidationError{Field: "owner", Reason: "is required"}
	}

	if strings.TrimSpace(r.Filename) == "" {
		return &ValidationError{Field: "filename", Reason: "is required"}
	}

	if len([]rune(r.Password)) < minPasswordLen {
		return &ValidationError{
			Field:  "password",
			Reason: fmt.Sprintf("must be at least %d characters", minPasswordLen),
		}
	}

	if r.Password != r.Confirm {
		return &ValidationError{Field: "password", Reason: "passwords don't match"}
	}

	if maxSize > 0 && int64(len(r.Data)) > maxSize {
		return &ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("too large: %d bytes (max: %d)", len(r.Data), maxSize),
		}
	}

	return nil
}
