// Package metadata persists vault records, the audit log and user profiles.
package metadata

import (
	"context"
	"errors"

	"github.com/TheMichaelB/lockbox/internal/models"
)

// ErrUnknownFile is returned by the memory store when an audit entry
// references a record that does not exist.
var ErrUnknownFile = errors.New("referenced file does not exist")

// Store is the metadata persistence contract. Lookups of missing rows
// return models.ErrNotFound. Audit entries are append-only: there is no
// update or delete for them.
type Store interface {
	// CreateRecord inserts a validated record.
	CreateRecord(ctx context.Context, record *models.VaultRecord) error

	// GetRecord loads a record by ID.
	GetRecord(ctx context.Context, id string) (*models.VaultRecord, error)

	// ListRecords returns the owner's records, newest first.
	ListRecords(ctx context.Context, ownerID string) ([]*models.VaultRecord, error)

	// DeleteRecord removes a record only if ownerID owns it. Audit entries
	// that referenced it keep their row with a nil FileID.
	DeleteRecord(ctx context.Context, id, ownerID string) error

	// AppendAudit writes one audit entry.
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error

	// ListAudit returns matching entries, newest first.
	ListAudit(ctx context.Context, query models.AuditQuery) ([]*models.AuditEntry, error)

	// EnsureProfile creates the user's profile with the default role if it
	// does not exist, and returns it. Safe under concurrent calls.
	EnsureProfile(ctx context.Context, userID string) (*models.UserProfile, error)

	// GetProfile loads a profile.
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)

	// SetRole changes an existing profile's role.
	SetRole(ctx context.Context, userID string, role models.Role) error

	// DeleteUser removes the user's records and profile and detaches the
	// user from the audit log, in one transaction. It returns the
	// ciphertext refs of the records it removed.
	DeleteUser(ctx context.Context, userID string) ([]string, error)

	// Close releases resources.
	Close() error
}

// RoleOf returns the user's role, or models.DefaultRole when the user has
// no profile.
func RoleOf(ctx context.Context, store Store, userID string) (models.Role, error) {
	profile, err := store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.DefaultRole, nil
		}
		return "", err
	}
	return profile.Role, nil
}
