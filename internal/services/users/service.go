// Package users manages user profiles and roles.
package users

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/lockbox/internal/events"
	"github.com/TheMichaelB/lockbox/internal/metadata"
	"github.com/TheMichaelB/lockbox/internal/models"
	"github.com/TheMichaelB/lockbox/internal/storage"
)

// Service manages profiles for externally authenticated users.
type Service struct {
	store  metadata.Store
	blobs  storage.BlobStore
	logger *events.Logger
}

// NewService creates a profile service.
func NewService(store metadata.Store, blobs storage.BlobStore, logger *events.Logger) *Service {
	return &Service{
		store:  store,
		blobs:  blobs,
		logger: logger.WithField("service", "users"),
	}
}

// EnsureProfile returns the user's profile, creating it with the default
// role on first use.
func (s *Service) EnsureProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	profile, err := s.store.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return profile, nil
}

// Role returns the user's role, models.DefaultRole without a profile.
func (s *Service) Role(ctx context.Context, userID string) (models.Role, error) {
	return metadata.RoleOf(ctx, s.store, userID)
}

// SetRole changes userID's role. Only admins may change roles.
func (s *Service) SetRole(ctx context.Context, actorID, userID string, role models.Role) error {
	actorRole, err := s.Role(ctx, actorID)
	if err != nil {
		return fmt.Errorf("look up role: %w", err)
	}
	if actorRole != models.RoleAdmin {
		s.logger.WithFields(map[string]interface{}{
			"actor_id": actorID,
			"user_id":  userID,
		}).Warn("Role change denied")
		return fmt.Errorf("set role: %w", models.ErrAuthorization)
	}

	return s.Grant(ctx, userID, role)
}

// Grant sets a role without an actor check. It is meant for operator
// bootstrap, for example creating the first admin.
func (s *Service) Grant(ctx context.Context, userID string, role models.Role) error {
	parsed, err := models.ParseRole(string(role))
	if err != nil {
		return err
	}

	if _, err := s.EnsureProfile(ctx, userID); err != nil {
		return err
	}

	if err := s.store.SetRole(ctx, userID, parsed); err != nil {
		return fmt.Errorf("set role: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"role":    string(parsed),
	}).Info("Role updated")
	return nil
}

// Remove deletes the user's ciphertext, records and profile. Audit entries
// stay, detached from the user and the removed files.
func (s *Service) Remove(ctx context.Context, userID string) error {
	records, err := s.store.ListRecords(ctx, userID)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	// Blobs go first: a failure here leaves metadata intact and the
	// removal can be retried, since blob deletion is idempotent.
	deleted := make(map[string]bool, len(records))
	for _, r := range records {
		if err := s.blobs.Delete(ctx, r.CiphertextRef); err != nil {
			return fmt.Errorf("delete ciphertext for %s: %w", r.ID, err)
		}
		deleted[r.CiphertextRef] = true
	}

	refs, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("remove user: %w", err)
	}

	// Uploads that landed after the listing
	for _, ref := range refs {
		if deleted[ref] {
			continue
		}
		if err := s.blobs.Delete(ctx, ref); err != nil {
			s.logger.WithError(err).WithField("ref", ref).Error("Orphaned ciphertext left behind")
			continue
		}
		deleted[ref] = true
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"files":   len(deleted),
	}).Info("User removed")
	return nil
}
