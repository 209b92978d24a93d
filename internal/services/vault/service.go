// Package vault implements encrypted file storage with per-file passwords
// and an access audit trail.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/lockbox/internal/crypto"
	"github.com/TheMichaelB/lockbox/internal/events"
	"github.com/TheMichaelB/lockbox/internal/metadata"
	"github.com/TheMichaelB/lockbox/internal/models"
	"github.com/TheMichaelB/lockbox/internal/storage"
)

const (
	defaultMinPasswordLength = 8
	defaultMaxFileSize       = 100 * 1024 * 1024
)

// Service performs vault operations. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	store  metadata.Store
	blobs  storage.BlobStore
	crypto crypto.Provider
	logger *events.Logger

	now               func() time.Time
	ids               *idSource
	minPasswordLength int
	maxFileSize       int64
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMinPasswordLength sets the minimum upload password length.
func WithMinPasswordLength(n int) Option {
	return func(s *Service) { s.minPasswordLength = n }
}

// WithMaxFileSize caps the plaintext size accepted by Upload.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) { s.maxFileSize = n }
}

// NewService creates a vault service.
func NewService(store metadata.Store, blobs storage.BlobStore, provider crypto.Provider, logger *events.Logger, opts ...Option) *Service {
	s := &Service{
		store:             store,
		blobs:             blobs,
		crypto:            provider,
		logger:            logger.WithField("service", "vault"),
		now:               time.Now,
		ids:               newIDSource(),
		minPasswordLength: defaultMinPasswordLength,
		maxFileSize:       defaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload encrypts req.Data under a key derived from req.Password and
// stores it for req.OwnerID.
func (s *Service) Upload(ctx context.Context, req models.UploadRequest, info models.RequestInfo) (*models.VaultRecord, error) {
	logger := s.logger.WithFields(map[string]interface{}{
		"owner_id": req.OwnerID,
		"size":     len(req.Data),
	})

	fail := func(reason string, err error) (*models.VaultRecord, error) {
		logger.WithError(err).WithField("reason", reason).Warn("Upload failed")
		return nil, s.auditFailure(ctx, info, models.ActionUpload, req.OwnerID, nil, reason, err)
	}

	if err := req.Validate(s.minPasswordLength, s.maxFileSize); err != nil {
		return fail(models.ReasonInvalidRequest, err)
	}

	key, salt, err := s.crypto.DeriveKey(req.Password, nil)
	if err != nil {
		return fail(models.ReasonEncryption, fmt.Errorf("derive key: %w", err))
	}

	ciphertext, iv, err := s.crypto.Encrypt(req.Data, key)
	if err != nil {
		return fail(models.ReasonEncryption, fmt.Errorf("encrypt: %w", err))
	}

	ref, err := s.blobs.Put(ctx, namespaceFor(req.OwnerID), ciphertext)
	if err != nil {
		return fail(models.ReasonStorage, fmt.Errorf("store ciphertext: %w", err))
	}

	now := s.now().UTC()
	record := &models.VaultRecord{
		ID:               uuid.NewString(),
		OwnerID:          req.OwnerID,
		OriginalFilename: req.Filename,
		CiphertextRef:    ref,
		PlaintextSize:    int64(len(req.Data)),
		Salt:             salt,
		IV:               iv,
		KeyHash:          crypto.KeyHash(key),
		CreatedAt:        now,
		ModifiedAt:       now,
	}

	if err := s.store.CreateRecord(ctx, record); err != nil {
		s.discardBlob(ctx, ref)
		return fail(models.ReasonStorage, fmt.Errorf("create record: %w", err))
	}

	err = s.audit(ctx, info, models.ActionUpload, req.OwnerID, &record.ID, map[string]any{
		models.DetailStatus:   models.StatusSuccess,
		models.DetailSize:     record.PlaintextSize,
		models.DetailFilename: record.OriginalFilename,
	})
	if err != nil {
		// An upload without its audit entry is not kept.
		if delErr := s.store.DeleteRecord(ctx, record.ID, record.OwnerID); delErr != nil {
			logger.WithError(delErr).Error("Failed to roll back record")
		}
		s.discardBlob(ctx, ref)
		return nil, err
	}

	logger.WithField("record_id", record.ID).Info("File uploaded")
	return record, nil
}

// Download decrypts a record owned by requesterID. A missing record and a
// record owned by someone else both yield models.ErrNotFound.
func (s *Service) Download(ctx context.Context, recordID, requesterID, password string, info models.RequestInfo) ([]byte, *models.VaultRecord, error) {
	logger := s.logger.WithFields(map[string]interface{}{
		"record_id":    recordID,
		"requester_id": requesterID,
	})

	record, err := s.lookup(ctx, models.ActionDownload, recordID, requesterID, info)
	if err != nil {
		return nil, nil, err
	}

	fail := func(reason string, err error) ([]byte, *models.VaultRecord, error) {
		logger.WithField("reason", reason).Warn("Download failed")
		return nil, nil, s.auditFailure(ctx, info, models.ActionDownload, requesterID, &record.ID, reason, err)
	}

	key, _, err := s.crypto.DeriveKey(password, record.Salt)
	if err != nil {
		return fail(models.ReasonEncryption, fmt.Errorf("derive key: %w", err))
	}

	if !crypto.KeyHashMatches(key, record.KeyHash) {
		return fail(models.ReasonWrongPassword, accessError(models.ActionDownload, recordID, models.ErrAuthentication))
	}

	ciphertext, err := s.blobs.Get(ctx, record.CiphertextRef)
	if err != nil {
		return fail(models.ReasonStorage, err)
	}

	plaintext, err := s.crypto.Decrypt(ciphertext, key, record.IV)
	if err != nil {
		if errors.Is(err, models.ErrIntegrity) {
			logger.WithError(err).Error("Ciphertext failed integrity check")
			return fail(models.ReasonIntegrity, accessError(models.ActionDownload, recordID, models.ErrAuthentication))
		}
		return fail(models.ReasonEncryption, fmt.Errorf("decrypt: %w", err))
	}

	err = s.audit(ctx, info, models.ActionDownload, requesterID, &record.ID, map[string]any{
		models.DetailStatus: models.StatusSuccess,
		models.DetailSize:   len(plaintext),
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("File downloaded")
	return plaintext, record, nil
}

// Delete removes a record owned by requesterID together with its blob.
// The audit entry is written before anything is removed.
func (s *Service) Delete(ctx context.Context, recordID, requesterID string, info models.RequestInfo) error {
	logger := s.logger.WithFields(map[string]interface{}{
		"record_id":    recordID,
		"requester_id": requesterID,
	})

	record, err := s.lookup(ctx, models.ActionDelete, recordID, requesterID, info)
	if err != nil {
		return err
	}

	err = s.audit(ctx, info, models.ActionDelete, requesterID, &record.ID, map[string]any{
		models.DetailFilename: record.OriginalFilename,
		models.DetailSize:     record.PlaintextSize,
	})
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, record.CiphertextRef); err != nil {
		logger.WithError(err).Error("Failed to delete ciphertext")
		return fmt.Errorf("delete ciphertext: %w", err)
	}

	if err := s.store.DeleteRecord(ctx, record.ID, requesterID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return accessError(models.ActionDelete, recordID, models.ErrNotFound)
		}
		return fmt.Errorf("delete record: %w", err)
	}

	logger.Info("File deleted")
	return nil
}

// Describe returns a record's metadata to its owner.
func (s *Service) Describe(ctx context.Context, recordID, requesterID string, info models.RequestInfo) (*models.VaultRecord, error) {
	record, err := s.lookup(ctx, models.ActionView, recordID, requesterID, info)
	if err != nil {
		return nil, err
	}

	err = s.audit(ctx, info, models.ActionView, requesterID, &record.ID, map[string]any{
		models.DetailStatus: models.StatusSuccess,
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListFiles returns the owner's records, newest first.
func (s *Service) ListFiles(ctx context.Context, ownerID string) ([]*models.VaultRecord, error) {
	if ownerID == "" {
		return nil, &models.ValidationError{Field: "owner", Reason: "owner is required"}
	}

	records, err := s.store.ListRecords(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return records, nil
}

// ListAuditLogs returns audit entries visible to requesterID. Admins see
// every entry; auditors see entries on files they own.
func (s *Service) ListAuditLogs(ctx context.Context, requesterID string, query models.AuditQuery) ([]*models.AuditEntry, error) {
	role, err := metadata.RoleOf(ctx, s.store, requesterID)
	if err != nil {
		return nil, fmt.Errorf("look up role: %w", err)
	}

	switch role {
	case models.RoleAdmin:
	case models.RoleAuditor:
		query.FileOwnerID = requesterID
	default:
		s.logger.WithFields(map[string]interface{}{
			"requester_id": requesterID,
			"role":         role,
		}).Warn("Audit log access denied")
		return nil, fmt.Errorf("list audit logs: %w", models.ErrAuthorization)
	}

	entries, err := s.store.ListAudit(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}

// Helper methods

// lookup loads a record and checks ownership, auditing a miss.
func (s *Service) lookup(ctx context.Context, action models.Action, recordID, requesterID string, info models.RequestInfo) (*models.VaultRecord, error) {
	record, err := s.store.GetRecord(ctx, recordID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, s.auditFailure(ctx, info, action, requesterID, nil, models.ReasonStorage,
			fmt.Errorf("load record: %w", err))
	}

	if !record.OwnedBy(requesterID) {
		return nil, s.auditFailure(ctx, info, action, requesterID, nil, models.ReasonNotFound,
			accessError(action, recordID, models.ErrNotFound))
	}

	return record, nil
}

func (s *Service) discardBlob(ctx context.Context, ref string) {
	if err := s.blobs.Delete(ctx, ref); err != nil {
		s.logger.WithError(err).WithField("ref", ref).Error("Failed to remove orphaned ciphertext")
	}
}

func namespaceFor(ownerID string) string {
	return "user_" + ownerID
}

func accessError(action models.Action, recordID string, err error) error {
	op := map[models.Action]string{
		models.ActionUpload:   "upload",
		models.ActionDownload: "download",
		models.ActionDelete:   "delete",
		models.ActionView:     "describe",
	}[action]
	return &models.AccessError{Op: op, RecordID: recordID, Err: err}
}
