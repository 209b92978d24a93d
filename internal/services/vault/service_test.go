package vault_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/lockbox/internal/config"
	"github.com/TheMichaelB/lockbox/internal/crypto"
	"github.com/TheMichaelB/lockbox/internal/events"
	"github.com/TheMichaelB/lockbox/internal/metadata"
	"github.com/TheMichaelB/lockbox/internal/models"
	"github.com/TheMichaelB/lockbox/internal/services/vault"
	"github.com/TheMichaelB/lockbox/internal/storage"
)

const password = "correct-horse"

var reqInfo = models.RequestInfo{SourceIP: "203.0.113.7", UserAgent: "lockbox/test"}

// countingProvider wraps the real provider and counts cipher calls.
type countingProvider struct {
	crypto.Provider
	encrypts atomic.Int32
	decrypts atomic.Int32
}

func (p *countingProvider) Encrypt(plaintext, key []byte) ([]byte, []byte, error) {
	p.encrypts.Add(1)
	return p.Provider.Encrypt(plaintext, key)
}

func (p *countingProvider) Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	p.decrypts.Add(1)
	return p.Provider.Decrypt(ciphertext, key, iv)
}

type fixture struct {
	svc      *vault.Service
	store    *metadata.MemoryStore
	blobs    *storage.MockStore
	provider *countingProvider
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, opts ...vault.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:    metadata.NewMemoryStore(),
		blobs:    storage.NewMockStore(),
		provider: &countingProvider{Provider: crypto.NewProvider()},
		logs:     &bytes.Buffer{},
	}
	logger := events.NewTestLogger(events.DebugLevel, "json", f.logs)
	f.svc = vault.NewService(f.store, f.blobs, f.provider, logger, opts...)
	return f
}

func (f *fixture) upload(t *testing.T, owner, name string, data []byte) *models.VaultRecord {
	t.Helper()

	record, err := f.svc.Upload(context.Background(), models.UploadRequest{
		OwnerID:  owner,
		Filename: name,
		Data:     data,
		Password: password,
		Confirm:  password,
	}, reqInfo)
	require.NoError(t, err)
	return record
}

func (f *fixture) allAudit(t *testing.T) []*models.AuditEntry {
	t.Helper()

	entries, err := f.store.ListAudit(context.Background(), models.AuditQuery{})
	require.NoError(t, err)
	return entries
}

func (f *fixture) grant(t *testing.T, userID string, role models.Role) {
	t.Helper()

	ctx := context.Background()
	_, err := f.store.EnsureProfile(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, f.store.SetRole(ctx, userID, role))
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := []byte("quarterly numbers, do not share")

	record := f.upload(t, "alice", "report.txt", data)

	assert.Equal(t, "alice", record.OwnerID)
	assert.Equal(t, "report.txt", record.OriginalFilename)
	assert.Equal(t, int64(len(data)), record.PlaintextSize)
	assert.Len(t, record.IV, models.IVSize)
	assert.Len(t, record.Salt, models.SaltSize)
	assert.Len(t, record.KeyHash, models.KeyHashSize)
	assert.NotContains(t, record.CiphertextRef, "report")
	assert.True(t, f.blobs.Has(record.CiphertextRef))

	stored, err := f.blobs.Get(ctx, record.CiphertextRef)
	require.NoError(t, err)
	assert.NotContains(t, string(stored), "quarterly")
	assert.Zero(t, len(stored)%16)

	got, rec, err := f.svc.Download(ctx, record.ID, "alice", password, reqInfo)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, record.ID, rec.ID)

	// Secrets never reach the logs
	assert.NotContains(t, f.logs.String(), password)
}

func TestUploadEmptyFile(t *testing.T) {
	f := newFixture(t)

	record := f.upload(t, "alice", "empty.txt", nil)
	assert.Zero(t, record.PlaintextSize)

	got, _, err := f.svc.Download(context.Background(), record.ID, "alice", password, reqInfo)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUploadAuditEntry(t *testing.T) {
	f := newFixture(t)
	record := f.upload(t, "alice", "report.txt", []byte("hello"))

	entries := f.allAudit(t)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, models.ActionUpload, e.Action)
	assert.Equal(t, "alice", *e.UserID)
	assert.Equal(t, record.ID, *e.FileID)
	assert.Equal(t, "203.0.113.7", e.SourceIP)
	assert.Equal(t, "lockbox/test", *e.UserAgent)
	assert.Equal(t, models.StatusSuccess, e.Status())
	assert.EqualValues(t, 5, e.Details[models.DetailSize])
	assert.Equal(t, "report.txt", e.Details[models.DetailFilename])
	assert.Len(t, e.ID, 26)
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   models.UploadRequest
		field string
	}{
		{
			name:  "short password",
			req:   models.UploadRequest{OwnerID: "alice", Filename: "a.txt", Data: []byte("x"), Password: "short", Confirm: "short"},
			field: "password",
		},
		{
			name:  "mismatched confirmation",
			req:   models.UploadRequest{OwnerID: "alice", Filename: "a.txt", Data: []byte("x"), Password: password, Confirm: password + "!"},
			field: "password",
		},
		{
			name:  "too large",
			req:   models.UploadRequest{OwnerID: "alice", Filename: "a.txt", Data: make([]byte, 65), Password: password, Confirm: password},
			field: "file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, vault.WithMaxFileSize(64))

			_, err := f.svc.Upload(context.Background(), tt.req, reqInfo)

			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			assert.Zero(t, f.blobs.Len())
			assert.Zero(t, f.provider.encrypts.Load())

			entries := f.allAudit(t)
			require.Len(t, entries, 1)
			assert.Equal(t, models.ActionUpload, entries[0].Action)
			assert.Equal(t, models.StatusFailed, entries[0].Status())
			assert.Equal(t, models.ReasonInvalidRequest, entries[0].Details[models.DetailReason])
			assert.Nil(t, entries[0].FileID)
		})
	}
}

func TestUploadAtSizeLimit(t *testing.T) {
	ctx := context.Background()
	const limit = 64

	blobs, err := storage.New(ctx, config.StorageConfig{
		Backend:     config.BackendLocal,
		MediaRoot:   t.TempDir(),
		MaxFileSize: limit,
	}, events.NewNopLogger())
	require.NoError(t, err)
	svc := vault.NewService(metadata.NewMemoryStore(), blobs, crypto.NewProvider(), events.NewNopLogger(),
		vault.WithMaxFileSize(limit))

	data := bytes.Repeat([]byte{7}, limit)
	record := uploadTo(t, svc, "alice", data)

	plaintext, _, err := svc.Download(ctx, record.ID, "alice", password, reqInfo)
	require.NoError(t, err)
	assert.Equal(t, data, plaintext)

	_, err = svc.Upload(ctx, models.UploadRequest{
		OwnerID:  "alice",
		Filename: "b.txt",
		Data:     append(data, 7),
		Password: password,
		Confirm:  password,
	}, reqInfo)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeValidation, models.Code(err))
}

func TestMinPasswordLengthOption(t *testing.T) {
	f := newFixture(t, vault.WithMinPasswordLength(20))

	_, err := f.svc.Upload(context.Background(), models.UploadRequest{
		OwnerID: "alice", Filename: "a.txt", Data: []byte("x"), Password: password, Confirm: password,
	}, reqInfo)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUploadStorageFailure(t *testing.T) {
	f := newFixture(t)
	diskFull := errors.New("disk full")
	f.blobs.PutErr = diskFull

	_, err := f.svc.Upload(context.Background(), models.UploadRequest{
		OwnerID: "alice", Filename: "a.txt", Data: []byte("x"), Password: password, Confirm: password,
	}, reqInfo)
	assert.ErrorIs(t, err, diskFull)

	entries := f.allAudit(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ReasonStorage, entries[0].Details[models.DetailReason])

	files, err := f.svc.ListFiles(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, files)
}

// failingCreateStore rejects record inserts.
type failingCreateStore struct {
	*metadata.MemoryStore
}

func (s failingCreateStore) CreateRecord(context.Context, *models.VaultRecord) error {
	return errors.New("constraint violation")
}

func TestUploadRecordFailureRemovesBlob(t *testing.T) {
	store := failingCreateStore{metadata.NewMemoryStore()}
	blobs := storage.NewMockStore()
	svc := vault.NewService(store, blobs, crypto.NewProvider(), events.NewNopLogger())

	_, err := svc.Upload(context.Background(), models.UploadRequest{
		OwnerID: "alice", Filename: "a.txt", Data: []byte("x"), Password: password, Confirm: password,
	}, reqInfo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violation")
	assert.Zero(t, blobs.Len(), "no orphaned ciphertext")
}

func TestAuditWriteFailureFailsUpload(t *testing.T) {
	f := newFixture(t)
	auditDown := errors.New("audit table locked")
	f.store.AuditErr = auditDown

	_, err := f.svc.Upload(context.Background(), models.UploadRequest{
		OwnerID: "alice", Filename: "a.txt", Data: []byte("x"), Password: password, Confirm: password,
	}, reqInfo)
	assert.ErrorIs(t, err, auditDown)

	assert.Zero(t, f.blobs.Len())
	files, err := f.svc.ListFiles(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDownloadWrongPassword(t *testing.T) {
	f := newFixture(t)
	record := f.upload(t, "alice", "a.txt", []byte("secret"))

	_, _, err := f.svc.Download(context.Background(), record.ID, "alice", "not-the-password", reqInfo)
	assert.ErrorIs(t, err, models.ErrAuthentication)
	assert.Zero(t, f.provider.decrypts.Load(), "cipher must not run on a key hash mismatch")

	entries := f.allAudit(t)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionDownload, entries[0].Action)
	assert.Equal(t, models.StatusFailed, entries[0].Status())
	assert.Equal(t, models.ReasonWrongPassword, entries[0].Details[models.DetailReason])
	assert.Equal(t, record.ID, *entries[0].FileID)
}

func TestDownloadNotOwner(t *testing.T) {
	f := newFixture(t)
	record := f.upload(t, "alice", "a.txt", []byte("secret"))

	_, _, errOther := f.svc.Download(context.Background(), record.ID, "bob", password, reqInfo)
	_, _, errMissing := f.svc.Download(context.Background(), "no-such-id", "bob", password, reqInfo)

	assert.ErrorIs(t, errOther, models.ErrNotFound)
	assert.ErrorIs(t, errMissing, models.ErrNotFound)
	assert.Equal(t, models.Code(errOther), models.Code(errMissing))

	var accessErr *models.AccessError
	require.ErrorAs(t, errOther, &accessErr)
	assert.Equal(t, "download", accessErr.Op)

	entries := f.allAudit(t)
	require.Len(t, entries, 3)
	for _, e := range entries[:2] {
		assert.Equal(t, models.ActionDownload, e.Action)
		assert.Equal(t, "bob", *e.UserID)
		assert.Nil(t, e.FileID)
		assert.Equal(t, models.ReasonNotFound, e.Details[models.DetailReason])
	}
}

func TestDownloadTamperedCiphertext(t *testing.T) {
	f := newFixture(t)
	record := f.upload(t, "alice", "a.txt", bytes.Repeat([]byte("z"), 40))

	stored, err := f.blobs.Get(context.Background(), record.CiphertextRef)
	require.NoError(t, err)
	// Flipping the last byte of the middle block corrupts the padding.
	stored[31] ^= 0xff
	f.blobs.Set(record.CiphertextRef, stored)

	_, _, err = f.svc.Download(context.Background(), record.ID, "alice", password, reqInfo)
	assert.ErrorIs(t, err, models.ErrAuthentication)
	assert.NotErrorIs(t, err, models.ErrIntegrity)

	entries := f.allAudit(t)
	assert.Equal(t, models.ReasonIntegrity, entries[0].Details[models.DetailReason])
}

func TestDownloadTruncatedCiphertext(t *testing.T) {
	f := newFixture(t)
	record := f.upload(t, "alice", "a.txt", []byte("secret"))
	f.blobs.Set(record.CiphertextRef, []byte("short"))

	_, _, err := f.svc.Download(context.Background(), record.ID, "alice", password, reqInfo)
	assert.ErrorIs(t, err, models.ErrAuthentication)
}

func TestDownloadStorageError(t *testing.T) {
	f := newFixture(t)
	record := f.upload(t, "alice", "a.txt", []byte("secret"))

	ioErr := errors.New("i/o timeout")
	f.blobs.GetErr = ioErr

	_, _, err := f.svc.Download(context.Background(), record.ID, "alice", password, reqInfo)
	assert.Same(t, ioErr, err, "storage errors propagate unchanged")

	entries := f.allAudit(t)
	assert.Equal(t, models.ReasonStorage, entries[0].Details[models.DetailReason])
}

func TestDownloadMissingBlob(t *testing.T) {
	f := newFixture(t)
	record := f.upload(t, "alice", "a.txt", []byte("secret"))
	require.NoError(t, f.blobs.Delete(context.Background(), record.CiphertextRef))

	_, _, err := f.svc.Download(context.Background(), record.ID, "alice", password, reqInfo)
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.upload(t, "alice", "a.txt", []byte("secret"))

	require.NoError(t, f.svc.Delete(ctx, record.ID, "alice", reqInfo))

	assert.False(t, f.blobs.Has(record.CiphertextRef))
	_, err := f.store.GetRecord(ctx, record.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	entries := f.allAudit(t)
	require.Len(t, entries, 2)
	del := entries[0]
	assert.Equal(t, models.ActionDelete, del.Action)
	assert.Equal(t, "a.txt", del.Details[models.DetailFilename])
	assert.EqualValues(t, 6, del.Details[models.DetailSize])
	assert.Nil(t, del.FileID, "file reference is detached once the record is gone")

	// Second delete sees NotFound and is audited too
	err = f.svc.Delete(ctx, record.ID, "alice", reqInfo)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Len(t, f.allAudit(t), 3)
}

func TestDeleteNotOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.upload(t, "alice", "a.txt", []byte("secret"))

	err := f.svc.Delete(ctx, record.ID, "bob", reqInfo)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.True(t, f.blobs.Has(record.CiphertextRef))

	_, err = f.store.GetRecord(ctx, record.ID)
	assert.NoError(t, err)
}

func TestDeleteBlobFailureKeepsMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.upload(t, "alice", "a.txt", []byte("secret"))

	f.blobs.DeleteErr = errors.New("permission denied")

	err := f.svc.Delete(ctx, record.ID, "alice", reqInfo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")

	_, err = f.store.GetRecord(ctx, record.ID)
	assert.NoError(t, err, "metadata kept when the blob cannot be removed")
}

// openSQLite opens a migrated sqlite store under t.TempDir.
func openSQLite(t *testing.T) metadata.Store {
	t.Helper()

	store, err := metadata.Open(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "lockbox.db"),
	}, events.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// forEachStore runs fn against the sqlite and memory metadata stores.
func forEachStore(t *testing.T, fn func(t *testing.T, store metadata.Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, openSQLite(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, metadata.NewMemoryStore()) })
}

// racingStore removes a record right after the first read of it, as if
// another caller's delete committed in between.
type racingStore struct {
	metadata.Store
	once sync.Once
}

func (s *racingStore) GetRecord(ctx context.Context, id string) (*models.VaultRecord, error) {
	record, err := s.Store.GetRecord(ctx, id)
	if err == nil {
		s.once.Do(func() { _ = s.Store.DeleteRecord(ctx, id, record.OwnerID) })
	}
	return record, err
}

func uploadTo(t *testing.T, svc *vault.Service, owner string, data []byte) *models.VaultRecord {
	t.Helper()

	record, err := svc.Upload(context.Background(), models.UploadRequest{
		OwnerID:  owner,
		Filename: "a.txt",
		Data:     data,
		Password: password,
		Confirm:  password,
	}, reqInfo)
	require.NoError(t, err)
	return record
}

func TestConcurrentDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, store metadata.Store) {
		svc := vault.NewService(store, storage.NewMockStore(), crypto.NewProvider(), events.NewNopLogger())
		record := uploadTo(t, svc, "alice", []byte("secret"))

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- svc.Delete(context.Background(), record.ID, "alice", reqInfo)
			}()
		}
		wg.Wait()
		close(errs)

		var succeeded int
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, models.ErrNotFound)
			assert.Equal(t, models.ErrCodeNotFound, models.Code(err))
		}
		assert.Equal(t, 1, succeeded)

		entries, err := store.ListAudit(context.Background(), models.AuditQuery{Action: models.ActionDelete})
		require.NoError(t, err)
		assert.Len(t, entries, 2, "both deletes are audited")
	})
}

func TestDeleteLosesRace(t *testing.T) {
	forEachStore(t, func(t *testing.T, inner metadata.Store) {
		ctx := context.Background()
		blobs := storage.NewMockStore()
		svc := vault.NewService(&racingStore{Store: inner}, blobs, crypto.NewProvider(), events.NewNopLogger())
		record := uploadTo(t, svc, "alice", []byte("secret"))

		err := svc.Delete(ctx, record.ID, "alice", reqInfo)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.Equal(t, models.ErrCodeNotFound, models.Code(err))
		assert.False(t, blobs.Has(record.CiphertextRef))

		entries, err := inner.ListAudit(ctx, models.AuditQuery{})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, models.ActionDelete, entries[0].Action)
		assert.Nil(t, entries[0].FileID)
		assert.Equal(t, "alice", *entries[0].UserID)
	})
}

func TestDownloadRacingDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, inner metadata.Store) {
		ctx := context.Background()
		svc := vault.NewService(&racingStore{Store: inner}, storage.NewMockStore(), crypto.NewProvider(), events.NewNopLogger())
		record := uploadTo(t, svc, "alice", []byte("secret"))

		// The ciphertext was read before the record went away
		plaintext, _, err := svc.Download(ctx, record.ID, "alice", password, reqInfo)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), plaintext)

		entries, err := inner.ListAudit(ctx, models.AuditQuery{Action: models.ActionDownload})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].FileID)
		assert.Equal(t, models.StatusSuccess, entries[0].Status())
	})
}

func TestDownloadWrongPasswordRacingDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, inner metadata.Store) {
		ctx := context.Background()
		svc := vault.NewService(&racingStore{Store: inner}, storage.NewMockStore(), crypto.NewProvider(), events.NewNopLogger())
		record := uploadTo(t, svc, "alice", []byte("secret"))

		_, _, err := svc.Download(ctx, record.ID, "alice", "wrong-password", reqInfo)
		assert.ErrorIs(t, err, models.ErrAuthentication)
		assert.Equal(t, models.ErrCodeAuthentication, models.Code(err))

		entries, err := inner.ListAudit(ctx, models.AuditQuery{Action: models.ActionDownload})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.StatusFailed, entries[0].Status())
		assert.Equal(t, models.ReasonWrongPassword, entries[0].Details[models.DetailReason])
	})
}

func TestDescribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.upload(t, "alice", "a.txt", []byte("secret"))

	got, err := f.svc.Describe(ctx, record.ID, "alice", reqInfo)
	require.NoError(t, err)
	assert.Equal(t, record.OriginalFilename, got.OriginalFilename)

	_, err = f.svc.Describe(ctx, record.ID, "bob", reqInfo)
	assert.ErrorIs(t, err, models.ErrNotFound)

	entries := f.allAudit(t)
	require.Len(t, entries, 3)
	assert.Equal(t, models.ActionView, entries[1].Action)
	assert.Equal(t, models.StatusSuccess, entries[1].Status())
	assert.Equal(t, models.ActionView, entries[0].Action)
	assert.Equal(t, models.StatusFailed, entries[0].Status())
}

func TestListFilesNewestFirst(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, vault.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))

	first := f.upload(t, "alice", "first.txt", []byte("1"))
	second := f.upload(t, "alice", "second.txt", []byte("2"))
	f.upload(t, "bob", "other.txt", []byte("3"))

	files, err := f.svc.ListFiles(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, second.ID, files[0].ID)
	assert.Equal(t, first.ID, files[1].ID)

	_, err = f.svc.ListFiles(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestListAuditLogsAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	aliceFile := f.upload(t, "alice", "a.txt", []byte("alice data"))
	bobFile := f.upload(t, "bob", "b.txt", []byte("bob data"))
	_, _, err := f.svc.Download(ctx, bobFile.ID, "bob", password, reqInfo)
	require.NoError(t, err)

	f.grant(t, "root", models.RoleAdmin)
	f.grant(t, "alice", models.RoleAuditor)

	t.Run("admin sees everything newest first", func(t *testing.T) {
		entries, err := f.svc.ListAuditLogs(ctx, "root", models.AuditQuery{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, models.ActionDownload, entries[0].Action)
		for i := 1; i < len(entries); i++ {
			assert.False(t, entries[i].Timestamp.After(entries[i-1].Timestamp))
		}
	})

	t.Run("auditor sees only own files", func(t *testing.T) {
		entries, err := f.svc.ListAuditLogs(ctx, "alice", models.AuditQuery{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, aliceFile.ID, *entries[0].FileID)
	})

	t.Run("auditor cannot widen scope", func(t *testing.T) {
		entries, err := f.svc.ListAuditLogs(ctx, "alice", models.AuditQuery{FileOwnerID: "bob"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, aliceFile.ID, *entries[0].FileID)
	})

	t.Run("admin filters by action", func(t *testing.T) {
		entries, err := f.svc.ListAuditLogs(ctx, "root", models.AuditQuery{Action: models.ActionUpload, Limit: 1})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.ActionUpload, entries[0].Action)
	})

	for _, user := range []string{"bob", "nobody"} {
		t.Run("denied for "+user, func(t *testing.T) {
			_, err := f.svc.ListAuditLogs(ctx, user, models.AuditQuery{})
			assert.ErrorIs(t, err, models.ErrAuthorization)
		})
	}
}

func TestEveryOperationIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record := f.upload(t, "alice", "a.txt", []byte("secret"))
	_, _, _ = f.svc.Download(ctx, record.ID, "alice", password, reqInfo)
	_, _, _ = f.svc.Download(ctx, record.ID, "alice", "wrong-password", reqInfo)
	_, _, _ = f.svc.Download(ctx, record.ID, "mallory", password, reqInfo)
	_, _ = f.svc.Describe(ctx, record.ID, "alice", reqInfo)
	_ = f.svc.Delete(ctx, record.ID, "mallory", reqInfo)
	_ = f.svc.Delete(ctx, record.ID, "alice", reqInfo)
	_, _, _ = f.svc.Download(ctx, record.ID, "alice", password, reqInfo)

	entries := f.allAudit(t)
	assert.Len(t, entries, 8)

	var actions []models.Action
	for i := len(entries) - 1; i >= 0; i-- {
		actions = append(actions, entries[i].Action)
	}
	assert.Equal(t, []models.Action{
		models.ActionUpload,
		models.ActionDownload,
		models.ActionDownload,
		models.ActionDownload,
		models.ActionView,
		models.ActionDelete,
		models.ActionDelete,
		models.ActionDownload,
	}, actions)
}
