package testutil

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/lockbox/internal/config"
	"github.com/TheMichaelB/lockbox/internal/crypto"
	"github.com/TheMichaelB/lockbox/internal/events"
	"github.com/TheMichaelB/lockbox/internal/metadata"
	"github.com/TheMichaelB/lockbox/internal/models"
	"github.com/TheMichaelB/lockbox/internal/services/users"
	"github.com/TheMichaelB/lockbox/internal/services/vault"
	"github.com/TheMichaelB/lockbox/internal/storage"
)

// Env is a fully wired vault over SQLite and the local blob store.
type Env struct {
	Config *config.Config
	Logger *events.Logger
	Store  *metadata.SQLStore
	Blobs  storage.BlobStore
	Vault  *vault.Service
	Users  *users.Service
}

// NewEnv wires an Env rooted in a fresh temp directory. Resources are
// released through t.Cleanup.
func NewEnv(t testing.TB, opts ...vault.Option) *Env {
	t.Helper()

	cfg := TestConfigWithDir(t.TempDir())
	logger := NewTestLogger()
	ctx := TestContext(t)

	require.NoError(t, cfg.EnsureDirectories())

	store, err := metadata.Open(ctx, cfg.Database, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := storage.New(ctx, cfg.Storage, logger)
	require.NoError(t, err)

	opts = append([]vault.Option{vault.WithMaxFileSize(cfg.Storage.MaxFileSize)}, opts...)

	return &Env{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Blobs:  blobs,
		Vault:  vault.NewService(store, blobs, crypto.NewProvider(), logger, opts...),
		Users:  users.NewService(store, blobs, logger),
	}
}

// UploadRequest builds a valid upload request.
func UploadRequest(ownerID, filename string, data []byte, password string) models.UploadRequest {
	return models.UploadRequest{
		OwnerID:  ownerID,
		Filename: filename,
		Data:     data,
		Password: password,
		Confirm:  password,
	}
}

// RandomBytes returns n random bytes.
func RandomBytes(t testing.TB, n int) []byte {
	t.Helper()

	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

// TestRequestInfo is the request context attached to test operations.
var TestRequestInfo = models.RequestInfo{
	SourceIP:  "127.0.0.1",
	UserAgent: "lockbox-test",
}
