package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/TheMichaelB/lockbox/internal/config"
	"github.com/TheMichaelB/lockbox/internal/crypto"
	"github.com/TheMichaelB/lockbox/internal/events"
)

var (
	// ErrBlobNotFound is returned by Get when the reference does not exist.
	ErrBlobNotFound = errors.New("blob not found")

	ErrInvalidNamespace = errors.New("invalid namespace")
)

// BlobStore holds opaque ciphertext blobs. References are returned by Put
// and are stable for the life of the blob.
type BlobStore interface {
	// Put stores data under a fresh, collision-free reference inside
	// namespace and returns that reference.
	Put(ctx context.Context, namespace string, data []byte) (string, error)

	// Get retrieves the blob stored under ref.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, ref string) error
}

// New builds the blob store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, logger *events.Logger) (BlobStore, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		store, err := NewLocalStore(cfg.MediaRoot, logger)
		if err != nil {
			return nil, err
		}
		if cfg.MaxFileSize > 0 {
			// The limit is on plaintext; PKCS7 adds at most one block.
			store.SetMaxFileSize(CiphertextLimit(cfg.MaxFileSize))
		}
		return store, nil
	case config.BackendS3:
		store, err := NewS3Store(ctx, cfg.S3, logger)
		if err != nil {
			return nil, err
		}
		return WithRetry(store, cfg.MaxRetries, cfg.RetryDelay, logger), nil
	case config.BackendMinio:
		store, err := NewMinioStore(ctx, cfg.Minio, logger)
		if err != nil {
			return nil, err
		}
		return WithRetry(store, cfg.MaxRetries, cfg.RetryDelay, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

// CiphertextLimit is the largest ciphertext produced from a plaintext of
// at most maxPlaintext bytes.
func CiphertextLimit(maxPlaintext int64) int64 {
	return maxPlaintext + crypto.BlockSize
}

// newRef builds namespace/<uuid>.bin.
func newRef(namespace string) (string, error) {
	if err := validateNamespace(namespace); err != nil {
		return "", err
	}
	return namespace + "/" + uuid.NewString() + ".bin", nil
}

func validateNamespace(namespace string) error {
	switch {
	case strings.TrimSpace(namespace) == "":
		return fmt.Errorf("%w: empty", ErrInvalidNamespace)
	case strings.ContainsAny(namespace, `/\`):
		return fmt.Errorf("%w %q: contains separator", ErrInvalidNamespace, namespace)
	case strings.Contains(namespace, ".."):
		return fmt.Errorf("%w %q: contains '..'", ErrInvalidNamespace, namespace)
	case strings.ContainsRune(namespace, 0):
		return fmt.Errorf("%w: contains null bytes", ErrInvalidNamespace)
	}
	return nil
}
