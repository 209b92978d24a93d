package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/lockbox/internal/config"
	"github.com/TheMichaelB/lockbox/internal/crypto"
	"github.com/TheMichaelB/lockbox/internal/events"
	"github.com/TheMichaelB/lockbox/internal/storage"
)

func storageS3Config(bucket string) config.S3Config {
	return config.S3Config{Bucket: bucket, Region: "us-east-1"}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	logger := events.NewNopLogger()

	t.Run("local", func(t *testing.T) {
		store, err := storage.New(ctx, config.StorageConfig{
			Backend:     config.BackendLocal,
			MediaRoot:   t.TempDir(),
			MaxFileSize: 4,
		}, logger)
		require.NoError(t, err)
		assert.IsType(t, &storage.LocalStore{}, store)

		// A full padding block on top of the plaintext limit still fits
		_, err = store.Put(ctx, "user_1", make([]byte, 4+crypto.BlockSize))
		require.NoError(t, err)

		_, err = store.Put(ctx, "user_1", make([]byte, 5+crypto.BlockSize))
		assert.Error(t, err)
	})

	t.Run("s3 retries", func(t *testing.T) {
		store, err := storage.New(ctx, config.StorageConfig{
			Backend:    config.BackendS3,
			S3:         storageS3Config("vault"),
			MaxRetries: 2,
		}, logger)
		require.NoError(t, err)
		assert.IsType(t, &storage.RetryStore{}, store)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := storage.New(ctx, config.StorageConfig{Backend: "ftp"}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown storage backend")
	})

	t.Run("minio without endpoint", func(t *testing.T) {
		_, err := storage.New(ctx, config.StorageConfig{
			Backend: config.BackendMinio,
			Minio:   config.MinioConfig{Bucket: "lockbox"},
		}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint")
	})
}

func TestMockStore(t *testing.T) {
	store := storage.NewMockStore()
	ctx := context.Background()

	ref, err := store.Put(ctx, "user_1", []byte("abc"))
	require.NoError(t, err)
	assert.True(t, store.Has(ref))
	assert.Equal(t, 1, store.Len())

	store.Set(ref, []byte("xyz"))
	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(data))

	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Get(ctx, ref)
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)

	store.GetErr = errors.New("disk on fire")
	_, err = store.Get(ctx, ref)
	assert.EqualError(t, err, "disk on fire")
}
