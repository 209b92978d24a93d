package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/lockbox/internal/events"
	"github.com/TheMichaelB/lockbox/internal/storage"
)

func newLocalStore(t *testing.T) (*storage.LocalStore, string) {
	t.Helper()

	tmpDir := t.TempDir()
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	store, err := storage.NewLocalStore(tmpDir, logger)
	require.NoError(t, err)
	return store, tmpDir
}

func TestNamespaceValidation(t *testing.T) {
	store, _ := newLocalStore(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		namespace string
		wantErr   bool
	}{
		{name: "user namespace", namespace: "user_42"},
		{name: "uuid owner", namespace: "user_0b8f6a1c-2d3e-4f50-8a9b-0c1d2e3f4a5b"},
		{name: "empty", namespace: "", wantErr: true},
		{name: "blank", namespace: "  ", wantErr: true},
		{name: "parent traversal", namespace: "..", wantErr: true},
		{name: "embedded traversal", namespace: "user_..", wantErr: true},
		{name: "separator", namespace: "user/../../etc", wantErr: true},
		{name: "backslash", namespace: `user\evil`, wantErr: true},
		{name: "null bytes", namespace: "user\x00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := store.Put(ctx, tt.namespace, []byte("ciphertext"))

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "namespace")
				return
			}

			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(ref, tt.namespace+"/"))
			assert.True(t, strings.HasSuffix(ref, ".bin"))

			exists, err := store.Exists(ref)
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}
}

func TestRefSanitization(t *testing.T) {
	store, _ := newLocalStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		ref  string
	}{
		{"parent directory traversal", "../etc/passwd"},
		{"embedded parent traversal", "user_1/../../etc/passwd"},
		{"null bytes", "user_1/blob\x00.bin"},
		{"very long path", strings.Repeat("a", 300) + "/blob.bin"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Get(ctx, tt.ref)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "path")
			assert.NotErrorIs(t, err, storage.ErrBlobNotFound)

			assert.Error(t, store.Delete(ctx, tt.ref))
		})
	}
}

func TestBlobPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on Windows")
	}

	store, root := newLocalStore(t)

	ref, err := store.Put(context.Background(), "user_1", []byte("secret"))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(ref)))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSymlinkHandling(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Symlink test requires Unix-like OS")
	}

	store, tmpDir := newLocalStore(t)

	externalPath := filepath.Join(t.TempDir(), "external.bin")
	require.NoError(t, os.WriteFile(externalPath, []byte("external"), 0644))

	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "user_1"), 0700))
	require.NoError(t, os.Symlink(externalPath, filepath.Join(tmpDir, "user_1", "link.bin")))

	// Store should not follow symlinks
	_, err := store.Get(context.Background(), "user_1/link.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symlinks not allowed")
}

func TestLongPathsOutsideWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("MAX_PATH applies on Windows")
	}

	root := filepath.Join(t.TempDir(), strings.Repeat("m", 120), strings.Repeat("e", 120))
	store, err := storage.NewLocalStore(root, events.NewNopLogger())
	require.NoError(t, err)

	ctx := context.Background()
	namespace := "user_" + strings.Repeat("a", 100)
	ref, err := store.Put(ctx, namespace, []byte("ciphertext"))
	require.NoError(t, err)
	assert.Greater(t, len(filepath.Join(root, ref)), 260)

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), data)
}
