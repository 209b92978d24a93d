package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/TheMichaelB/lockbox/internal/events"
)

// LocalStore keeps blobs under a media root on the local file system.
type LocalStore struct {
	baseDir string
	logger  *events.Logger

	// Security settings
	allowSymlinks bool
	maxPathLength int // 0 means unlimited
	maxFileSize   int64
}

// NewLocalStore creates a local blob store rooted at baseDir.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}

	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}

	store := &LocalStore{
		baseDir:       absPath,
		logger:        logger.WithField("component", "local_store"),
		allowSymlinks: false,
		maxFileSize:   100 * 1024 * 1024,
	}
	if runtime.GOOS == "windows" {
		store.maxPathLength = 260 // MAX_PATH
	}
	return store, nil
}

// SetMaxFileSize sets the maximum blob size.
func (s *LocalStore) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// Put writes data atomically under a new reference.
func (s *LocalStore) Put(ctx context.Context, namespace string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref, err := newRef(namespace)
	if err != nil {
		return "", err
	}

	if int64(len(data)) > s.maxFileSize {
		return "", fmt.Errorf("blob too large: %d bytes (max: %d)", len(data), s.maxFileSize)
	}

	safePath, err := s.sanitizePath(ref)
	if err != nil {
		return "", fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"ref":  ref,
		"size": len(data),
	}).Debug("Writing blob")

	if err := os.MkdirAll(filepath.Dir(safePath), 0700); err != nil {
		return "", fmt.Errorf("create namespace directory: %w", err)
	}

	if err := writeAtomic(safePath, data); err != nil {
		return "", err
	}

	return ref, nil
}

// Get reads a blob.
func (s *LocalStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	safePath, err := s.sanitizePath(ref)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	if !s.allowSymlinks {
		stat, err := os.Lstat(safePath)
		if err == nil && stat.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("symlinks not allowed: %s", ref)
		}
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}

	return data, nil
}

// Delete removes a blob and any namespace directory it leaves empty.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	safePath, err := s.sanitizePath(ref)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithField("ref", ref).Debug("Deleting blob")

	if err := os.Remove(safePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete blob: %w", err)
	}

	s.cleanEmptyDirs(filepath.Dir(safePath))

	return nil
}

// Exists reports whether ref is present.
func (s *LocalStore) Exists(ref string) (bool, error) {
	safePath, err := s.sanitizePath(ref)
	if err != nil {
		return false, fmt.Errorf("sanitize path: %w", err)
	}

	_, err = os.Stat(safePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Helper methods

func writeAtomic(path string, data []byte) error {
	tempPath := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	f.Close()

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// sanitizePath validates a reference and maps it under the media root.
func (s *LocalStore) sanitizePath(ref string) (string, error) {
	if strings.ContainsRune(ref, 0) {
		return "", fmt.Errorf("path contains null bytes")
	}

	cleaned := filepath.Clean(filepath.FromSlash(ref))

	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains '..'")
	}

	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid path: empty reference")
	}

	fullPath := filepath.Join(s.baseDir, cleaned)

	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes media root")
	}

	if s.maxPathLength > 0 && len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("path too long: %d characters (max: %d)", len(fullPath), s.maxPathLength)
	}

	if err := validatePlatformPath(cleaned); err != nil {
		return "", err
	}

	return fullPath, nil
}

// validatePlatformPath checks platform-specific path restrictions.
func validatePlatformPath(path string) error {
	if runtime.GOOS != "windows" {
		return nil
	}

	reserved := map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}

	for _, part := range strings.Split(path, string(filepath.Separator)) {
		base := strings.ToUpper(strings.TrimSuffix(part, filepath.Ext(part)))
		if reserved[base] {
			return fmt.Errorf("invalid path: contains reserved name '%s'", part)
		}
		if strings.ContainsAny(part, `<>:"|?*`) {
			return fmt.Errorf("invalid path: contains reserved character in '%s'", part)
		}
	}

	return nil
}

// cleanEmptyDirs removes empty parent directories below the media root.
func (s *LocalStore) cleanEmptyDirs(dirPath string) {
	for dirPath != s.baseDir && strings.HasPrefix(dirPath, s.baseDir) {
		entries, err := os.ReadDir(dirPath)
		if err != nil || len(entries) > 0 {
			break
		}

		if err := os.Remove(dirPath); err != nil {
			break
		}

		dirPath = filepath.Dir(dirPath)
	}
}
