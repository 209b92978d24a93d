package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheMichaelB/lockbox/internal/events"
)

// RetryStore retries transient failures of a remote BlobStore with
// exponential backoff.
type RetryStore struct {
	next       BlobStore
	maxRetries int
	retryDelay time.Duration
	logger     *events.Logger
}

// WithRetry wraps next. maxRetries of zero disables retrying.
func WithRetry(next BlobStore, maxRetries int, retryDelay time.Duration, logger *events.Logger) *RetryStore {
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &RetryStore{
		next:       next,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger.WithField("component", "blob_retry"),
	}
}

// Put may leave an orphaned blob when an attempt succeeded remotely but
// reported an error; every attempt writes a fresh reference.
func (s *RetryStore) Put(ctx context.Context, namespace string, data []byte) (string, error) {
	var ref string
	err := s.retry(ctx, "put", func() error {
		var err error
		ref, err = s.next.Put(ctx, namespace, data)
		return err
	})
	return ref, err
}

func (s *RetryStore) Get(ctx context.Context, ref string) ([]byte, error) {
	var data []byte
	err := s.retry(ctx, "get", func() error {
		var err error
		data, err = s.next.Get(ctx, ref)
		return err
	})
	return data, err
}

func (s *RetryStore) Delete(ctx context.Context, ref string) error {
	return s.retry(ctx, "delete", func() error {
		return s.next.Delete(ctx, ref)
	})
}

// retry executes fn with exponential backoff.
func (s *RetryStore) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := s.retryDelay

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.WithFields(map[string]interface{}{
				"op":      op,
				"attempt": attempt,
				"delay":   delay.String(),
			}).WithError(lastErr).Debug("Retrying blob operation")

			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable reports whether err may be transient.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrBlobNotFound),
		errors.Is(err, ErrInvalidNamespace),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
