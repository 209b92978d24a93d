package vault

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid"

	"github.com/TheMichaelB/lockbox/internal/models"
)

// idSource hands out monotonic ULIDs so entries written in the same
// millisecond still sort in write order.
type idSource struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(crand.Reader, 0)}
}

func (g *idSource) next(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// audit appends one entry. A failed write fails the calling operation.
func (s *Service) audit(ctx context.Context, info models.RequestInfo, action models.Action, userID string, fileID *string, details map[string]any) error {
	now := s.now().UTC()

	entry := &models.AuditEntry{
		ID:        s.ids.next(now),
		UserID:    models.StringPtr(userID),
		FileID:    fileID,
		Action:    action,
		Timestamp: now,
		SourceIP:  info.SourceIP,
		UserAgent: models.StringPtr(info.UserAgent),
		Details:   details,
	}

	err := s.store.AppendAudit(ctx, entry)
	if err != nil && fileID != nil && s.recordGone(ctx, *fileID) {
		// A concurrent delete won; the entry outlives the record.
		s.logger.WithField("file_id", *fileID).Debug("Audited file removed concurrently")
		entry.FileID = nil
		err = s.store.AppendAudit(ctx, entry)
	}
	if err != nil {
		s.logger.WithError(err).WithField("action", string(action)).Error("Audit write failed")
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (s *Service) recordGone(ctx context.Context, id string) bool {
	_, err := s.store.GetRecord(ctx, id)
	return errors.Is(err, models.ErrNotFound)
}

// auditFailure records a failed operation and returns cause, joined with
// the audit error if the entry could not be written.
func (s *Service) auditFailure(ctx context.Context, info models.RequestInfo, action models.Action, userID string, fileID *string, reason string, cause error) error {
	err := s.audit(ctx, info, action, userID, fileID, map[string]any{
		models.DetailStatus: models.StatusFailed,
		models.DetailReason: reason,
	})
	if err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
