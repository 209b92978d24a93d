package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/lockbox/internal/models"
)

// MemoryStore is an in-process Store for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*models.VaultRecord
	audit    []*models.AuditEntry
	profiles map[string]*models.UserProfile

	// Error injection
	AuditErr error
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*models.VaultRecord),
		profiles: make(map[string]*models.UserProfile),
	}
}

// CreateRecord stores a copy of the record.
func (m *MemoryStore) CreateRecord(ctx context.Context, record *models.VaultRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; exists {
		return fmt.Errorf("insert record: duplicate id %s", record.ID)
	}
	for _, r := range m.records {
		if r.CiphertextRef == record.CiphertextRef {
			return fmt.Errorf("insert record: duplicate ciphertext ref %s", record.CiphertextRef)
		}
	}

	m.records[record.ID] = copyRecord(record)
	return nil
}

// GetRecord returns a copy of the record.
func (m *MemoryStore) GetRecord(ctx context.Context, id string) (*models.VaultRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyRecord(r), nil
}

// ListRecords returns the owner's records, newest first.
func (m *MemoryStore) ListRecords(ctx context.Context, ownerID string) ([]*models.VaultRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.VaultRecord
	for _, r := range m.records {
		if r.OwnerID == ownerID {
			out = append(out, copyRecord(r))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// DeleteRecord removes the record if ownerID owns it.
func (m *MemoryStore) DeleteRecord(ctx context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok || r.OwnerID != ownerID {
		return models.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// AppendAudit appends a copy of the entry. Like the SQL foreign key, a
// file reference must name an existing record.
func (m *MemoryStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	if m.AuditErr != nil {
		return m.AuditErr
	}
	if err := validateAudit(entry); err != nil {
		return err
	}

	// Round-trip details so callers see what a SQL store would return.
	details, err := cloneDetails(entry.Details)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.FileID != nil {
		if _, ok := m.records[*entry.FileID]; !ok {
			return fmt.Errorf("insert audit entry: %w", ErrUnknownFile)
		}
	}

	stored := *entry
	stored.Timestamp = entry.Timestamp.UTC()
	stored.UserID = clonePtr(entry.UserID)
	stored.FileID = clonePtr(entry.FileID)
	stored.UserAgent = clonePtr(entry.UserAgent)
	stored.Details = details
	m.audit = append(m.audit, &stored)
	return nil
}

// ListAudit returns matching entries, newest first. File references to
// records that no longer exist read as nil.
func (m *MemoryStore) ListAudit(ctx context.Context, q models.AuditQuery) ([]*models.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.AuditEntry
	for _, e := range m.audit {
		entry := m.present(e)

		if q.FileOwnerID != "" {
			if entry.FileID == nil || m.records[*entry.FileID].OwnerID != q.FileOwnerID {
				continue
			}
		}
		if q.Action != "" && entry.Action != q.Action {
			continue
		}
		if !q.Since.IsZero() && entry.Timestamp.Before(q.Since) {
			continue
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) present(e *models.AuditEntry) *models.AuditEntry {
	entry := *e
	entry.UserID = clonePtr(e.UserID)
	entry.UserAgent = clonePtr(e.UserAgent)
	entry.FileID = nil
	if e.FileID != nil {
		if _, ok := m.records[*e.FileID]; ok {
			entry.FileID = clonePtr(e.FileID)
		}
	}
	entry.Details, _ = cloneDetails(e.Details)
	return &entry
}

// EnsureProfile creates the default profile if missing.
func (m *MemoryStore) EnsureProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &models.ValidationError{Field: "user", Reason: "user id is required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		p = &models.UserProfile{
			UserID:    userID,
			Role:      models.DefaultRole,
			CreatedAt: time.Now().UTC(),
		}
		m.profiles[userID] = p
	}

	out := *p
	return &out, nil
}

// GetProfile returns a copy of the profile.
func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *p
	return &out, nil
}

// SetRole updates an existing profile.
func (m *MemoryStore) SetRole(ctx context.Context, userID string, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		return models.ErrNotFound
	}
	p.Role = role
	return nil
}

// DeleteUser removes the user's records and profile and returns the
// ciphertext refs of the removed records.
func (m *MemoryStore) DeleteUser(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var refs []string
	for id, r := range m.records {
		if r.OwnerID == userID {
			refs = append(refs, r.CiphertextRef)
			delete(m.records, id)
		}
	}

	for _, e := range m.audit {
		if e.UserID != nil && *e.UserID == userID {
			e.UserID = nil
		}
		if e.FileID != nil {
			if _, ok := m.records[*e.FileID]; !ok {
				e.FileID = nil
			}
		}
	}

	delete(m.profiles, userID)
	return refs, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Helper functions

func copyRecord(r *models.VaultRecord) *models.VaultRecord {
	out := *r
	out.Salt = append([]byte(nil), r.Salt...)
	out.IV = append([]byte(nil), r.IV...)
	return &out
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneDetails(d map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if len(d) == 0 {
		return out, nil
	}

	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode audit details: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode audit details: %w", err)
	}
	return out, nil
}
