package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/lockbox/internal/config"
	"github.com/TheMichaelB/lockbox/internal/events"
	"github.com/TheMichaelB/lockbox/internal/models"
)

// SQLStore implements Store over SQLite or PostgreSQL. Queries are
// written with ? placeholders and rebound for the driver.
type SQLStore struct {
	db     *sqlx.DB
	logger *events.Logger
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *events.Logger) (*SQLStore, error) {
	dsn := cfg.DSN
	if cfg.Driver == config.DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return NewSQLStore(db, logger), nil
}

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sqlx.DB, logger *events.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: logger.WithField("component", "sql_metadata_store"),
	}
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

// sqliteDSN turns on foreign keys (needed for ON DELETE SET NULL), WAL
// and a busy timeout unless the DSN already sets options.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

const recordColumns = `id, owner_id, original_filename, ciphertext_ref, plaintext_size,
    salt, iv, key_hash, created_at, modified_at`

// CreateRecord inserts a record.
func (s *SQLStore) CreateRecord(ctx context.Context, record *models.VaultRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	query := s.db.Rebind(`INSERT INTO vault_records (` + recordColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.OwnerID, record.OriginalFilename, record.CiphertextRef,
		record.PlaintextSize, record.Salt, record.IV, record.KeyHash,
		record.CreatedAt.UTC(), record.ModifiedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"record_id": record.ID,
		"owner_id":  record.OwnerID,
	}).Debug("Record created")

	return nil
}

// GetRecord loads a record by ID.
func (s *SQLStore) GetRecord(ctx context.Context, id string) (*models.VaultRecord, error) {
	var record models.VaultRecord
	query := s.db.Rebind(`SELECT ` + recordColumns + ` FROM vault_records WHERE id = ?`)

	if err := s.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query record: %w", err)
	}

	normalizeRecord(&record)
	return &record, nil
}

// ListRecords returns the owner's records, newest first.
func (s *SQLStore) ListRecords(ctx context.Context, ownerID string) ([]*models.VaultRecord, error) {
	var records []*models.VaultRecord
	query := s.db.Rebind(`SELECT ` + recordColumns + ` FROM vault_records
        WHERE owner_id = ?
        ORDER BY created_at DESC, id DESC`)

	if err := s.db.SelectContext(ctx, &records, query, ownerID); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	for _, r := range records {
		normalizeRecord(r)
	}
	return records, nil
}

// DeleteRecord removes the record if ownerID owns it.
func (s *SQLStore) DeleteRecord(ctx context.Context, id, ownerID string) error {
	query := s.db.Rebind(`DELETE FROM vault_records WHERE id = ? AND owner_id = ?`)

	res, err := s.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// auditRow mirrors an audit_log row.
type auditRow struct {
	ID        string         `db:"id"`
	UserID    sql.NullString `db:"user_id"`
	FileID    sql.NullString `db:"file_id"`
	Action    string         `db:"action"`
	Timestamp time.Time      `db:"timestamp"`
	SourceIP  string         `db:"source_ip"`
	UserAgent sql.NullString `db:"user_agent"`
	Details   []byte         `db:"details"`
}

func (r *auditRow) toEntry() (*models.AuditEntry, error) {
	entry := &models.AuditEntry{
		ID:        r.ID,
		Action:    models.Action(r.Action),
		Timestamp: r.Timestamp.UTC(),
		SourceIP:  r.SourceIP,
		Details:   map[string]any{},
	}
	if r.UserID.Valid {
		entry.UserID = &r.UserID.String
	}
	if r.FileID.Valid {
		entry.FileID = &r.FileID.String
	}
	if r.UserAgent.Valid {
		entry.UserAgent = &r.UserAgent.String
	}
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &entry.Details); err != nil {
			return nil, fmt.Errorf("decode audit details %s: %w", r.ID, err)
		}
	}
	return entry, nil
}

// AppendAudit writes one audit entry.
func (s *SQLStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	if err := validateAudit(entry); err != nil {
		return err
	}

	fields := entry.Details
	if fields == nil {
		fields = map[string]any{}
	}

	details, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	query := s.db.Rebind(`INSERT INTO audit_log
        (id, user_id, file_id, action, timestamp, source_ip, user_agent, details)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.FileID, string(entry.Action),
		entry.Timestamp.UTC(), entry.SourceIP, entry.UserAgent, string(details),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAudit returns matching entries, newest first.
func (s *SQLStore) ListAudit(ctx context.Context, q models.AuditQuery) ([]*models.AuditEntry, error) {
	var (
		sb    strings.Builder
		where []string
		args  []interface{}
	)

	sb.WriteString(`SELECT a.id, a.user_id, a.file_id, a.action, a.timestamp,
        a.source_ip, a.user_agent, a.details
        FROM audit_log a`)

	if q.FileOwnerID != "" {
		sb.WriteString(` JOIN vault_records r ON r.id = a.file_id`)
		where = append(where, "r.owner_id = ?")
		args = append(args, q.FileOwnerID)
	}
	if q.Action != "" {
		where = append(where, "a.action = ?")
		args = append(args, string(q.Action))
	}
	if !q.Since.IsZero() {
		where = append(where, "a.timestamp >= ?")
		args = append(args, q.Since.UTC())
	}

	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY a.timestamp DESC, a.id DESC")

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(sb.String()), args...); err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}

	entries := make([]*models.AuditEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// EnsureProfile inserts the default profile if missing and returns the
// stored one.
func (s *SQLStore) EnsureProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &models.ValidationError{Field: "user", Reason: "user id is required"}
	}

	query := s.db.Rebind(`INSERT INTO user_profiles (user_id, role, created_at)
        VALUES (?, ?, ?)
        ON CONFLICT (user_id) DO NOTHING`)

	if _, err := s.db.ExecContext(ctx, query, userID, string(models.DefaultRole), time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}

	return s.GetProfile(ctx, userID)
}

// GetProfile loads a profile.
func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	query := s.db.Rebind(`SELECT user_id, role, created_at FROM user_profiles WHERE user_id = ?`)

	if err := s.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}

	profile.CreatedAt = profile.CreatedAt.UTC()
	return &profile, nil
}

// SetRole updates an existing profile.
func (s *SQLStore) SetRole(ctx context.Context, userID string, role models.Role) error {
	query := s.db.Rebind(`UPDATE user_profiles SET role = ? WHERE user_id = ?`)

	res, err := s.db.ExecContext(ctx, query, string(role), userID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteUser removes the user's records and profile and nulls their
// audit references. It returns the ciphertext refs of the removed records,
// including any inserted after the caller last listed them.
func (s *SQLStore) DeleteUser(ctx context.Context, userID string) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Detach explicitly so drivers without FK enforcement behave the same.
	detach := []string{
		`UPDATE audit_log SET file_id = NULL
            WHERE file_id IN (SELECT id FROM vault_records WHERE owner_id = ?)`,
		`UPDATE audit_log SET user_id = NULL WHERE user_id = ?`,
	}
	for _, stmt := range detach {
		if _, err := tx.ExecContext(ctx, tx.Rebind(stmt), userID); err != nil {
			return nil, fmt.Errorf("delete user: %w", err)
		}
	}

	var refs []string
	query := tx.Rebind(`DELETE FROM vault_records WHERE owner_id = ? RETURNING ciphertext_ref`)
	if err := tx.SelectContext(ctx, &refs, query, userID); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM user_profiles WHERE user_id = ?`), userID); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"records": len(refs),
	}).Info("User removed")
	return refs, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Helper functions

func normalizeRecord(r *models.VaultRecord) {
	r.CreatedAt = r.CreatedAt.UTC()
	r.ModifiedAt = r.ModifiedAt.UTC()
}

func validateAudit(entry *models.AuditEntry) error {
	if entry.ID == "" {
		return &models.ValidationError{Field: "audit", Reason: "entry id is required"}
	}
	if !entry.Action.Valid() {
		return &models.ValidationError{Field: "audit", Reason: fmt.Sprintf("unknown action %q", entry.Action)}
	}
	return nil
}
