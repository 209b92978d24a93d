package models

import (
	"fmt"
	"time"
)

// Action identifies the audited operation.
type Action string

const (
	ActionUpload   Action = "UPLOAD"
	ActionDownload Action = "DOWNLOAD"
	ActionDelete   Action = "DELETE"
	ActionView     Action = "VIEW"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionUpload, ActionDownload, ActionDelete, ActionView:
		return true
	}
	return false
}

// Display returns the human readable action label.
func (a Action) Display() string {
	switch a {
	case ActionUpload:
		return "File Upload"
	case ActionDownload:
		return "File Download"
	case ActionDelete:
		return "File Deletion"
	case ActionView:
		return "File Metadata View"
	default:
		return string(a)
	}
}

// Detail keys and values written into AuditEntry.Details.
const (
	DetailStatus   = "status"
	DetailReason   = "reason"
	DetailSize     = "size"
	DetailFilename = "filename"

	StatusSuccess = "success"
	StatusFailed  = "failed"

	ReasonWrongPassword  = "wrong_password"
	ReasonNotFound       = "not_found"
	ReasonIntegrity      = "integrity_error"
	ReasonStorage        = "storage_error"
	ReasonInvalidRequest = "invalid_request"
	ReasonEncryption     = "encryption_error"
)

// AuditEntry is one immutable access log row. UserID and FileID become
// nil when the referenced user or file is removed.
type AuditEntry struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"user_id"`
	FileID    *string        `json:"file_id"`
	Action    Action         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	SourceIP  string         `json:"source_ip"`
	UserAgent *string        `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details"`
}

// Status returns the recorded outcome, if any.
func (e *AuditEntry) Status() string {
	if s, ok := e.Details[DetailStatus].(string); ok {
		return s
	}
	return ""
}

func (e *AuditEntry) String() string {
	who := "system"
	if e.UserID != nil {
		who = *e.UserID
	}
	return fmt.Sprintf("%s by %s at %s", e.Action.Display(), who, e.Timestamp.Format(time.RFC3339))
}

// AuditQuery narrows an audit listing. Zero values disable a filter.
type AuditQuery struct {
	// FileOwnerID keeps entries whose referenced file belongs to this user.
	FileOwnerID string
	Action      Action
	Since       time.Time
	Limit       int
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
