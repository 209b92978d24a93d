package models

import (
	"strings"
	"time"
)

// Role controls access to the audit log.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleUser    Role = "user"
	RoleAuditor Role = "auditor"
)

// DefaultRole applies to users without a profile.
const DefaultRole = RoleUser

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleUser, RoleAuditor:
		return r, nil
	}
	return "", &ValidationError{Field: "role", Reason: "must be one of admin, user, auditor"}
}

// CanReadAudit reports whether the role may list audit entries at all.
func (r Role) CanReadAudit() bool {
	return r == RoleAdmin || r == RoleAuditor
}

// UserProfile extends an identity with its role. One per user.
type UserProfile struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
