// internal/domain/auth/entity.go
package auth

import (
	"database/sql"
	"time"
)

// User represents an account in the suite.
type User struct {
	ID               int64        `json:"id" db:"id"`
	Email            string       `json:"email" db:"email"`
	PasswordHash     string       `json:"-" db:"password_hash"`
	FullName         string       `json:"full_name" db:"full_name"`
	Role             string       `json:"role" db:"role"` // owner, admin, member
	Status           string       `json:"status" db:"status"` // active, inactive, suspended
	TwoFactorEnabled bool         `json:"two_factor_enabled" db:"two_factor_enabled"`
	LastLogin        sql.NullTime `json:"last_login" db:"last_login"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
	DeletedAt        sql.NullTime `json:"-" db:"deleted_at"`
}

// Session is a persisted record of a login. Sessions are never hard
// deleted: revocation flips is_valid so history remains auditable.
// A session is active iff is_valid AND expires_at is in the future.
type Session struct {
	ID             int64          `json:"id" db:"id"`
	UserID         int64          `json:"user_id" db:"user_id"`
	Token          string         `json:"-" db:"token"` // JTI of the signed session token
	Device         sql.NullString `json:"device" db:"device"`
	IPAddress      sql.NullString `json:"ip_address" db:"ip_address"`
	Location       sql.NullString `json:"location" db:"location"`
	UserAgent      sql.NullString `json:"user_agent" db:"user_agent"`
	IsValid        bool           `json:"is_valid" db:"is_valid"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at" db:"last_activity_at"`
	ExpiresAt      time.Time      `json:"expires_at" db:"expires_at"`
}

// Active reports whether the session still authenticates requests.
func (s *Session) Active(now time.Time) bool {
	return s.IsValid && s.ExpiresAt.After(now)
}

// PasswordResetToken is a single-use, short-lived token. At most one
// unused token is valid per user: creating a new one invalidates prior
// unused tokens.
type PasswordResetToken struct {
	ID        int64        `json:"id" db:"id"`
	UserID    int64        `json:"user_id" db:"user_id"`
	Token     string       `json:"-" db:"token"`
	ExpiresAt time.Time    `json:"expires_at" db:"expires_at"`
	UsedAt    sql.NullTime `json:"used_at" db:"used_at"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
