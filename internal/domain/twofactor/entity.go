// internal/domain/twofactor/entity.go
package twofactor

import (
	"database/sql"
	"time"
)

// Per-user 2FA state machine:
// no secret row            -> NoSecret
// secret row, verified=false -> PendingVerification
// secret row, verified=true  -> Active
// Disable deletes the row and all backup codes, returning to NoSecret.

// Secret holds a user's TOTP secret, AES-GCM encrypted at rest.
type Secret struct {
	ID              int64        `json:"id" db:"id"`
	UserID          int64        `json:"user_id" db:"user_id"`
	SecretEncrypted string       `json:"-" db:"secret_encrypted"`
	Verified        bool         `json:"verified" db:"verified"`
	VerifiedAt      sql.NullTime `json:"verified_at" db:"verified_at"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// BackupCode is a single-use recovery code. Only the SHA-256 hash is
// stored; a used code keeps its row with used_at stamped.
type BackupCode struct {
	ID        int64        `json:"id" db:"id"`
	UserID    int64        `json:"user_id" db:"user_id"`
	CodeHash  string       `json:"-" db:"code_hash"`
	UsedAt    sql.NullTime `json:"used_at" db:"used_at"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
