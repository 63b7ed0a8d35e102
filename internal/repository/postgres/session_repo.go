// internal/repository/postgres/session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"worksuite-service/internal/domain/auth"
	xerrors "worksuite-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session record at login time
func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	query := `
		INSERT INTO user_sessions (user_id, token, device, ip_address, location, user_agent,
		                           is_valid, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), $7)
		RETURNING id, is_valid, created_at, last_activity_at
	`

	return r.db.QueryRow(ctx, query,
		s.UserID, s.Token, s.Device, s.IPAddress, s.Location, s.UserAgent, s.ExpiresAt,
	).Scan(&s.ID, &s.IsValid, &s.CreatedAt, &s.LastActivityAt)
}

// FindByToken looks up a session by its token (JTI)
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*auth.Session, error) {
	query := `
		SELECT id, user_id, token, device, ip_address, location, user_agent,
		       is_valid, created_at, last_activity_at, expires_at
		FROM user_sessions
		WHERE token = $1
	`

	var s auth.Session
	err := r.db.QueryRow(ctx, query, token).Scan(
		&s.ID, &s.UserID, &s.Token, &s.Device, &s.IPAddress, &s.Location, &s.UserAgent,
		&s.IsValid, &s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return &s, nil
}

// ListActive returns valid, unexpired sessions ordered by recency of use
func (r *SessionRepository) ListActive(ctx context.Context, userID int64) ([]*auth.Session, error) {
	query := `
		SELECT id, user_id, token, device, ip_address, location, user_agent,
		       is_valid, created_at, last_activity_at, expires_at
		FROM user_sessions
		WHERE user_id = $1 AND is_valid = TRUE AND expires_at > NOW()
		ORDER BY last_activity_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		var s auth.Session
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Token, &s.Device, &s.IPAddress, &s.Location, &s.UserAgent,
			&s.IsValid, &s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// Touch updates last_activity_at. Best-effort: callers log failures only.
func (r *SessionRepository) Touch(ctx context.Context, token string) error {
	query := `UPDATE user_sessions SET last_activity_at = NOW() WHERE token = $1 AND is_valid = TRUE`
	_, err := r.db.Exec(ctx, query, token)
	return err
}

// Revoke invalidates one session the user owns. Soft delete: the row is
// kept for audit. Returns the revoked token. A session belonging to a
// different user is never touched; that case fails with ErrNotFound.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID, userID int64) (string, error) {
	query := `
		UPDATE user_sessions
		SET is_valid = FALSE
		WHERE id = $1 AND user_id = $2 AND is_valid = TRUE
		RETURNING token
	`

	var token string
	err := r.db.QueryRow(ctx, query, sessionID, userID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", xerrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to revoke session: %w", err)
	}

	return token, nil
}

// RevokeByToken invalidates the session carrying the given token
func (r *SessionRepository) RevokeByToken(ctx context.Context, token string) error {
	query := `UPDATE user_sessions SET is_valid = FALSE WHERE token = $1 AND is_valid = TRUE`
	_, err := r.db.Exec(ctx, query, token)
	return err
}

// RevokeAll invalidates every valid session for the user except the one
// carrying exceptToken (pass "" to revoke everything). Returns the
// revoked tokens so callers can blacklist them.
func (r *SessionRepository) RevokeAll(ctx context.Context, userID int64, exceptToken string) ([]string, error) {
	query := `
		UPDATE user_sessions
		SET is_valid = FALSE
		WHERE user_id = $1 AND is_valid = TRUE AND ($2 = '' OR token <> $2)
		RETURNING token
	`

	rows, err := r.db.Query(ctx, query, userID, exceptToken)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

// DeleteExpiredBefore prunes long-dead session rows (housekeeping).
func (r *SessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM user_sessions WHERE expires_at < $1`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
