// internal/repository/postgres/reset_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"worksuite-service/internal/domain/auth"
	xerrors "worksuite-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PasswordResetRepository struct {
	db *pgxpool.Pool
}

func NewPasswordResetRepository(db *pgxpool.Pool) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Create stores a new reset token. Any earlier unused tokens for the
// same user are invalidated first so only the latest email link works.
func (r *PasswordResetRepository) Create(ctx context.Context, t *auth.PasswordResetToken) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE password_reset_tokens SET used_at = NOW() WHERE user_id = $1 AND used_at IS NULL`,
		t.UserID,
	); err != nil {
		return fmt.Errorf("failed to invalidate old tokens: %w", err)
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO password_reset_tokens (user_id, token, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		t.UserID, t.Token, t.ExpiresAt,
	).Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	return tx.Commit(ctx)
}

// FindByToken retrieves a reset token regardless of state. Callers
// distinguish expired and used themselves so each gets its own error.
func (r *PasswordResetRepository) FindByToken(ctx context.Context, token string) (*auth.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token = $1
	`

	var t auth.PasswordResetToken
	err := r.db.QueryRow(ctx, query, token).Scan(
		&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reset token: %w", err)
	}

	return &t, nil
}

// Redeem atomically consumes a reset token and writes the new password
// hash. Either both happen or neither does. Returns ErrTokenUsed when a
// concurrent redemption got there first.
func (r *PasswordResetRepository) Redeem(ctx context.Context, tokenID, userID int64, passwordHash string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE password_reset_tokens SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`,
		tokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrTokenUsed
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		passwordHash, userID,
	); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return tx.Commit(ctx)
}

// DeleteExpired prunes tokens past their expiry (housekeeping).
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE expires_at < NOW()`
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
