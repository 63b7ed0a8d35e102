// internal/repository/postgres/twofactor_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"worksuite-service/internal/domain/twofactor"
	xerrors "worksuite-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TwoFactorRepository struct {
	db *pgxpool.Pool
}

func NewTwoFactorRepository(db *pgxpool.Pool) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

// UpsertSecret stores a freshly generated secret in the pending state.
// Re-running setup before verification replaces the previous pending
// secret. An already verified secret is never overwritten here; callers
// check the active state first.
func (r *TwoFactorRepository) UpsertSecret(ctx context.Context, userID int64, secretEncrypted string) error {
	query := `
		INSERT INTO user_two_factor_secrets (user_id, secret_encrypted, verified)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (user_id)
		DO UPDATE SET secret_encrypted = EXCLUDED.secret_encrypted,
		              verified = FALSE,
		              verified_at = NULL,
		              updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, userID, secretEncrypted)
	return err
}

// FindSecret retrieves the stored secret for a user
func (r *TwoFactorRepository) FindSecret(ctx context.Context, userID int64) (*twofactor.Secret, error) {
	query := `
		SELECT id, user_id, secret_encrypted, verified, verified_at, created_at, updated_at
		FROM user_two_factor_secrets
		WHERE user_id = $1
	`

	var s twofactor.Secret
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.SecretEncrypted, &s.Verified, &s.VerifiedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find 2fa secret: %w", err)
	}

	return &s, nil
}

// MarkVerified promotes a pending secret to active
func (r *TwoFactorRepository) MarkVerified(ctx context.Context, userID int64) error {
	query := `
		UPDATE user_two_factor_secrets
		SET verified = TRUE, verified_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND verified = FALSE
	`

	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// DeleteSecret removes the secret entirely (disable flow)
func (r *TwoFactorRepository) DeleteSecret(ctx context.Context, userID int64) error {
	query := `DELETE FROM user_two_factor_secrets WHERE user_id = $1`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

// ReplaceBackupCodes deletes any existing codes and inserts the new set
// in one transaction so a crash cannot leave a user with a partial set.
func (r *TwoFactorRepository) ReplaceBackupCodes(ctx context.Context, userID int64, codeHashes []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear backup codes: %w", err)
	}

	for _, hash := range codeHashes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_backup_codes (user_id, code_hash) VALUES ($1, $2)`,
			userID, hash,
		); err != nil {
			return fmt.Errorf("failed to insert backup code: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ConsumeBackupCode marks a matching unused code as used. The update is
// keyed on used_at IS NULL so the same code can never be redeemed twice.
func (r *TwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID int64, codeHash string) error {
	query := `
		UPDATE user_backup_codes
		SET used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, userID, codeHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// CountUnusedBackupCodes returns how many codes remain
func (r *TwoFactorRepository) CountUnusedBackupCodes(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM user_backup_codes WHERE user_id = $1 AND used_at IS NULL`

	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return count, nil
}

// DeleteBackupCodes removes all codes for the user (disable flow)
func (r *TwoFactorRepository) DeleteBackupCodes(ctx context.Context, userID int64) error {
	query := `DELETE FROM user_backup_codes WHERE user_id = $1`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

// StaleSecretCutoff is how long an unverified secret may linger before
// housekeeping removes it.
const StaleSecretCutoff = 24 * time.Hour

// DeleteStalePendingSecrets prunes setups that were never verified.
func (r *TwoFactorRepository) DeleteStalePendingSecrets(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM user_two_factor_secrets
		WHERE verified = FALSE AND created_at < NOW() - make_interval(secs => $1)
	`
	tag, err := r.db.Exec(ctx, query, StaleSecretCutoff.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
