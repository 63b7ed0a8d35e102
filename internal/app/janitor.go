// internal/app/janitor.go
package app

import (
	"context"
	"time"

	"worksuite-service/internal/repository/postgres"

	"go.uber.org/zap"
)

const (
	janitorInterval = time.Hour

	// Expired sessions stay queryable for a while so the security page
	// can show recent history before rows disappear.
	sessionRetention = 30 * 24 * time.Hour
)

// runJanitor periodically prunes rows that no code path will read again:
// sessions long past expiry, expired reset tokens and 2FA setups that
// were started but never verified.
func runJanitor(
	ctx context.Context,
	sessions *postgres.SessionRepository,
	resets *postgres.PasswordResetRepository,
	twoFactor *postgres.TwoFactorRepository,
	logger *zap.Logger,
) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-sessionRetention)
		if n, err := sessions.DeleteExpiredBefore(ctx, cutoff); err != nil {
			logger.Warn("failed to prune sessions", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned expired sessions", zap.Int64("count", n))
		}

		if n, err := resets.DeleteExpired(ctx); err != nil {
			logger.Warn("failed to prune reset tokens", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned expired reset tokens", zap.Int64("count", n))
		}

		if n, err := twoFactor.DeleteStalePendingSecrets(ctx); err != nil {
			logger.Warn("failed to prune pending 2fa secrets", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned stale 2fa setups", zap.Int64("count", n))
		}
	}
}
