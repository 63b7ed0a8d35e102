// internal/service/twofactor/twofactor.go
package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"worksuite-service/internal/domain/auth"
	"worksuite-service/internal/domain/twofactor"
	xerrors "worksuite-service/internal/pkg/errors"
	"worksuite-service/internal/pkg/security"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SecretStore persists TOTP secrets and backup codes.
type SecretStore interface {
	UpsertSecret(ctx context.Context, userID int64, secretEncrypted string) error
	FindSecret(ctx context.Context, userID int64) (*twofactor.Secret, error)
	MarkVerified(ctx context.Context, userID int64) error
	DeleteSecret(ctx context.Context, userID int64) error
	ReplaceBackupCodes(ctx context.Context, userID int64, codeHashes []string) error
	ConsumeBackupCode(ctx context.Context, userID int64, codeHash string) error
	CountUnusedBackupCodes(ctx context.Context, userID int64) (int, error)
	DeleteBackupCodes(ctx context.Context, userID int64) error
}

// UserStore is the slice of the user repository this service needs.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*auth.User, error)
	SetTwoFactorEnabled(ctx context.Context, id int64, enabled bool) error
}

// Mailer warns the account owner when the backup code set changes.
// Failures are logged, never fatal.
type Mailer interface {
	SendBackupCodesRegenerated(to, name string) error
}

const (
	totpPeriod     = 30
	totpSecretSize = 20
	backupCodeSet  = 10
	backupCodeLen  = 10

	// No 0/O/1/I so codes survive being read over the phone.
	backupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type Service struct {
	secrets   SecretStore
	users     UserStore
	encryptor *security.Encryptor
	mailer    Mailer // nil when SMTP is not configured
	issuer    string
	logger    *zap.Logger
}

func NewService(secrets SecretStore, users UserStore, encryptor *security.Encryptor, mailer Mailer, issuer string, logger *zap.Logger) *Service {
	return &Service{
		secrets:   secrets,
		users:     users,
		encryptor: encryptor,
		mailer:    mailer,
		issuer:    issuer,
		logger:    logger,
	}
}

// Setup starts enrollment: a fresh secret is generated and stored
// unverified. Running setup again before verification replaces the
// pending secret; once 2FA is active setup is refused.
func (s *Service) Setup(ctx context.Context, userID int64) (*twofactor.SetupResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.secrets.FindSecret(ctx, userID)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Verified {
		return nil, xerrors.Wrap(xerrors.ErrConflict, "two-factor authentication is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp key: %w", err)
	}

	encrypted, err := s.encryptor.Encrypt(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	if err := s.secrets.UpsertSecret(ctx, userID, encrypted); err != nil {
		return nil, fmt.Errorf("failed to store secret: %w", err)
	}

	s.logger.Info("2fa setup started", zap.Int64("user_id", userID))

	return &twofactor.SetupResponse{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// VerifySetup consumes the first authenticator code. On success the
// secret becomes active, the account flag flips on, and a fresh set of
// backup codes is returned. The plaintext codes are shown exactly once.
func (s *Service) VerifySetup(ctx context.Context, userID int64, code string) (*twofactor.VerifySetupResponse, error) {
	secret, err := s.secrets.FindSecret(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrTwoFactorNotSetup
	}
	if err != nil {
		return nil, err
	}
	if secret.Verified {
		return nil, xerrors.Wrap(xerrors.ErrConflict, "two-factor authentication is already enabled")
	}

	if err := s.validateCode(secret.SecretEncrypted, code); err != nil {
		return nil, err
	}

	if err := s.secrets.MarkVerified(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to mark secret verified: %w", err)
	}
	if err := s.users.SetTwoFactorEnabled(ctx, userID, true); err != nil {
		return nil, fmt.Errorf("failed to enable 2fa flag: %w", err)
	}

	codes, err := s.issueBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("2fa enabled", zap.Int64("user_id", userID))

	return &twofactor.VerifySetupResponse{BackupCodes: codes}, nil
}

// ValidateLoginCode checks a code at login: first as a TOTP code, then
// as a backup code. Backup codes are consumed on use.
func (s *Service) ValidateLoginCode(ctx context.Context, userID int64, code string) error {
	secret, err := s.secrets.FindSecret(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return xerrors.ErrTwoFactorNotActive
	}
	if err != nil {
		return err
	}
	if !secret.Verified {
		return xerrors.ErrTwoFactorNotActive
	}

	if err := s.validateCode(secret.SecretEncrypted, code); err == nil {
		return nil
	} else if !errors.Is(err, xerrors.ErrInvalidCode) {
		return err
	}

	return s.UseBackupCode(ctx, userID, code)
}

// UseBackupCode redeems a backup code. Each code works once.
func (s *Service) UseBackupCode(ctx context.Context, userID int64, code string) error {
	err := s.secrets.ConsumeBackupCode(ctx, userID, hashBackupCode(code))
	if errors.Is(err, xerrors.ErrNotFound) {
		return xerrors.ErrInvalidCode
	}
	if err != nil {
		return err
	}

	remaining, err := s.secrets.CountUnusedBackupCodes(ctx, userID)
	if err == nil && remaining <= 2 {
		s.logger.Warn("backup codes running low",
			zap.Int64("user_id", userID), zap.Int("remaining", remaining))
	}
	return nil
}

// Disable turns 2FA off. The password is re-confirmed here so a hijacked
// browser session alone cannot strip the second factor.
func (s *Service) Disable(ctx context.Context, userID int64, password string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return xerrors.ErrInvalidCredentials
	}

	if _, err := s.secrets.FindSecret(ctx, userID); errors.Is(err, xerrors.ErrNotFound) {
		return xerrors.ErrTwoFactorNotSetup
	} else if err != nil {
		return err
	}

	if err := s.secrets.DeleteSecret(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	if err := s.secrets.DeleteBackupCodes(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	if err := s.users.SetTwoFactorEnabled(ctx, userID, false); err != nil {
		return fmt.Errorf("failed to clear 2fa flag: %w", err)
	}

	s.logger.Info("2fa disabled", zap.Int64("user_id", userID))
	return nil
}

// RegenerateBackupCodes replaces the whole set. Requires the password
// and an active second factor; old codes stop working immediately.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID int64, password string) ([]string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, xerrors.ErrInvalidCredentials
	}

	secret, err := s.secrets.FindSecret(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrTwoFactorNotActive
	}
	if err != nil {
		return nil, err
	}
	if !secret.Verified {
		return nil, xerrors.ErrTwoFactorNotActive
	}

	codes, err := s.issueBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.mailer != nil {
		if err := s.mailer.SendBackupCodesRegenerated(user.Email, user.FullName); err != nil {
			s.logger.Warn("failed to send backup-codes email",
				zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	s.logger.Info("backup codes regenerated", zap.Int64("user_id", userID))
	return codes, nil
}

func (s *Service) validateCode(secretEncrypted, code string) error {
	plain, err := s.encryptor.Decrypt(secretEncrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt secret: %w", err)
	}

	valid, err := totp.ValidateCustom(code, plain, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return xerrors.ErrInvalidCode
	}
	return nil
}

func (s *Service) issueBackupCodes(ctx context.Context, userID int64) ([]string, error) {
	codes := make([]string, backupCodeSet)
	hashes := make([]string, backupCodeSet)
	for i := range codes {
		code, err := generateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes[i] = code
		hashes[i] = hashBackupCode(code)
	}

	if err := s.secrets.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}
	return codes, nil
}

func generateBackupCode() (string, error) {
	buf := make([]byte, backupCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, c := range buf {
		b.WriteByte(backupAlphabet[int(c)%len(backupAlphabet)])
		if i == backupCodeLen/2-1 {
			b.WriteByte('-')
		}
	}
	return b.String(), nil
}

// hashBackupCode normalizes and hashes a code. Only the digest is
// stored, so a leaked table does not leak usable codes.
func hashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
