// internal/service/auth/auth.go
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"worksuite-service/internal/domain/auth"
	xerrors "worksuite-service/internal/pkg/errors"
	"worksuite-service/internal/pkg/jwt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// ResetTokenTTL is how long a password reset link stays valid.
	ResetTokenTTL = time.Hour

	blacklistPrefix = "blacklist:"
)

// dummyHash is compared against when the email is unknown so login
// latency does not reveal whether an account exists.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// UserRepository is the user persistence surface the service needs.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
	FindByID(ctx context.Context, id int64) (*auth.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *auth.User) error
	UpdateLastLogin(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// SessionRepository manages the session registry.
type SessionRepository interface {
	Create(ctx context.Context, s *auth.Session) error
	FindByToken(ctx context.Context, token string) (*auth.Session, error)
	ListActive(ctx context.Context, userID int64) ([]*auth.Session, error)
	Touch(ctx context.Context, token string) error
	Revoke(ctx context.Context, sessionID, userID int64) (string, error)
	RevokeByToken(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID int64, exceptToken string) ([]string, error)
}

// ResetRepository manages password reset tokens.
type ResetRepository interface {
	Create(ctx context.Context, t *auth.PasswordResetToken) error
	FindByToken(ctx context.Context, token string) (*auth.PasswordResetToken, error)
	Redeem(ctx context.Context, tokenID, userID int64, passwordHash string) error
}

// TwoFactorVerifier checks second-factor codes at login.
type TwoFactorVerifier interface {
	ValidateLoginCode(ctx context.Context, userID int64, code string) error
}

// Mailer sends account emails. Failures are logged, never fatal.
type Mailer interface {
	SendPasswordReset(to, name, resetURL string) error
	SendPasswordChanged(to, name string) error
}

// Pusher delivers realtime force-logout events to connected clients.
type Pusher interface {
	ForceLogoutUser(userID int64, exceptToken string)
	ForceLogoutSession(token string)
}

type AuthService struct {
	users     UserRepository
	sessions  SessionRepository
	resets    ResetRepository
	twoFactor TwoFactorVerifier
	mailer    Mailer
	tokens    *jwt.Manager
	redis     redis.UniversalClient // nil when Redis is unavailable
	pusher    Pusher                // nil when the websocket hub is disabled
	baseURL   string
	logger    *zap.Logger
}

func NewAuthService(
	users UserRepository,
	sessions SessionRepository,
	resets ResetRepository,
	twoFactor TwoFactorVerifier,
	mailer Mailer,
	tokens *jwt.Manager,
	rdb redis.UniversalClient,
	pusher Pusher,
	baseURL string,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		resets:    resets,
		twoFactor: twoFactor,
		mailer:    mailer,
		tokens:    tokens,
		redis:     rdb,
		pusher:    pusher,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// SetPusher attaches the realtime hub after construction. The hub
// validates tokens through this service, so it cannot exist first.
func (s *AuthService) SetPusher(p Pusher) {
	s.pusher = p
}

// Register creates a new account with the member role.
func (s *AuthService) Register(ctx context.Context, req auth.RegisterRequest) (*auth.UserInfo, error) {
	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, xerrors.Wrap(xerrors.ErrDuplicateEntry, "an account with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &auth.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         "member",
		Status:       "active",
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return userInfo(user), nil
}

// Login authenticates credentials (and the second factor when enabled),
// issues a signed token and records the session. Session recording is
// best-effort: a registry write failure never blocks login.
func (s *AuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if errors.Is(err, xerrors.ErrNotFound) {
		// Equalize timing with the found-user path.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return nil, xerrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, xerrors.ErrInvalidCredentials
	}

	if user.Status != "active" {
		return nil, xerrors.Wrap(xerrors.ErrForbidden, "account is not active")
	}

	if user.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			return nil, xerrors.ErrTwoFactorRequired
		}
		if err := s.twoFactor.ValidateLoginCode(ctx, user.ID, req.TwoFactorCode); err != nil {
			return nil, err
		}
	}

	token, jti, err := s.tokens.Generator.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.tokens.Generator.Ttl)

	session := &auth.Session{
		UserID:    user.ID,
		Token:     jti,
		Device:    nullable(req.Device),
		IPAddress: nullable(req.IPAddress),
		Location:  nullable(req.Location),
		UserAgent: nullable(req.UserAgent),
		ExpiresAt: expiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.logger.Warn("failed to record session",
			zap.Int64("user_id", user.ID), zap.Error(err))
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to stamp last login",
			zap.Int64("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("user logged in", zap.Int64("user_id", user.ID), zap.String("jti", jti))

	return &auth.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.Generator.Ttl.Seconds()),
		ExpiresAt:   expiresAt,
		User:        *userInfo(user),
	}, nil
}

// ValidateToken is the per-request check used by the middleware: verify
// the signature and claims, reject blacklisted tokens, then reject
// tokens whose session row was revoked or expired. A missing session
// row is allowed because session recording at login is best-effort.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*jwt.Claims, error) {
	claims, err := s.tokens.Verifier.Verify(tokenString)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrUnauthorized, "invalid token")
	}

	blacklisted, err := s.isBlacklisted(ctx, claims.ID)
	if err != nil {
		s.logger.Warn("blacklist check failed", zap.Error(err))
	} else if blacklisted {
		return nil, xerrors.ErrSessionExpired
	}

	session, err := s.sessions.FindByToken(ctx, claims.ID)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session != nil {
		if !session.Active(time.Now()) {
			return nil, xerrors.ErrSessionExpired
		}
		if err := s.sessions.Touch(ctx, claims.ID); err != nil {
			s.logger.Debug("failed to touch session", zap.Error(err))
		}
	}

	return claims, nil
}

// Logout revokes the current session and blacklists its token until the
// token would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, jti string) error {
	if err := s.sessions.RevokeByToken(ctx, jti); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	s.blacklist(ctx, jti)
	return nil
}

// LogoutAll revokes every other session of the user, keeping the one
// the request came from.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64, currentJTI string) (int, error) {
	tokens, err := s.sessions.RevokeAll(ctx, userID, currentJTI)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	for _, t := range tokens {
		s.blacklist(ctx, t)
	}
	if s.pusher != nil {
		s.pusher.ForceLogoutUser(userID, currentJTI)
	}

	s.logger.Info("sessions revoked", zap.Int64("user_id", userID), zap.Int("count", len(tokens)))
	return len(tokens), nil
}

// ChangePassword verifies the current password, writes the new hash and
// signs out every other session.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, currentJTI string, req auth.ChangePasswordRequest) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return xerrors.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if _, err := s.LogoutAll(ctx, userID, currentJTI); err != nil {
		s.logger.Warn("failed to revoke other sessions after password change",
			zap.Int64("user_id", userID), zap.Error(err))
	}

	if err := s.mailer.SendPasswordChanged(user.Email, user.FullName); err != nil {
		s.logger.Warn("failed to send password-changed email", zap.Error(err))
	}

	s.logger.Info("password changed", zap.Int64("user_id", userID))
	return nil
}

// Me returns the authenticated user's profile.
func (s *AuthService) Me(ctx context.Context, userID int64) (*auth.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userInfo(user), nil
}

// Sessions lists the user's active sessions, flagging the current one.
func (s *AuthService) Sessions(ctx context.Context, userID int64, currentJTI string) ([]auth.SessionInfo, error) {
	sessions, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]auth.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, auth.SessionInfo{
			ID:             sess.ID,
			Device:         sess.Device.String,
			IPAddress:      sess.IPAddress.String,
			Location:       sess.Location.String,
			Current:        sess.Token == currentJTI,
			CreatedAt:      sess.CreatedAt,
			LastActivityAt: sess.LastActivityAt,
			ExpiresAt:      sess.ExpiresAt,
		})
	}
	return infos, nil
}

// RevokeSession revokes one session the user owns. A session id that
// does not exist or belongs to someone else yields ErrNotFound; callers
// cannot distinguish the two cases.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID, userID int64) error {
	token, err := s.sessions.Revoke(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	s.blacklist(ctx, token)
	if s.pusher != nil {
		s.pusher.ForceLogoutSession(token)
	}

	s.logger.Info("session revoked",
		zap.Int64("user_id", userID), zap.Int64("session_id", sessionID))
	return nil
}

// ForgotPassword creates a reset token and emails the link. The caller
// always gets the same generic answer whether or not the email exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, xerrors.ErrNotFound) {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	raw, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	token := &auth.PasswordResetToken{
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: time.Now().Add(ResetTokenTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, raw)
	if err := s.mailer.SendPasswordReset(user.Email, user.FullName, resetURL); err != nil {
		s.logger.Error("failed to send reset email",
			zap.Int64("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("password reset requested", zap.Int64("user_id", user.ID))
	return nil
}

// ResetPassword redeems a reset token. Expired and already-used tokens
// fail with distinct errors. The password write and the token
// consumption happen in one transaction, then every session is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, req auth.ResetPasswordRequest) error {
	token, err := s.resets.FindByToken(ctx, req.Token)
	if errors.Is(err, xerrors.ErrNotFound) {
		return xerrors.ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("failed to look up reset token: %w", err)
	}

	if token.UsedAt.Valid {
		return xerrors.ErrTokenUsed
	}
	if time.Now().After(token.ExpiresAt) {
		return xerrors.ErrTokenExpired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.resets.Redeem(ctx, token.ID, token.UserID, string(hash)); err != nil {
		return err
	}

	revoked, err := s.sessions.RevokeAll(ctx, token.UserID, "")
	if err != nil {
		s.logger.Warn("failed to revoke sessions after reset",
			zap.Int64("user_id", token.UserID), zap.Error(err))
	}
	for _, t := range revoked {
		s.blacklist(ctx, t)
	}
	if s.pusher != nil {
		s.pusher.ForceLogoutUser(token.UserID, "")
	}

	if user, err := s.users.FindByID(ctx, token.UserID); err == nil {
		if err := s.mailer.SendPasswordChanged(user.Email, user.FullName); err != nil {
			s.logger.Warn("failed to send password-changed email", zap.Error(err))
		}
	}

	s.logger.Info("password reset completed", zap.Int64("user_id", token.UserID))
	return nil
}

// blacklist marks a JTI revoked for the lifetime a token could still
// have. Redis down means revoked sessions are only caught by the DB
// validity check, so failures are logged, not fatal.
func (s *AuthService) blacklist(ctx context.Context, jti string) {
	if s.redis == nil || jti == "" {
		return
	}
	if err := s.redis.Set(ctx, blacklistPrefix+jti, "1", s.tokens.Generator.Ttl).Err(); err != nil {
		s.logger.Warn("failed to blacklist token", zap.Error(err))
	}
}

func (s *AuthService) isBlacklisted(ctx context.Context, jti string) (bool, error) {
	if s.redis == nil {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func generateResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func userInfo(u *auth.User) *auth.UserInfo {
	return &auth.UserInfo{
		ID:               u.ID,
		Email:            u.Email,
		FullName:         u.FullName,
		Role:             u.Role,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
