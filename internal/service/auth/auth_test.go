package auth

import (
	"context"
	"testing"
	"time"

	"worksuite-service/internal/domain/auth"
	xerrors "worksuite-service/internal/pkg/errors"
	"worksuite-service/internal/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ---- fakes ----

type fakeUserRepo struct {
	users  map[int64]*auth.User
	nextID int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*auth.User), nextID: 1}
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeUserRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.FindByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (f *fakeUserRepo) Create(_ context.Context, user *auth.User) error {
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = time.Now()
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) UpdateLastLogin(_ context.Context, id int64) error {
	if u, ok := f.users[id]; ok {
		u.LastLogin.Time = time.Now()
		u.LastLogin.Valid = true
	}
	return nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	u, ok := f.users[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type fakeSessionRepo struct {
	sessions map[int64]*auth.Session
	nextID   int64
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[int64]*auth.Session), nextID: 1}
}

func (f *fakeSessionRepo) Create(_ context.Context, s *auth.Session) error {
	s.ID = f.nextID
	f.nextID++
	s.IsValid = true
	s.CreatedAt = time.Now()
	s.LastActivityAt = s.CreatedAt
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionRepo) FindByToken(_ context.Context, token string) (*auth.Session, error) {
	for _, s := range f.sessions {
		if s.Token == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeSessionRepo) ListActive(_ context.Context, userID int64) ([]*auth.Session, error) {
	now := time.Now()
	var out []*auth.Session
	for _, s := range f.sessions {
		if s.UserID == userID && s.Active(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) Touch(_ context.Context, token string) error { return nil }

func (f *fakeSessionRepo) Revoke(_ context.Context, sessionID, userID int64) (string, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID || !s.IsValid {
		return "", xerrors.ErrNotFound
	}
	s.IsValid = false
	return s.Token, nil
}

func (f *fakeSessionRepo) RevokeByToken(_ context.Context, token string) error {
	for _, s := range f.sessions {
		if s.Token == token {
			s.IsValid = false
		}
	}
	return nil
}

func (f *fakeSessionRepo) RevokeAll(_ context.Context, userID int64, exceptToken string) ([]string, error) {
	var revoked []string
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsValid && s.Token != exceptToken {
			s.IsValid = false
			revoked = append(revoked, s.Token)
		}
	}
	return revoked, nil
}

type fakeResetRepo struct {
	tokens map[string]*auth.PasswordResetToken
	users  *fakeUserRepo
	nextID int64
}

func newFakeResetRepo(users *fakeUserRepo) *fakeResetRepo {
	return &fakeResetRepo{tokens: make(map[string]*auth.PasswordResetToken), users: users, nextID: 1}
}

func (f *fakeResetRepo) Create(_ context.Context, t *auth.PasswordResetToken) error {
	for _, existing := range f.tokens {
		if existing.UserID == t.UserID && !existing.UsedAt.Valid {
			existing.UsedAt.Time = time.Now()
			existing.UsedAt.Valid = true
		}
	}
	t.ID = f.nextID
	f.nextID++
	t.CreatedAt = time.Now()
	cp := *t
	f.tokens[t.Token] = &cp
	return nil
}

func (f *fakeResetRepo) FindByToken(_ context.Context, token string) (*auth.PasswordResetToken, error) {
	t, ok := f.tokens[token]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeResetRepo) Redeem(_ context.Context, tokenID, userID int64, passwordHash string) error {
	for _, t := range f.tokens {
		if t.ID == tokenID {
			if t.UsedAt.Valid {
				return xerrors.ErrTokenUsed
			}
			t.UsedAt.Time = time.Now()
			t.UsedAt.Valid = true
			return f.users.UpdatePassword(context.Background(), userID, passwordHash)
		}
	}
	return xerrors.ErrNotFound
}

type fakeTwoFactor struct {
	accept string
}

func (f *fakeTwoFactor) ValidateLoginCode(_ context.Context, _ int64, code string) error {
	if code == f.accept {
		return nil
	}
	return xerrors.ErrInvalidCode
}

type fakeMailer struct {
	resetLinks []string
	changed    int
}

func (f *fakeMailer) SendPasswordReset(_, _, resetURL string) error {
	f.resetLinks = append(f.resetLinks, resetURL)
	return nil
}

func (f *fakeMailer) SendPasswordChanged(_, _ string) error {
	f.changed++
	return nil
}

// ---- harness ----

const testPassword = "hunter2hunter2"

type harness struct {
	svc      *AuthService
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	resets   *fakeResetRepo
	mailer   *fakeMailer
	tf       *fakeTwoFactor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	manager, err := jwt.Build(jwt.Config{
		Secret:   "test-secret-at-least-32-bytes-long!!",
		Issuer:   "worksuite",
		Audience: "worksuite-users",
		TTL:      time.Hour,
	})
	require.NoError(t, err)

	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	resets := newFakeResetRepo(users)
	mailer := &fakeMailer{}
	tf := &fakeTwoFactor{accept: "123456"}

	svc := NewAuthService(users, sessions, resets, tf, mailer, manager, nil, nil,
		"https://suite.example.com", zap.NewNop())

	return &harness{svc: svc, users: users, sessions: sessions, resets: resets, mailer: mailer, tf: tf}
}

func (h *harness) addUser(t *testing.T, email string, twoFactor bool) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	u := &auth.User{
		Email:            email,
		PasswordHash:     string(hash),
		FullName:         "Test User",
		Role:             "member",
		Status:           "active",
		TwoFactorEnabled: twoFactor,
	}
	require.NoError(t, h.users.Create(context.Background(), u))
	return u
}

func (h *harness) login(t *testing.T, email string) *auth.LoginResponse {
	t.Helper()
	resp, err := h.svc.Login(context.Background(), auth.LoginRequest{
		Email:    email,
		Password: testPassword,
		Device:   "test",
	})
	require.NoError(t, err)
	return resp
}

// ---- tests ----

func TestRegisterAndDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	info, err := h.svc.Register(ctx, auth.RegisterRequest{
		Email: "new@example.com", Password: testPassword, FullName: "New User",
	})
	require.NoError(t, err)
	assert.Equal(t, "member", info.Role)

	// Stored hash is not the plaintext
	stored := h.users.users[info.ID]
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(testPassword)))

	_, err = h.svc.Register(ctx, auth.RegisterRequest{
		Email: "new@example.com", Password: testPassword, FullName: "Again",
	})
	assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com", false)
	ctx := context.Background()

	_, errUnknown := h.svc.Login(ctx, auth.LoginRequest{Email: "nobody@example.com", Password: testPassword})
	_, errWrongPass := h.svc.Login(ctx, auth.LoginRequest{Email: "user@example.com", Password: "wrong"})

	assert.ErrorIs(t, errUnknown, xerrors.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPass, xerrors.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPass.Error())
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "user@example.com", false)
	h.users.users[u.ID].Status = "suspended"

	_, err := h.svc.Login(context.Background(), auth.LoginRequest{
		Email: "user@example.com", Password: testPassword,
	})
	assert.ErrorIs(t, err, xerrors.ErrForbidden)
}

func TestLoginIssuesTokenAndRecordsSession(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "user@example.com", false)

	resp := h.login(t, "user@example.com")
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, u.ID, resp.User.ID)

	claims, err := h.svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	// The registry row carries the token's JTI
	sess, err := h.sessions.FindByToken(context.Background(), claims.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
	assert.True(t, sess.IsValid)
}

func TestLoginWithTwoFactor(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com", true)
	ctx := context.Background()

	_, err := h.svc.Login(ctx, auth.LoginRequest{Email: "user@example.com", Password: testPassword})
	assert.ErrorIs(t, err, xerrors.ErrTwoFactorRequired)

	_, err = h.svc.Login(ctx, auth.LoginRequest{
		Email: "user@example.com", Password: testPassword, TwoFactorCode: "999999",
	})
	assert.ErrorIs(t, err, xerrors.ErrInvalidCode)

	_, err = h.svc.Login(ctx, auth.LoginRequest{
		Email: "user@example.com", Password: testPassword, TwoFactorCode: "123456",
	})
	assert.NoError(t, err)
}

func TestValidateTokenRejectsRevokedSession(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com", false)
	resp := h.login(t, "user@example.com")
	ctx := context.Background()

	claims, err := h.svc.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx, claims.ID))

	_, err = h.svc.ValidateToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)
}

func TestValidateTokenRejectsExpiredSessionRow(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com", false)
	resp := h.login(t, "user@example.com")
	ctx := context.Background()

	for _, s := range h.sessions.sessions {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	}

	_, err := h.svc.ValidateToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)
}

func TestValidateTokenAllowsMissingSessionRow(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com", false)
	resp := h.login(t, "user@example.com")
	ctx := context.Background()

	// Session recording is best-effort at login, so a missing row must
	// not lock the user out.
	h.sessions.sessions = make(map[int64]*auth.Session)

	_, err := h.svc.ValidateToken(ctx, resp.AccessToken)
	assert.NoError(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ValidateToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestLogoutAllKeepsCurrentSession(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "user@example.com", false)
	ctx := context.Background()

	first := h.login(t, "user@example.com")
	h.login(t, "user@example.com")
	h.login(t, "user@example.com")

	claims, err := h.svc.ValidateToken(ctx, first.AccessToken)
	require.NoError(t, err)

	count, err := h.svc.LogoutAll(ctx, u.ID, claims.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	sessions, err := h.svc.Sessions(ctx, u.ID, claims.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Current)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "user@example.com", false)
	ctx := context.Background()

	current := h.login(t, "user@example.com")
	other := h.login(t, "user@example.com")
	claims, err := h.svc.ValidateToken(ctx, current.AccessToken)
	require.NoError(t, err)

	err = h.svc.ChangePassword(ctx, u.ID, claims.ID, auth.ChangePasswordRequest{
		CurrentPassword: "wrong", NewPassword: "a-new-password-1",
	})
	assert.ErrorIs(t, err, xerrors.ErrInvalidCredentials)

	err = h.svc.ChangePassword(ctx, u.ID, claims.ID, auth.ChangePasswordRequest{
		CurrentPassword: testPassword, NewPassword: "a-new-password-1",
	})
	require.NoError(t, err)

	// New password works, the other session is gone, the mail went out
	_, err = h.svc.Login(ctx, auth.LoginRequest{Email: "user@example.com", Password: "a-new-password-1"})
	assert.NoError(t, err)
	_, err = h.svc.ValidateToken(ctx, other.AccessToken)
	assert.Error(t, err)
	_, err = h.svc.ValidateToken(ctx, current.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, 1, h.mailer.changed)
}

func TestRevokeSessionEnforcesOwnership(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser(t, "alice@example.com", false)
	bob := h.addUser(t, "bob@example.com", false)
	ctx := context.Background()

	h.login(t, "alice@example.com")
	aliceSessions, err := h.svc.Sessions(ctx, alice.ID, "")
	require.NoError(t, err)
	require.Len(t, aliceSessions, 1)

	// Bob cannot revoke Alice's session, and cannot tell it exists
	err = h.svc.RevokeSession(ctx, aliceSessions[0].ID, bob.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	// Alice can
	err = h.svc.RevokeSession(ctx, aliceSessions[0].ID, alice.ID)
	assert.NoError(t, err)

	// Revoking twice reports not found: the row is no longer valid
	err = h.svc.RevokeSession(ctx, aliceSessions[0].ID, alice.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestForgotPasswordIsGenericForUnknownEmail(t *testing.T) {
	h := newHarness(t)

	err := h.svc.ForgotPassword(context.Background(), "nobody@example.com")
	assert.NoError(t, err)
	assert.Empty(t, h.mailer.resetLinks)
}

func TestForgotPasswordSendsLink(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com", false)

	require.NoError(t, h.svc.ForgotPassword(context.Background(), "user@example.com"))
	require.Len(t, h.mailer.resetLinks, 1)
	assert.Contains(t, h.mailer.resetLinks[0], "https://suite.example.com/reset-password?token=")
}

func TestResetPasswordDistinguishesFailures(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com", false)
	ctx := context.Background()

	// Unknown token
	err := h.svc.ResetPassword(ctx, auth.ResetPasswordRequest{Token: "bogus", NewPassword: "a-new-password-1"})
	assert.ErrorIs(t, err, xerrors.ErrTokenInvalid)

	// Expired token
	require.NoError(t, h.svc.ForgotPassword(ctx, "user@example.com"))
	var raw string
	for tok := range h.resets.tokens {
		raw = tok
	}
	h.resets.tokens[raw].ExpiresAt = time.Now().Add(-time.Minute)
	err = h.svc.ResetPassword(ctx, auth.ResetPasswordRequest{Token: raw, NewPassword: "a-new-password-1"})
	assert.ErrorIs(t, err, xerrors.ErrTokenExpired)

	// Fresh token works once
	require.NoError(t, h.svc.ForgotPassword(ctx, "user@example.com"))
	for tok, rec := range h.resets.tokens {
		if !rec.UsedAt.Valid {
			raw = tok
		}
	}
	require.NoError(t, h.svc.ResetPassword(ctx, auth.ResetPasswordRequest{Token: raw, NewPassword: "a-new-password-1"}))

	// Password actually changed
	_, err = h.svc.Login(ctx, auth.LoginRequest{Email: "user@example.com", Password: "a-new-password-1"})
	assert.NoError(t, err)

	// Reuse is reported as used, not invalid
	err = h.svc.ResetPassword(ctx, auth.ResetPasswordRequest{Token: raw, NewPassword: "another-pass-2"})
	assert.ErrorIs(t, err, xerrors.ErrTokenUsed)
}

func TestResetPasswordRevokesAllSessions(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com", false)
	ctx := context.Background()

	sess := h.login(t, "user@example.com")

	require.NoError(t, h.svc.ForgotPassword(ctx, "user@example.com"))
	var raw string
	for tok, rec := range h.resets.tokens {
		if !rec.UsedAt.Valid {
			raw = tok
		}
	}
	require.NoError(t, h.svc.ResetPassword(ctx, auth.ResetPasswordRequest{Token: raw, NewPassword: "a-new-password-1"}))

	_, err := h.svc.ValidateToken(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)
}

func TestNewResetRequestInvalidatesPriorToken(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com", false)
	ctx := context.Background()

	require.NoError(t, h.svc.ForgotPassword(ctx, "user@example.com"))
	var first string
	for tok := range h.resets.tokens {
		first = tok
	}

	require.NoError(t, h.svc.ForgotPassword(ctx, "user@example.com"))

	err := h.svc.ResetPassword(ctx, auth.ResetPasswordRequest{Token: first, NewPassword: "a-new-password-1"})
	assert.ErrorIs(t, err, xerrors.ErrTokenUsed)
}
