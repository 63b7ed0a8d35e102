package twofactor

import (
	"context"
	"strings"
	"testing"
	"time"

	"worksuite-service/internal/domain/auth"
	"worksuite-service/internal/domain/twofactor"
	xerrors "worksuite-service/internal/pkg/errors"
	"worksuite-service/internal/pkg/security"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testKeyHex = "603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4"

type fakeSecretStore struct {
	secrets map[int64]*twofactor.Secret
	codes   map[int64]map[string]bool // hash -> used
}

func newFakeSecretStore() *fakeSecretStore {
	return &fakeSecretStore{
		secrets: make(map[int64]*twofactor.Secret),
		codes:   make(map[int64]map[string]bool),
	}
}

func (f *fakeSecretStore) UpsertSecret(_ context.Context, userID int64, secretEncrypted string) error {
	f.secrets[userID] = &twofactor.Secret{
		UserID:          userID,
		SecretEncrypted: secretEncrypted,
		CreatedAt:       time.Now(),
	}
	return nil
}

func (f *fakeSecretStore) FindSecret(_ context.Context, userID int64) (*twofactor.Secret, error) {
	s, ok := f.secrets[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSecretStore) MarkVerified(_ context.Context, userID int64) error {
	s, ok := f.secrets[userID]
	if !ok || s.Verified {
		return xerrors.ErrNotFound
	}
	s.Verified = true
	return nil
}

func (f *fakeSecretStore) DeleteSecret(_ context.Context, userID int64) error {
	delete(f.secrets, userID)
	return nil
}

func (f *fakeSecretStore) ReplaceBackupCodes(_ context.Context, userID int64, codeHashes []string) error {
	set := make(map[string]bool, len(codeHashes))
	for _, h := range codeHashes {
		set[h] = false
	}
	f.codes[userID] = set
	return nil
}

func (f *fakeSecretStore) ConsumeBackupCode(_ context.Context, userID int64, codeHash string) error {
	set, ok := f.codes[userID]
	if !ok {
		return xerrors.ErrNotFound
	}
	used, exists := set[codeHash]
	if !exists || used {
		return xerrors.ErrNotFound
	}
	set[codeHash] = true
	return nil
}

func (f *fakeSecretStore) CountUnusedBackupCodes(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, used := range f.codes[userID] {
		if !used {
			n++
		}
	}
	return n, nil
}

func (f *fakeSecretStore) DeleteBackupCodes(_ context.Context, userID int64) error {
	delete(f.codes, userID)
	return nil
}

type fakeUserStore struct {
	users map[int64]*auth.User
}

func (f *fakeUserStore) FindByID(_ context.Context, id int64) (*auth.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) SetTwoFactorEnabled(_ context.Context, id int64, enabled bool) error {
	u, ok := f.users[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	u.TwoFactorEnabled = enabled
	return nil
}

const testPassword = "correct horse battery staple"

func newTestService(t *testing.T) (*Service, *fakeSecretStore, *fakeUserStore) {
	t.Helper()

	enc, err := security.NewEncryptor(testKeyHex)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	users := &fakeUserStore{users: map[int64]*auth.User{
		1: {ID: 1, Email: "user@example.com", PasswordHash: string(hash)},
	}}
	secrets := newFakeSecretStore()

	return NewService(secrets, users, enc, nil, "Worksuite", zap.NewNop()), secrets, users
}

// enroll walks a user through setup + verification and returns the
// plaintext TOTP secret and backup codes.
func enroll(t *testing.T, svc *Service) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := svc.Setup(ctx, 1)
	require.NoError(t, err)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	verify, err := svc.VerifySetup(ctx, 1, code)
	require.NoError(t, err)

	return setup.Secret, verify.BackupCodes
}

func TestSetupReturnsSecretAndURI(t *testing.T) {
	svc, secrets, _ := newTestService(t)

	resp, err := svc.Setup(context.Background(), 1)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, resp.ProvisioningURI, "Worksuite")

	stored := secrets.secrets[1]
	require.NotNil(t, stored)
	assert.False(t, stored.Verified)
	assert.NotEqual(t, resp.Secret, stored.SecretEncrypted)
}

func TestSetupReplacesPendingSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Setup(ctx, 1)
	require.NoError(t, err)
	second, err := svc.Setup(ctx, 1)
	require.NoError(t, err)

	assert.NotEqual(t, first.Secret, second.Secret)

	// The first secret no longer verifies
	code, err := totp.GenerateCode(first.Secret, time.Now())
	require.NoError(t, err)
	_, err = svc.VerifySetup(ctx, 1, code)
	assert.ErrorIs(t, err, xerrors.ErrInvalidCode)
}

func TestSetupRefusedWhenActive(t *testing.T) {
	svc, _, _ := newTestService(t)
	enroll(t, svc)

	_, err := svc.Setup(context.Background(), 1)
	assert.ErrorIs(t, err, xerrors.ErrConflict)
}

func TestVerifySetupWithoutSetup(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.VerifySetup(context.Background(), 1, "123456")
	assert.ErrorIs(t, err, xerrors.ErrTwoFactorNotSetup)
}

func TestVerifySetupRejectsWrongCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, 1)
	require.NoError(t, err)

	_, err = svc.VerifySetup(ctx, 1, "000000")
	assert.ErrorIs(t, err, xerrors.ErrInvalidCode)
}

func TestVerifySetupActivatesAndIssuesBackupCodes(t *testing.T) {
	svc, secrets, users := newTestService(t)
	_, codes := enroll(t, svc)

	assert.Len(t, codes, 10)
	for _, code := range codes {
		// XXXXX-XXXXX, unambiguous alphabet
		assert.Len(t, code, 11)
		assert.Equal(t, byte('-'), code[5])
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "1")
		assert.NotContains(t, code, "I")
	}

	assert.True(t, secrets.secrets[1].Verified)
	assert.True(t, users.users[1].TwoFactorEnabled)
}

func TestValidateLoginCodeAcceptsTOTP(t *testing.T) {
	svc, _, _ := newTestService(t)
	secret, _ := enroll(t, svc)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	assert.NoError(t, svc.ValidateLoginCode(context.Background(), 1, code))
}

func TestValidateLoginCodeAcceptsBackupCodeOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, codes := enroll(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.ValidateLoginCode(ctx, 1, codes[0]))

	err := svc.ValidateLoginCode(ctx, 1, codes[0])
	assert.ErrorIs(t, err, xerrors.ErrInvalidCode)

	// Other codes still work
	assert.NoError(t, svc.ValidateLoginCode(ctx, 1, codes[1]))
}

func TestBackupCodeNormalization(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, codes := enroll(t, svc)

	// Codes survive lowercasing and dash removal
	mangled := strings.ToLower(strings.ReplaceAll(codes[0], "-", ""))
	assert.NoError(t, svc.UseBackupCode(context.Background(), 1, mangled))
}

func TestValidateLoginCodeRequiresActiveSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.ValidateLoginCode(ctx, 1, "123456")
	assert.ErrorIs(t, err, xerrors.ErrTwoFactorNotActive)

	_, err = svc.Setup(ctx, 1)
	require.NoError(t, err)

	// Pending secret is not usable for login
	err = svc.ValidateLoginCode(ctx, 1, "123456")
	assert.ErrorIs(t, err, xerrors.ErrTwoFactorNotActive)
}

func TestDisableRequiresPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	enroll(t, svc)

	err := svc.Disable(context.Background(), 1, "wrong password")
	assert.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
}

func TestDisableClearsEverything(t *testing.T) {
	svc, secrets, users := newTestService(t)
	_, codes := enroll(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Disable(ctx, 1, testPassword))

	assert.Empty(t, secrets.secrets)
	assert.False(t, users.users[1].TwoFactorEnabled)

	// Old backup codes are gone too
	err := svc.UseBackupCode(ctx, 1, codes[1])
	assert.ErrorIs(t, err, xerrors.ErrInvalidCode)

	// Re-enrollment starts from scratch
	_, err = svc.Setup(ctx, 1)
	assert.NoError(t, err)
}

func TestDisableWithoutSetup(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Disable(context.Background(), 1, testPassword)
	assert.ErrorIs(t, err, xerrors.ErrTwoFactorNotSetup)
}

func TestRegenerateBackupCodesInvalidatesOldSet(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, oldCodes := enroll(t, svc)
	ctx := context.Background()

	newCodes, err := svc.RegenerateBackupCodes(ctx, 1, testPassword)
	require.NoError(t, err)
	assert.Len(t, newCodes, 10)

	err = svc.UseBackupCode(ctx, 1, oldCodes[0])
	assert.ErrorIs(t, err, xerrors.ErrInvalidCode)

	assert.NoError(t, svc.UseBackupCode(ctx, 1, newCodes[0]))
}

func TestRegenerateBackupCodesChecks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Not enrolled
	_, err := svc.RegenerateBackupCodes(ctx, 1, testPassword)
	assert.ErrorIs(t, err, xerrors.ErrTwoFactorNotActive)

	enroll(t, svc)

	// Wrong password
	_, err = svc.RegenerateBackupCodes(ctx, 1, "nope")
	assert.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
}
