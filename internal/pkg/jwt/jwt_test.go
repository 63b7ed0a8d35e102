package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Secret:   "test-secret-at-least-32-bytes-long!!",
		Issuer:   "worksuite",
		Audience: "worksuite-users",
		TTL:      time.Hour,
	}
}

func TestBuildRequiresSecret(t *testing.T) {
	_, err := Build(Config{Issuer: "worksuite", Audience: "worksuite-users"})
	require.Error(t, err)
}

func TestBuildDefaultsTTL(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = 0

	m, err := Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, m.Generator.Ttl)
}

func TestGenerateAndVerifyRoundTrip(t *testing.T) {
	m, err := Build(testConfig())
	require.NoError(t, err)

	token, jti, err := m.Generator.Generate(42, "user@example.com", "member")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, jti)

	claims, err := m.Verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "member", claims.Role)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, "worksuite", claims.Issuer)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	m, err := Build(testConfig())
	require.NoError(t, err)

	token, _, err := m.Generator.Generate(42, "user@example.com", "member")
	require.NoError(t, err)

	// Flip a character in the payload segment
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = m.Verifier.Verify(tampered)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m, err := Build(testConfig())
	require.NoError(t, err)

	other := testConfig()
	other.Secret = "a-completely-different-signing-secret"
	m2, err := Build(other)
	require.NoError(t, err)

	token, _, err := m.Generator.Generate(42, "user@example.com", "member")
	require.NoError(t, err)

	_, err = m2.Verifier.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = -time.Minute
	gen := NewGenerator([]byte(cfg.Secret), cfg.Issuer, cfg.Audience, cfg.TTL)
	ver := NewVerifier([]byte(cfg.Secret), cfg.Issuer, cfg.Audience)

	token, _, err := gen.Generate(42, "user@example.com", "member")
	require.NoError(t, err)

	_, err = ver.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	cfg := testConfig()
	gen := NewGenerator([]byte(cfg.Secret), "someone-else", cfg.Audience, cfg.TTL)
	ver := NewVerifier([]byte(cfg.Secret), cfg.Issuer, cfg.Audience)

	token, _, err := gen.Generate(42, "user@example.com", "member")
	require.NoError(t, err)

	_, err = ver.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	cfg := testConfig()
	gen := NewGenerator([]byte(cfg.Secret), cfg.Issuer, "other-audience", cfg.TTL)
	ver := NewVerifier([]byte(cfg.Secret), cfg.Issuer, cfg.Audience)

	token, _, err := gen.Generate(42, "user@example.com", "member")
	require.NoError(t, err)

	_, err = ver.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m, err := Build(testConfig())
	require.NoError(t, err)

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		_, err := m.Verifier.Verify(tok)
		assert.Error(t, err, "token %q should not verify", tok)
	}
}

func TestJTIsAreUnique(t *testing.T) {
	m, err := Build(testConfig())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, jti, err := m.Generator.Generate(1, "user@example.com", "member")
		require.NoError(t, err)
		require.False(t, seen[jti], "duplicate jti %s", jti)
		seen[jti] = true
	}
}

func TestClaimsIsAdmin(t *testing.T) {
	assert.True(t, (&Claims{Role: "admin"}).IsAdmin())
	assert.True(t, (&Claims{Role: "owner"}).IsAdmin())
	assert.False(t, (&Claims{Role: "member"}).IsAdmin())
}
