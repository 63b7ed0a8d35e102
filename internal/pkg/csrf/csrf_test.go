package csrf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenIsRandomAndURLSafe(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
	assert.NotContains(t, a, "=")
	// 32 bytes -> 43 chars unpadded base64url
	assert.Len(t, a, 43)
}

func TestTokensMatch(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, TokensMatch(token, token))
}

func TestTokensMatchRejectsMismatch(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.False(t, TokensMatch(a, b))
}

func TestTokensMatchRejectsEmpty(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.False(t, TokensMatch("", token))
	assert.False(t, TokensMatch(token, ""))
	assert.False(t, TokensMatch("", ""))
}

func TestTokensMatchRejectsLengthMismatch(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.False(t, TokensMatch(token, token[:len(token)-1]))
	assert.False(t, TokensMatch(token, token+"x"))
}
