package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	j := NewJWT([]byte("secret"), "idp", time.Minute)
	token, err := j.GenerateToken("ext-1", "Ada", true)
	require.NoError(t, err)

	claims, err := j.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", claims.Subject)
	assert.Equal(t, "Ada", claims.Name)
	assert.True(t, claims.Guest)
}

func TestExpiredToken(t *testing.T) {
	j := NewJWT([]byte("secret"), "", -time.Minute)
	token, err := j.GenerateToken("ext-1", "Ada", false)
	require.NoError(t, err)

	_, err = j.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestWrongSecretOrIssuer(t *testing.T) {
	issuer := NewJWT([]byte("secret"), "idp", time.Minute)
	token, err := issuer.GenerateToken("ext-1", "Ada", false)
	require.NoError(t, err)

	_, err = NewJWT([]byte("other"), "idp", time.Minute).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWT([]byte("secret"), "someone-else", time.Minute).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMissingSubject(t *testing.T) {
	j := NewJWT([]byte("secret"), "", time.Minute)
	token, err := j.GenerateToken("", "Nobody", false)
	require.NoError(t, err)

	_, err = j.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
