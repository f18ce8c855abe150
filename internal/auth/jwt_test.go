package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	token, err := m.GenerateAccessToken(42, "alice@example.com", "alice")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "alice", claims.Nickname)
	require.Equal(t, "postit-api", claims.Issuer)
}

func TestValidateAccessTokenEmpty(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	_, err := m.ValidateAccessToken("")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Hour, 24*time.Hour)
	verifier := NewJWTManager("secret-b", time.Hour, 24*time.Hour)

	token, err := issuer.GenerateAccessToken(1, "a@b.c", "a")
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessTokenExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute, 24*time.Hour)

	token, err := m.GenerateAccessToken(1, "a@b.c", "a")
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateAccessTokenGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	_, err := m.ValidateAccessToken("not.a.jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	token, err := m.GenerateRefreshToken(7)
	require.NoError(t, err)

	userID, err := m.ValidateRefreshToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(7), userID)
}

func TestValidateRefreshTokenExpired(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, -time.Minute)

	token, err := m.GenerateRefreshToken(7)
	require.NoError(t, err)

	_, err = m.ValidateRefreshToken(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	refresh, err := m.GenerateRefreshToken(7)
	require.NoError(t, err)

	// a refresh token carries no identity claims
	claims, err := m.ValidateAccessToken(refresh)
	if err == nil {
		require.Zero(t, claims.UserID)
	}
}
