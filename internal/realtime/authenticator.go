package realtime

import (
	"context"
	"errors"

	"postit-backend/internal/auth"
)

// JWTAuthenticator maps access-token validation onto the AuthError taxonomy
type JWTAuthenticator struct {
	jwtManager *auth.JWTManager
}

// NewJWTAuthenticator creates a JWTAuthenticator
func NewJWTAuthenticator(jwtManager *auth.JWTManager) *JWTAuthenticator {
	return &JWTAuthenticator{jwtManager: jwtManager}
}

// Authenticate validates the token presented at connection time
func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (Identity, *AuthError) {
	if token == "" {
		return Identity{}, &AuthError{Reason: ReasonMissingToken}
	}

	claims, err := a.jwtManager.ValidateAccessToken(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			return Identity{}, &AuthError{Reason: ReasonExpiredToken}
		case errors.Is(err, auth.ErrMissingToken):
			return Identity{}, &AuthError{Reason: ReasonMissingToken}
		default:
			return Identity{}, &AuthError{Reason: ReasonInvalidToken}
		}
	}

	return Identity{UserID: claims.UserID, Nickname: claims.Nickname}, nil
}
