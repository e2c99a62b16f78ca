// Package session carries the verified bearer token through a request.
package session

import (
	"context"
	"errors"
)

type claimsKey struct{}

var ErrSessionNotFound = errors.New("session not found in context")

// Claims are the verified claims of a bearer token.
type Claims struct {
	// UserID is the projected user the token was issued to
	UserID    int64  `json:"user_id"`
	Issuer    string `json:"iss"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"` // zero when the token does not expire
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func GetClaims(ctx context.Context) (*Claims, error) {
	if c, ok := ctx.Value(claimsKey{}).(*Claims); ok && c != nil {
		return c, nil
	}

	return nil, ErrSessionNotFound
}

// GetUserID is the user of the verified token.
func GetUserID(ctx context.Context) (int64, error) {
	claims, err := GetClaims(ctx)
	if err != nil {
		return 0, err
	}

	return claims.UserID, nil
}
