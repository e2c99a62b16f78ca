package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/auth/session"
)

func TestClaimsRoundTrip(t *testing.T) {
	ctx := session.WithClaims(context.Background(), &session.Claims{UserID: 7, Issuer: "innotter"})

	claims, err := session.GetClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, "innotter", claims.Issuer)

	id, err := session.GetUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestMissing(t *testing.T) {
	_, err := session.GetClaims(context.Background())
	require.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = session.GetUserID(session.WithClaims(context.Background(), nil))
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}
