package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestTokenRoundtrip(t *testing.T) {
	id := Identity{UserID: "user-1", Username: "alice"}
	raw, err := Issue(secret, id, time.Minute)
	require.NoError(t, err)

	got, err := Verify(secret, raw)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestVerifyEmptyToken(t *testing.T) {
	_, err := Verify(secret, "")
	require.ErrorIs(t, err, ErrTokenRequired)
}

func TestVerifyWrongSecret(t *testing.T) {
	raw, err := Issue(secret, Identity{UserID: "user-1", Username: "alice"}, time.Minute)
	require.NoError(t, err)

	_, err = Verify([]byte("other-secret"), raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	raw, err := Issue(secret, Identity{UserID: "user-1", Username: "alice"}, -time.Minute)
	require.NoError(t, err)

	_, err = Verify(secret, raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	_, err := Verify(secret, "not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingUsername(t *testing.T) {
	// A token without the username claim is rejected even when signed
	// correctly.
	raw, err := Issue(secret, Identity{UserID: "user-1"}, time.Minute)
	require.NoError(t, err)

	_, err = Verify(secret, raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}
