package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/session"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	in := session.Identity{UserID: 42, Email: "buyer@example.com", DisplayName: "Bee", Role: model.RoleBuyer, Status: model.StatusPending}
	tok, err := NewAccessToken("s3cret", in, 15)
	require.NoError(t, err)

	out, err := ParseAccessToken("s3cret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, in, *out)

	_, err = ParseAccessToken("other", tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredAndUnknownRole(t *testing.T) {
	tok, err := NewAccessToken("k", session.Identity{UserID: 1, Email: "a@b.c", Role: model.RoleBuyer}, -1)
	require.NoError(t, err)
	_, err = ParseAccessToken("k", tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "email": "a@b.c", "role": "OWNER",
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ParseAccessToken("k", raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshAndHash(t *testing.T) {
	rt, err := NewRefreshToken(7)
	require.NoError(t, err)
	assert.Len(t, rt.Raw, 96)
	assert.Len(t, HashRefreshRaw(rt.Raw), 64)
	assert.Equal(t, HashRefreshRaw("x"), HashRefreshRaw("x"))
}

func TestPasswords(t *testing.T) {
	h, err := HashPassword("pw", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, "pw"))
	assert.False(t, VerifyPassword(h, "nope"))

	s, err := RandomSecret()
	require.NoError(t, err)
	assert.Len(t, s, 64)
}
