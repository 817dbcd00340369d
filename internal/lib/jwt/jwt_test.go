package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignParse_RoundTrip(t *testing.T) {
	signer := NewSigner("access-secret", time.Minute)
	userID := uuid.New()

	token, err := signer.Sign(userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsedID, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, parsedID)
}

func TestParse_WrongSecret(t *testing.T) {
	signer := NewSigner("access-secret", time.Minute)
	other := NewSigner("refresh-secret", time.Minute)

	token, err := signer.Sign(uuid.New())
	require.NoError(t, err)

	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Expired(t *testing.T) {
	signer := NewSigner("access-secret", -time.Minute)

	token, err := signer.Sign(uuid.New())
	require.NoError(t, err)

	_, err = signer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSign_TokensAreUnique(t *testing.T) {
	signer := NewSigner("access-secret", time.Minute)
	userID := uuid.New()

	first, err := signer.Sign(userID)
	require.NoError(t, err)
	second, err := signer.Sign(userID)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestParse_Garbage(t *testing.T) {
	signer := NewSigner("access-secret", time.Minute)

	_, err := signer.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
