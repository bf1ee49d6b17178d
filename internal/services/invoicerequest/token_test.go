package invoicerequest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-integrity-backend/internal/config"
)

func testCodec() *TokenCodec {
	return NewTokenCodec(config.TokenConfig{
		Secret: "0123456789abcdef0123456789abcdef",
		Issuer: "invoice-integrity-backend",
		TTL:    30 * time.Minute,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	codec := testCodec()
	customerID := uuid.New()
	packageID := uuid.New()

	token, err := codec.Issue(customerID, packageID, "user@example.com", "fiber plan", time.Now().UTC())
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, customerID.String(), claims.CustomerID)
	assert.Equal(t, packageID.String(), claims.PackageID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "fiber plan", claims.Note)
}

func TestTokenExpired(t *testing.T) {
	codec := testCodec()

	// Issued 31 minutes ago against a 30 minute window.
	issuedAt := time.Now().UTC().Add(-31 * time.Minute)
	token, err := codec.Issue(uuid.New(), uuid.New(), "user@example.com", "", issuedAt)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenStillValidJustBeforeExpiry(t *testing.T) {
	codec := testCodec()

	issuedAt := time.Now().UTC().Add(-29 * time.Minute)
	token, err := codec.Issue(uuid.New(), uuid.New(), "user@example.com", "", issuedAt)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.NoError(t, err)
}

func TestTokenWrongSecret(t *testing.T) {
	codec := testCodec()
	other := NewTokenCodec(config.TokenConfig{
		Secret: "ffffffffffffffffffffffffffffffff",
		Issuer: "invoice-integrity-backend",
		TTL:    30 * time.Minute,
	})

	token, err := other.Issue(uuid.New(), uuid.New(), "user@example.com", "", time.Now().UTC())
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenWrongIssuer(t *testing.T) {
	codec := testCodec()
	other := NewTokenCodec(config.TokenConfig{
		Secret: "0123456789abcdef0123456789abcdef",
		Issuer: "some-other-service",
		TTL:    30 * time.Minute,
	})

	token, err := other.Issue(uuid.New(), uuid.New(), "user@example.com", "", time.Now().UTC())
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenGarbage(t *testing.T) {
	codec := testCodec()

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		_, err := codec.Verify(tok)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	}
}
