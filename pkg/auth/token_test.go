package auth

import (
	"testing"
	"time"

	"cesworld/pkg/config"

	"github.com/stretchr/testify/require"
)

func newTokens() *Tokens {
	cfg := &config.Config{}
	cfg.Session.Secret = "test-secret"
	cfg.Session.Issuer = "cesworld"
	cfg.Session.Expiry = time.Hour
	return NewTokens(cfg)
}

func TestIssueAndParse(t *testing.T) {
	tokens := newTokens()

	raw, err := tokens.Issue("42", "admin")
	require.NoError(t, err)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "42", claims.UserID)
	require.Equal(t, "admin", claims.Role)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	raw, err := newTokens().Issue("42", "")
	require.NoError(t, err)

	other := newTokens()
	other.secret = []byte("another-secret")
	_, err = other.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	tokens := newTokens()
	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, err := tokens.Issue("42", "customer")
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}
