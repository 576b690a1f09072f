package session

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://issuer.example.com"

func signToken(t *testing.T, key *rsa.PrivateKey, claims map[string]interface{}) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	jws, err := signer.Sign(payload)
	require.NoError(t, err)
	raw, err := jws.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func newTestOIDCVerifier(t *testing.T) (*OIDCVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: "tenantguard"})
	return NewOIDCVerifierFrom(verifier, ""), key
}

func TestOIDCVerifier_Verify(t *testing.T) {
	v, key := newTestOIDCVerifier(t)
	now := time.Now()

	raw := signToken(t, key, map[string]interface{}{
		"iss":            testIssuer,
		"aud":            "tenantguard",
		"sub":            "user-123",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"email":          "user@example.com",
		"email_verified": true,
		"amr":            []string{"pwd", "otp"},
		"roles":          []string{"admin"},
		"department":     "ops",
	})

	identity, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.UserID)
	assert.Equal(t, "user@example.com", identity.Claims.Email)
	assert.True(t, identity.Claims.EmailVerified)
	assert.True(t, identity.Claims.MFA)
	assert.Equal(t, []string{"admin"}, identity.Claims.GlobalRoles)
	assert.Equal(t, "ops", identity.Claims.Custom["department"])
	assert.NotContains(t, identity.Claims.Custom, "sub")
	assert.NotContains(t, identity.Claims.Custom, "roles")
}

func TestOIDCVerifier_Rejects(t *testing.T) {
	v, key := newTestOIDCVerifier(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Now()

	base := func() map[string]interface{} {
		return map[string]interface{}{
			"iss": testIssuer, "aud": "tenantguard", "sub": "u",
			"iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}
	}

	expired := base()
	expired["exp"] = now.Add(-time.Hour).Unix()

	wrongAudience := base()
	wrongAudience["aud"] = "someone-else"

	tests := map[string]string{
		"garbage":        "not-a-jwt",
		"expired":        signToken(t, key, expired),
		"wrong audience": signToken(t, key, wrongAudience),
		"wrong key":      signToken(t, otherKey, base()),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), raw)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}

func TestNewOIDCVerifier_RequiresConfig(t *testing.T) {
	_, err := NewOIDCVerifier(context.Background(), OIDCConfig{})
	assert.Error(t, err)
}

func TestMapClaims_NoMFA(t *testing.T) {
	claims := mapClaims(standardClaims{AMR: []string{"pwd"}}, map[string]interface{}{"amr": []interface{}{"pwd"}}, "roles", time.Time{}, time.Time{})
	assert.False(t, claims.MFA)
	assert.Nil(t, claims.Custom)
}
