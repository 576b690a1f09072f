package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/platinummonkey/tenantguard/pkg/auth"
)

// OIDCConfig configures an OIDCVerifier.
type OIDCConfig struct {
	IssuerURL string
	ClientID  string
	// RolesClaim names the claim holding global roles. Defaults to "roles".
	RolesClaim string
}

// OIDCVerifier verifies OpenID Connect ID tokens.
type OIDCVerifier struct {
	verifier   *oidc.IDTokenVerifier
	rolesClaim string
}

// NewOIDCVerifier discovers the issuer and builds a verifier for clientID.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, errors.New("oidc issuer url and client id are required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return NewOIDCVerifierFrom(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg.RolesClaim), nil
}

// NewOIDCVerifierFrom wraps an existing ID token verifier.
func NewOIDCVerifierFrom(verifier *oidc.IDTokenVerifier, rolesClaim string) *OIDCVerifier {
	if rolesClaim == "" {
		rolesClaim = "roles"
	}
	return &OIDCVerifier{verifier: verifier, rolesClaim: rolesClaim}
}

type standardClaims struct {
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	AMR           []string `json:"amr"`
}

// Verify implements Verifier.
func (v *OIDCVerifier) Verify(ctx context.Context, rawIDToken string) (*auth.Identity, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	var std standardClaims
	if err := idToken.Claims(&std); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidSession, err)
	}
	var all map[string]interface{}
	if err := idToken.Claims(&all); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidSession, err)
	}

	return &auth.Identity{
		UserID: idToken.Subject,
		Claims: mapClaims(std, all, v.rolesClaim, idToken.IssuedAt, idToken.Expiry),
	}, nil
}

var registeredClaims = map[string]bool{
	"iss": true, "sub": true, "aud": true, "exp": true, "iat": true, "nbf": true,
	"nonce": true, "at_hash": true, "azp": true, "auth_time": true,
	"email": true, "email_verified": true, "amr": true,
}

func mapClaims(std standardClaims, all map[string]interface{}, rolesClaim string, issuedAt, expiry time.Time) auth.Claims {
	claims := auth.Claims{
		Email:         std.Email,
		EmailVerified: std.EmailVerified,
		GlobalRoles:   getArrayValue(all, rolesClaim),
		IssuedAt:      issuedAt,
		ExpiresAt:     expiry,
	}
	for _, method := range std.AMR {
		if method == "mfa" || method == "otp" || method == "hwk" {
			claims.MFA = true
		}
	}

	for k, val := range all {
		if registeredClaims[k] || k == rolesClaim {
			continue
		}
		if claims.Custom == nil {
			claims.Custom = make(map[string]any)
		}
		claims.Custom[k] = val
	}
	return claims
}

func getArrayValue(claims map[string]interface{}, key string) []string {
	arr, ok := claims[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
