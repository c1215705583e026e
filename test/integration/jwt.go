package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"maps"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID    = "entityconfig-test-1"
	testIssuer   = "https://auth.test.entityconfig.dev"
	testAudience = "entityconfig-api-test"
)

// TestClaims describes the caller a test token is issued for.
type TestClaims struct {
	SubjectID string
	TenantID  string
	Email     string
	Roles     []string
	Extra     map[string]any
}

// tokenIssuer plays the identity provider: it signs RS256 tokens and serves
// the matching key set.
type tokenIssuer struct {
	t      *testing.T
	key    *rsa.PrivateKey
	forger *rsa.PrivateKey
	jwks   *httptest.Server
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()
	ti := &tokenIssuer{t: t, key: mustRSAKey(t), forger: mustRSAKey(t)}

	set, err := json.Marshal(map[string]any{"keys": []map[string]any{{
		"kid": testKeyID,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(ti.key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(ti.key.E)).Bytes()),
	}}})
	if err != nil {
		t.Fatalf("encode key set: %v", err)
	}
	ti.jwks = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(set)
	}))
	t.Cleanup(ti.jwks.Close)
	return ti
}

func mustRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return key
}

// GenerateToken returns a token valid for one hour.
func (ti *tokenIssuer) GenerateToken(c TestClaims) string {
	return ti.sign(ti.key, c.mapClaims(time.Now(), time.Hour))
}

// GenerateExpiredToken returns a token that expired an hour ago, well past
// the verifier's clock-skew leeway.
func (ti *tokenIssuer) GenerateExpiredToken(c TestClaims) string {
	return ti.sign(ti.key, c.mapClaims(time.Now().Add(-2*time.Hour), time.Hour))
}

// ForgeToken returns an otherwise valid token signed with a key the
// identity provider never published, under the published key ID.
func (ti *tokenIssuer) ForgeToken(c TestClaims) string {
	return ti.sign(ti.forger, c.mapClaims(time.Now(), time.Hour))
}

func (ti *tokenIssuer) sign(key *rsa.PrivateKey, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	if err != nil {
		ti.t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (c TestClaims) mapClaims(issuedAt time.Time, lifetime time.Duration) jwt.MapClaims {
	claims := jwt.MapClaims{
		"iss":       testIssuer,
		"aud":       testAudience,
		"iat":       jwt.NewNumericDate(issuedAt),
		"exp":       jwt.NewNumericDate(issuedAt.Add(lifetime)),
		"sub":       c.SubjectID,
		"tenant_id": c.TenantID,
		"email":     c.Email,
	}
	if len(c.Roles) > 0 {
		// Decoded tokens carry arrays as []any.
		roles := make([]any, len(c.Roles))
		for i, r := range c.Roles {
			roles[i] = r
		}
		claims["roles"] = roles
	}
	maps.Copy(claims, c.Extra)
	return claims
}

func (ti *tokenIssuer) JWKSURL() string  { return ti.jwks.URL }
func (ti *tokenIssuer) Issuer() string   { return testIssuer }
func (ti *tokenIssuer) Audience() string { return testAudience }
