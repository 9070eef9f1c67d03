package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

func claimsFor(org string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		OrganizationID: org,
		Role:           "owner",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(claimsFor("org-1", time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	parsed, err := NewHS256Verifier(secret).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.OrganizationID != "org-1" || parsed.Role != "owner" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewHS256Verifier("wrong-secret").Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestHS256RejectsExpired(t *testing.T) {
	token, err := SignHS256(claimsFor("org-1", -time.Hour), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewHS256Verifier("s").Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestJWKSVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	raw, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	jwks, err := keyfunc.NewJSON(raw)
	if err != nil {
		t.Fatalf("keyfunc.NewJSON failed: %v", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claimsFor("org-2", time.Hour))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign RS256: %v", err)
	}

	v := NewJWKSVerifier(jwks)
	parsed, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.OrganizationID != "org-2" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}

	hs, _ := SignHS256(claimsFor("org-2", time.Hour), "secret")
	if _, err := v.Verify(hs); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected HS256 token to be rejected by JWKS verifier, got %v", err)
	}
}

func TestOrganizationFromRequest(t *testing.T) {
	v := NewHS256Verifier("s")

	r := httptest.NewRequest("GET", "/api/v1/availability", nil)
	if _, err := v.OrganizationFromRequest(r); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}

	token, _ := SignHS256(claimsFor("", time.Hour), "s")
	r.Header.Set("Authorization", "Bearer "+token)
	if _, err := v.OrganizationFromRequest(r); !errors.Is(err, ErrNoTenant) {
		t.Fatalf("expected ErrNoTenant, got %v", err)
	}

	token, _ = SignHS256(claimsFor("org-7", time.Hour), "s")
	r.Header.Set("Authorization", "bearer "+token)
	org, err := v.OrganizationFromRequest(r)
	if err != nil || org != "org-7" {
		t.Fatalf("expected org-7, got %q %v", org, err)
	}
}
