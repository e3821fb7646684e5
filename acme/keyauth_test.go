package acme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
)

func testKeyPEM(t *testing.T) []byte {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func TestKeyAuthorizationFormat(t *testing.T) {
	keyAuth, err := KeyAuthorization("tok123", testKeyPEM(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(keyAuth, "tok123.") {
		t.Errorf("expected key authorization to start with the token, got %q", keyAuth)
	}
	parts := strings.SplitN(keyAuth, ".", 2)
	if len(parts) != 2 || parts[1] == "" {
		t.Errorf("expected a non-empty thumbprint component, got %q", keyAuth)
	}
}

func TestKeyAuthorizationStableForSameKey(t *testing.T) {
	pem := testKeyPEM(t)
	a, err := KeyAuthorization("tok", pem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := KeyAuthorization("tok", pem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("expected the same key+token to produce the same key authorization, got %q and %q", a, b)
	}
}
