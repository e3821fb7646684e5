package keymanager

import (
	"crypto/ecdsa"
	"crypto/x509"
	"testing"
)

func TestGenerateRespectsPolicy(t *testing.T) {
	policy := KeyPolicy{AllowECDSANISTP256: true}
	if _, err := policy.Generate(KeyTypeRSA); err == nil {
		t.Error("expected RSA generation to be rejected")
	}
	key, err := policy.Generate(KeyTypeECDSAP256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := key.Public().(*ecdsa.PublicKey); !ok {
		t.Errorf("expected an ECDSA public key, got %T", key.Public())
	}
}

func TestGenerateUnknownType(t *testing.T) {
	if _, err := DefaultPolicy.Generate("bogus"); err == nil {
		t.Error("expected an error for an unrecognized key type")
	}
}

func TestAllowedChecksCurve(t *testing.T) {
	policy := KeyPolicy{AllowECDSANISTP256: true}
	key, err := policy.Generate(KeyTypeECDSAP256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !policy.Allowed(key.Public()) {
		t.Error("expected the generated key to be allowed by its own policy")
	}

	p384Policy := KeyPolicy{AllowECDSANISTP384: true}
	if p384Policy.Allowed(key.Public()) {
		t.Error("expected a P-256 key to be rejected by a P-384-only policy")
	}
}

func TestNewCSRRoundTrips(t *testing.T) {
	key, err := DefaultPolicy.Generate(KeyTypeECDSAP256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	der, err := NewCSR(key, []string{"example.com", "www.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		t.Fatalf("parse CSR: %v", err)
	}
	if csr.Subject.CommonName != "example.com" {
		t.Errorf("got CommonName %q", csr.Subject.CommonName)
	}
	if len(csr.DNSNames) != 2 {
		t.Errorf("got %d SANs, want 2", len(csr.DNSNames))
	}
	if err := csr.CheckSignature(); err != nil {
		t.Errorf("CSR signature did not verify: %v", err)
	}
}

func TestNewCSRRequiresDomain(t *testing.T) {
	key, err := DefaultPolicy.Generate(KeyTypeECDSAP256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewCSR(key, nil); err == nil {
		t.Error("expected an error with no domains")
	}
}
