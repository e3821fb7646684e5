// Package keymanager generates the account and certificate keys this
// client needs, and builds the CSRs it submits for issuance, under a
// pluggable policy of which key types are acceptable.
package keymanager

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"

	"github.com/acmecore/acmeclient/errors"
)

// KeyPolicy controls which key algorithms this client will generate or
// accept from configuration.
type KeyPolicy struct {
	AllowRSA           bool
	AllowECDSANISTP256 bool
	AllowECDSANISTP384 bool

	// RSAKeySize is the modulus size used when generating RSA keys.
	// Zero defaults to 2048.
	RSAKeySize int
}

// DefaultPolicy allows ECDSA P-256 and RSA-2048, the two key types
// almost every ACME CA accepts.
var DefaultPolicy = KeyPolicy{
	AllowRSA:           true,
	AllowECDSANISTP256: true,
}

const defaultRSAKeySize = 2048

// KeyType names a generatable key algorithm.
type KeyType string

const (
	KeyTypeRSA        KeyType = "rsa"
	KeyTypeECDSAP256  KeyType = "ecdsa-p256"
	KeyTypeECDSAP384  KeyType = "ecdsa-p384"
)

// Generate creates a new private key of the requested type, rejecting
// types the policy disallows.
func (p KeyPolicy) Generate(typ KeyType) (crypto.Signer, error) {
	switch typ {
	case KeyTypeRSA:
		if !p.AllowRSA {
			return nil, errors.ClientUsageError("RSA keys are not permitted by this policy")
		}
		size := p.RSAKeySize
		if size == 0 {
			size = defaultRSAKeySize
		}
		return rsa.GenerateKey(rand.Reader, size)
	case KeyTypeECDSAP256:
		if !p.AllowECDSANISTP256 {
			return nil, errors.ClientUsageError("ECDSA P-256 keys are not permitted by this policy")
		}
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case KeyTypeECDSAP384:
		if !p.AllowECDSANISTP384 {
			return nil, errors.ClientUsageError("ECDSA P-384 keys are not permitted by this policy")
		}
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	default:
		return nil, errors.ClientUsageError("unrecognized key type %q", typ)
	}
}

// Allowed reports whether the public key's algorithm satisfies the
// policy, so an account key loaded from disk can be checked the same
// way a freshly generated one would be.
func (p KeyPolicy) Allowed(pub crypto.PublicKey) bool {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return p.AllowRSA
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return p.AllowECDSANISTP256
		case elliptic.P384():
			return p.AllowECDSANISTP384
		default:
			return false
		}
	default:
		return false
	}
}

// NewCSR builds a DER-encoded PKCS#10 CSR for domains (the first entry
// becomes the Subject CommonName; all entries become SANs), signed by
// key.
func NewCSR(key crypto.Signer, domains []string) ([]byte, error) {
	if len(domains) == 0 {
		return nil, errors.ClientUsageError("at least one domain is required to build a CSR")
	}

	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: domains[0]},
		DNSNames:           domains,
		SignatureAlgorithm: signatureAlgorithmFor(key),
	}
	return x509.CreateCertificateRequest(rand.Reader, template, key)
}

func signatureAlgorithmFor(key crypto.Signer) x509.SignatureAlgorithm {
	switch k := key.Public().(type) {
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P384():
			return x509.ECDSAWithSHA384
		default:
			return x509.ECDSAWithSHA256
		}
	case *rsa.PublicKey:
		return x509.SHA256WithRSA
	default:
		return x509.UnknownSignatureAlgorithm
	}
}
