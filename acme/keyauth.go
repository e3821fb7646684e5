package acme

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/acmecore/acmeclient/errors"
)

// KeyAuthorization computes the proof of possession a DV challenge
// response is built from: a challenge token joined to the base64url
// SHA-256 thumbprint of the account key that is solving it.
func KeyAuthorization(token string, accountKeyPEM []byte) (string, error) {
	block, _ := pem.Decode(accountKeyPEM)
	if block == nil {
		return "", errors.ClientUsageError("account key is not a valid PEM block")
	}

	signer, err := parseSigner(block.Bytes)
	if err != nil {
		return "", err
	}

	jwk := jose.JSONWebKey{Key: signer.Public()}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", token, base64.RawURLEncoding.EncodeToString(thumbprint)), nil
}

// LoadAccountKey decodes a PEM-encoded account private key and returns
// its public half as a JSONWebKey, ready to embed in a Registration.
func LoadAccountKey(accountKeyPEM []byte) (jose.JSONWebKey, error) {
	block, _ := pem.Decode(accountKeyPEM)
	if block == nil {
		return jose.JSONWebKey{}, errors.ClientUsageError("account key is not a valid PEM block")
	}
	signer, err := parseSigner(block.Bytes)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	return jose.JSONWebKey{Key: signer.Public()}, nil
}

// ParseAccountSigner decodes a PEM-encoded account private key into a
// crypto.Signer, for code that needs to sign with the key rather than
// just read its public half.
func ParseAccountSigner(accountKeyPEM []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(accountKeyPEM)
	if block == nil {
		return nil, errors.ClientUsageError("account key is not a valid PEM block")
	}
	return parseSigner(block.Bytes)
}

func parseSigner(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if signer, ok := key.(crypto.Signer); ok {
			return signer, nil
		}
	}
	return nil, errors.ClientUsageError("unrecognized private key encoding")
}
