package acmenet

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/errors"
	"github.com/acmecore/acmeclient/metrics"
)

// HTTPNetwork is the primary Network implementation: it signs every
// request as a JWS with the account key and speaks the wire format this
// client's data model (acme.Authorization, acme.Combinations, the
// new-reg/new-authz/new-cert resource triad) is built on directly,
// without going through a modern RFC8555 client library.
type HTTPNetwork struct {
	// Server is the CA's new-registration URL, e.g.
	// "https://ca.example/acme/new-reg". Every other resource URL this
	// client talks to is either discovered from a response or derived
	// from this one (see acme.Revocation.URL).
	Server string
	Key    crypto.Signer
	JWK    *jose.JSONWebKey

	HTTPClient *http.Client

	// Scope records per-request latency under "request_seconds". A nil
	// Scope disables metrics rather than panicking.
	Scope metrics.Scope

	mu     sync.Mutex
	nonces []string
}

var _ Network = (*HTTPNetwork)(nil)

// resourceEnvelope carries the "resource" discriminator field every old
// ACME draft request body includes, alongside whatever payload a given
// call needs to send.
type resourceEnvelope struct {
	Resource string `json:"resource"`
}

func (n *HTTPNetwork) client() *http.Client {
	if n.HTTPClient != nil {
		return n.HTTPClient
	}
	return http.DefaultClient
}

func (n *HTTPNetwork) scope() metrics.Scope {
	if n.Scope != nil {
		return n.Scope
	}
	return metrics.NewNoopScope()
}

// popNonce returns a previously stashed nonce, fetching a fresh one from
// the server via HEAD if none is available.
func (n *HTTPNetwork) popNonce() (string, error) {
	n.mu.Lock()
	if len(n.nonces) > 0 {
		nonce := n.nonces[len(n.nonces)-1]
		n.nonces = n.nonces[:len(n.nonces)-1]
		n.mu.Unlock()
		return nonce, nil
	}
	n.mu.Unlock()

	resp, err := n.client().Head(n.Server)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	nonce := resp.Header.Get("Replay-Nonce")
	if nonce == "" {
		return "", errors.ClientUsageError("server did not supply a Replay-Nonce header")
	}
	return nonce, nil
}

func (n *HTTPNetwork) stashNonce(resp *http.Response) {
	if nonce := resp.Header.Get("Replay-Nonce"); nonce != "" {
		n.mu.Lock()
		n.nonces = append(n.nonces, nonce)
		n.mu.Unlock()
	}
}

// post signs payload as a JWS with the account key and POSTs it to url,
// decoding the JSON response body into out (if out is non-nil). It
// returns the raw response body alongside the response, so callers that
// need non-JSON bodies (the new-cert DER response) don't have to read
// resp.Body a second time after it has already been drained and closed.
func (n *HTTPNetwork) post(url string, payload interface{}, out interface{}) (*http.Response, []byte, error) {
	begin := time.Now()
	defer func() { n.scope().TimingDuration("request", time.Since(begin)) }()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	nonce, err := n.popNonce()
	if err != nil {
		return nil, nil, err
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: signingAlg(n.Key), Key: n.Key},
		&jose.SignerOptions{NonceSource: staticNonce(nonce), EmbedJWK: true})
	if err != nil {
		return nil, nil, err
	}

	jws, err := signer.Sign(body)
	if err != nil {
		return nil, nil, err
	}
	serialized := jws.FullSerialize()

	resp, err := n.client().Post(url, "application/jose+json", bytes.NewReader([]byte(serialized)))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	n.stashNonce(resp)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}

	if resp.StatusCode >= 400 {
		var problem acme.Error
		if jsonErr := json.Unmarshal(respBody, &problem); jsonErr == nil {
			return resp, respBody, &problem
		}
		return resp, respBody, fmt.Errorf("acmenet: server returned status %d", resp.StatusCode)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp, respBody, err
		}
	}
	return resp, respBody, nil
}

// staticNonce implements jose.NonceSource by returning a single,
// already-fetched nonce. A fresh instance is built per request.
type staticNonce string

func (s staticNonce) Nonce() (string, error) { return string(s), nil }

func signingAlg(key crypto.Signer) jose.SignatureAlgorithm {
	switch key.Public().(type) {
	case *ecdsa.PublicKey:
		return jose.ES256
	case *rsa.PublicKey:
		return jose.RS256
	default:
		return jose.RS256
	}
}

// RegisterFromAccount submits reg as a new-reg request.
func (n *HTTPNetwork) RegisterFromAccount(reg acme.Registration) (acme.RegistrationResource, error) {
	payload := struct {
		resourceEnvelope
		Contact []string `json:"contact,omitempty"`
	}{
		resourceEnvelope: resourceEnvelope{Resource: "new-reg"},
		Contact:          reg.Contact,
	}

	var body acme.Registration
	resp, _, err := n.post(n.Server, payload, &body)
	if err != nil {
		return acme.RegistrationResource{}, err
	}

	return acme.RegistrationResource{
		Body:           body,
		URI:            resp.Header.Get("Location"),
		NewAuthzURI:    findLink(resp, "next"),
		TermsOfService: findLink(resp, "terms-of-service"),
	}, nil
}

// AgreeToTOS re-POSTs regr's URI accepting the terms of service link the
// server advertised.
func (n *HTTPNetwork) AgreeToTOS(regr acme.RegistrationResource) (acme.RegistrationResource, error) {
	payload := struct {
		resourceEnvelope
		Agreement string `json:"agreement"`
	}{
		resourceEnvelope: resourceEnvelope{Resource: "reg"},
		Agreement:        regr.TermsOfService,
	}

	var body acme.Registration
	_, _, err := n.post(regr.URI, payload, &body)
	if err != nil {
		return regr, err
	}
	regr.Body = body
	return regr, nil
}

// RequestDomainChallenges submits a new-authz request for domain.
func (n *HTTPNetwork) RequestDomainChallenges(domain, newAuthzURI string) (acme.AuthorizationResource, error) {
	if newAuthzURI == "" {
		return acme.AuthorizationResource{}, errors.ClientUsageError("no new-authorization URI is known; register first")
	}

	payload := struct {
		resourceEnvelope
		Identifier acme.Identifier `json:"identifier"`
	}{
		resourceEnvelope: resourceEnvelope{Resource: "new-authz"},
		Identifier:       acme.Identifier{Type: acme.IdentifierDNS, Value: domain},
	}

	var body acme.Authorization
	resp, _, err := n.post(newAuthzURI, payload, &body)
	if err != nil {
		return acme.AuthorizationResource{}, err
	}

	return acme.AuthorizationResource{
		Body:       body,
		URI:        resp.Header.Get("Location"),
		NewCertURI: findLink(resp, "next"),
	}, nil
}

// AnswerChallenge submits a key authorization for challb.
func (n *HTTPNetwork) AnswerChallenge(challb acme.ChallengeBody, keyAuthorization string) (acme.ChallengeBody, error) {
	if challb.URI == "" {
		return challb, errors.ClientUsageError("challenge has no URI to respond to")
	}

	payload := struct {
		resourceEnvelope
		Type             acme.ChallengeType `json:"type"`
		KeyAuthorization string              `json:"keyAuthorization"`
	}{
		resourceEnvelope: resourceEnvelope{Resource: "challenge"},
		Type:             challb.Chall.ChallengeType(),
		KeyAuthorization: keyAuthorization,
	}

	var body acme.ChallengeBody
	_, _, err := n.post(challb.URI, payload, &body)
	if err != nil {
		return challb, err
	}
	return body, nil
}

// Poll refetches authzr.URI.
func (n *HTTPNetwork) Poll(authzr acme.AuthorizationResource) (acme.AuthorizationResource, error) {
	begin := time.Now()
	defer func() { n.scope().TimingDuration("request", time.Since(begin)) }()

	resp, err := n.client().Get(authzr.URI)
	if err != nil {
		return authzr, err
	}
	defer resp.Body.Close()
	n.stashNonce(resp)

	var body acme.Authorization
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return authzr, err
	}
	authzr.Body = body
	return authzr, nil
}

// RequestIssuance submits a new-cert request.
func (n *HTTPNetwork) RequestIssuance(csr acme.CertificateRequest) (acme.CertificateResource, error) {
	payload := struct {
		resourceEnvelope
		CSR            acme.JSONBuffer `json:"csr"`
		Authorizations []string        `json:"authorizations,omitempty"`
	}{
		resourceEnvelope: resourceEnvelope{Resource: "new-cert"},
		CSR:              csr.CSR,
		Authorizations:   csr.Authorizations,
	}

	resp, respBody, err := n.post(n.Server, payload, nil)
	if err != nil {
		return acme.CertificateResource{}, err
	}

	return acme.CertificateResource{
		Body:           acme.JSONBuffer(respBody),
		URI:            resp.Header.Get("Location"),
		CertChainURI:   findLink(resp, "up"),
		Authorizations: csr.Authorizations,
	}, nil
}

// FetchChain retrieves the PEM issuer chain linked from certr.
func (n *HTTPNetwork) FetchChain(certr acme.CertificateResource) ([]byte, error) {
	if certr.CertChainURI == "" {
		return nil, nil
	}
	resp, err := n.client().Get(certr.CertChainURI)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// findLink extracts a "rel" link from an RFC5988 Link header.
func findLink(resp *http.Response, rel string) string {
	for _, link := range resp.Header.Values("Link") {
		url, linkRel, ok := parseLink(link)
		if ok && linkRel == rel {
			return url
		}
	}
	return ""
}

func parseLink(header string) (url, rel string, ok bool) {
	parts := bytes.SplitN([]byte(header), []byte(";"), 2)
	if len(parts) != 2 {
		return "", "", false
	}
	rawURL := bytes.TrimSpace(parts[0])
	rawURL = bytes.Trim(rawURL, "<>")

	params := bytes.Split(parts[1], []byte(";"))
	for _, p := range params {
		p = bytes.TrimSpace(p)
		if bytes.HasPrefix(p, []byte(`rel="`)) {
			rel := bytes.TrimSuffix(bytes.TrimPrefix(p, []byte(`rel="`)), []byte(`"`))
			return string(rawURL), string(rel), true
		}
	}
	return "", "", false
}
