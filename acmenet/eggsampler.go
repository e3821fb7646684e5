package acmenet

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"

	acmelib "github.com/eggsampler/acme/v3"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/errors"
)

// EggsamplerNetwork is a secondary Network implementation for talking to
// modern, RFC8555 CAs through github.com/eggsampler/acme/v3, for clients
// that would rather interoperate with a current Let's Encrypt-style CA
// than a CA still speaking the old draft wire format HTTPNetwork
// implements directly.
//
// RFC8555 has no "combinations" field: every challenge on an
// authorization is independently sufficient. This adapter presents that
// as a combinations list with one singleton combination per challenge,
// which is the only translation that preserves the old draft's meaning
// ("any one of these combinations suffices") without inventing
// authorization semantics the CA never offered.
type EggsamplerNetwork struct {
	Client *acmelib.Client
	Key    crypto.Signer

	mu      sync.Mutex
	account acmelib.Account

	// orders maps a synthesized authorization URI back to the order that
	// produced it, since RFC8555 issuance is keyed by order, not by the
	// flat authorization list the old draft used.
	orders map[string]acmelib.Order
}

var _ Network = (*EggsamplerNetwork)(nil)

func (n *EggsamplerNetwork) setAccount(a acmelib.Account) {
	n.mu.Lock()
	n.account = a
	n.mu.Unlock()
}

func (n *EggsamplerNetwork) getAccount() acmelib.Account {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.account
}

// RegisterFromAccount creates (or recovers) the RFC8555 account bound to
// n.Key. reg.Contact carries through; reg.Agreement is ignored. The
// account is created with termsOfServiceAgreed false; AgreeToTOS repeats
// the call with it set to true.
func (n *EggsamplerNetwork) RegisterFromAccount(reg acme.Registration) (acme.RegistrationResource, error) {
	account, err := n.Client.NewAccount(n.Key, false, false, reg.Contact...)
	if err != nil {
		return acme.RegistrationResource{}, fmt.Errorf("acmenet: eggsampler new account: %w", err)
	}
	n.setAccount(account)

	return acme.RegistrationResource{
		Body: acme.Registration{
			Contact: reg.Contact,
		},
		URI: account.URL,
	}, nil
}

// AgreeToTOS re-creates the account with termsOfServiceAgreed set, which
// is how RFC8555 represents ToS acceptance (there is no separate
// resource to PATCH).
func (n *EggsamplerNetwork) AgreeToTOS(regr acme.RegistrationResource) (acme.RegistrationResource, error) {
	account, err := n.Client.NewAccount(n.Key, false, true, regr.Body.Contact...)
	if err != nil {
		return regr, fmt.Errorf("acmenet: eggsampler agree to terms: %w", err)
	}
	n.setAccount(account)
	regr.Body.Agreement = regr.TermsOfService
	return regr, nil
}

// RequestDomainChallenges creates a single-identifier order for domain
// and fetches its one authorization, translating it into the old
// draft's AuthorizationResource shape with singleton combinations.
func (n *EggsamplerNetwork) RequestDomainChallenges(domain, newAuthzURI string) (acme.AuthorizationResource, error) {
	account := n.getAccount()
	order, err := n.Client.NewOrder(account, []acmelib.Identifier{{Type: "dns", Value: domain}})
	if err != nil {
		return acme.AuthorizationResource{}, fmt.Errorf("acmenet: eggsampler new order: %w", err)
	}
	if len(order.Authorizations) == 0 {
		return acme.AuthorizationResource{}, errors.ClientUsageError("order for %s carried no authorizations", domain)
	}

	authURL := order.Authorizations[0]
	auth, err := n.Client.FetchAuthorization(account, authURL)
	if err != nil {
		return acme.AuthorizationResource{}, fmt.Errorf("acmenet: eggsampler fetch authorization: %w", err)
	}

	body, err := convertAuthorization(auth)
	if err != nil {
		return acme.AuthorizationResource{}, err
	}

	n.mu.Lock()
	if n.orders == nil {
		n.orders = make(map[string]acmelib.Order)
	}
	n.orders[authURL] = order
	n.mu.Unlock()

	return acme.AuthorizationResource{
		Body: body,
		URI:  authURL,
	}, nil
}

// AnswerChallenge submits keyAuthorization for challb's matching
// eggsampler challenge.
func (n *EggsamplerNetwork) AnswerChallenge(challb acme.ChallengeBody, keyAuthorization string) (acme.ChallengeBody, error) {
	account := n.getAccount()
	typ, err := eggsamplerChallengeType(challb.Chall.ChallengeType())
	if err != nil {
		return challb, err
	}

	_, err = n.Client.UpdateChallenge(account, acmelib.Challenge{URL: challb.URI, Type: typ})
	if err != nil {
		return challb, fmt.Errorf("acmenet: eggsampler update challenge: %w", err)
	}
	challb.Status = acme.StatusProcessing
	return challb, nil
}

// Poll refetches the authorization at authzr.URI.
func (n *EggsamplerNetwork) Poll(authzr acme.AuthorizationResource) (acme.AuthorizationResource, error) {
	account := n.getAccount()
	auth, err := n.Client.FetchAuthorization(account, authzr.URI)
	if err != nil {
		return authzr, fmt.Errorf("acmenet: eggsampler fetch authorization: %w", err)
	}
	body, err := convertAuthorization(auth)
	if err != nil {
		return authzr, err
	}
	authzr.Body = body
	return authzr, nil
}

// RequestIssuance finalizes the order that owns csr.Authorizations[0]
// and waits for it to become ready, then valid.
func (n *EggsamplerNetwork) RequestIssuance(csr acme.CertificateRequest) (acme.CertificateResource, error) {
	if len(csr.Authorizations) == 0 {
		return acme.CertificateResource{}, errors.ClientUsageError("no authorization on file to finalize an order for")
	}

	n.mu.Lock()
	order, ok := n.orders[csr.Authorizations[0]]
	n.mu.Unlock()
	if !ok {
		return acme.CertificateResource{}, errors.ClientUsageError("no known order for authorization %s", csr.Authorizations[0])
	}

	parsedCSR, err := x509.ParseCertificateRequest(csr.CSR)
	if err != nil {
		return acme.CertificateResource{}, fmt.Errorf("acmenet: parsing CSR: %w", err)
	}

	account := n.getAccount()
	order, err = n.Client.FinalizeOrder(account, order, parsedCSR)
	if err != nil {
		return acme.CertificateResource{}, fmt.Errorf("acmenet: eggsampler finalize order: %w", err)
	}

	return acme.CertificateResource{
		URI:            order.Certificate,
		Authorizations: csr.Authorizations,
	}, nil
}

// FetchChain downloads the leaf-plus-chain PEM bundle for the finalized
// order and returns it whole; the old draft's separate-chain-URI model
// has no equivalent in RFC8555, where the certificate endpoint already
// returns the full chain.
func (n *EggsamplerNetwork) FetchChain(certr acme.CertificateResource) ([]byte, error) {
	account := n.getAccount()
	certs, err := n.Client.FetchCertificates(account, certr.URI)
	if err != nil {
		return nil, fmt.Errorf("acmenet: eggsampler fetch certificates: %w", err)
	}

	var out []byte
	for _, cert := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	return out, nil
}

func convertAuthorization(auth acmelib.Authorization) (acme.Authorization, error) {
	challs := make([]acme.ChallengeBody, len(auth.Challenges))
	combinations := make([][]int, len(auth.Challenges))
	for i, c := range auth.Challenges {
		typ, err := fromEggsamplerChallengeType(c.Type)
		if err != nil {
			return acme.Authorization{}, err
		}

		var chall acme.Challenge
		switch typ {
		case acme.ChallengeTypeSimpleHTTP:
			chall = &acme.SimpleHTTPChallenge{Token: c.Token}
		case acme.ChallengeTypeDNS:
			chall = &acme.DNSChallenge{Token: c.Token}
		default:
			return acme.Authorization{}, errors.ClientUsageError("unsupported eggsampler challenge type %q", c.Type)
		}

		challs[i] = acme.ChallengeBody{URI: c.URL, Status: acme.Status(c.Status), Chall: chall}
		combinations[i] = []int{i}
	}

	return acme.Authorization{
		Identifier:   acme.Identifier{Type: acme.IdentifierDNS, Value: auth.Identifier.Value},
		Status:       acme.Status(auth.Status),
		Challenges:   challs,
		Combinations: combinations,
	}, nil
}

func eggsamplerChallengeType(t acme.ChallengeType) (string, error) {
	switch t {
	case acme.ChallengeTypeSimpleHTTP:
		return acmelib.ChallengeTypeHTTP01, nil
	case acme.ChallengeTypeDNS:
		return acmelib.ChallengeTypeDNS01, nil
	default:
		return "", errors.ClientUsageError("challenge type %q has no RFC8555 equivalent", t)
	}
}

func fromEggsamplerChallengeType(t string) (acme.ChallengeType, error) {
	switch t {
	case acmelib.ChallengeTypeHTTP01:
		return acme.ChallengeTypeSimpleHTTP, nil
	case acmelib.ChallengeTypeDNS01:
		return acme.ChallengeTypeDNS, nil
	default:
		return "", errors.ClientUsageError("unrecognized RFC8555 challenge type %q", t)
	}
}
