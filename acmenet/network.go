// Package acmenet defines the Network port: the boundary between the
// authorization/client state machines and an actual ACME server
// connection. Two implementations are provided: a primary one
// (HTTPNetwork) speaking the wire format this client's data model is
// built on directly, and a secondary adapter wrapping a modern
// RFC8555-family client library for interoperating with CAs that no
// longer speak the old draft.
package acmenet

import "github.com/acmecore/acmeclient/acme"

// Network is everything the authorization handler and client facade
// need from a live ACME server connection.
type Network interface {
	// RegisterFromAccount submits acc's public key as a new registration.
	// If the key is already registered, HTTPNetwork returns the server's
	// error rather than the existing registration; EggsamplerNetwork
	// returns the existing account.
	RegisterFromAccount(acc acme.Registration) (acme.RegistrationResource, error)

	// AgreeToTOS updates regr to accept the terms of service it
	// advertised.
	AgreeToTOS(regr acme.RegistrationResource) (acme.RegistrationResource, error)

	// RequestDomainChallenges asks the server, at newAuthzURI, for the
	// set of challenges that would authorize domain.
	RequestDomainChallenges(domain, newAuthzURI string) (acme.AuthorizationResource, error)

	// AnswerChallenge submits a key authorization response for challb,
	// which is assumed to already be part of a known authorization.
	AnswerChallenge(challb acme.ChallengeBody, keyAuthorization string) (acme.ChallengeBody, error)

	// Poll refetches an authorization resource's current state.
	Poll(authzr acme.AuthorizationResource) (acme.AuthorizationResource, error)

	// RequestIssuance submits a certificate request against the given
	// authorizations and returns the resulting certificate resource.
	RequestIssuance(csr acme.CertificateRequest) (acme.CertificateResource, error)

	// FetchChain retrieves the issuer chain for a certificate resource,
	// in PEM form, or nil if the server advertised none.
	FetchChain(certr acme.CertificateResource) ([]byte, error)
}
