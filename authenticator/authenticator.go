// Package authenticator defines the pluggable port through which the
// authorization state machine asks something external to actually
// perform a challenge: serve an HTTP token, publish a DNS record,
// present a token a human already holds, and so on.
package authenticator

import "github.com/acmecore/acmeclient/acme"

// AnnotatedChallenge pairs a server-issued ChallengeBody with the domain
// it was issued for and the account key proving possession of it, since
// an authenticator needs both to construct a valid key authorization.
type AnnotatedChallenge struct {
	ChallengeBody acme.ChallengeBody
	Domain        string
	AccountKeyPEM []byte
}

// KeyAuthorization is the authenticator's computed proof of possession
// for a single challenge: the value to publish or present, in whatever
// form that challenge type calls for (an HTTP response body, a DNS TXT
// record value, a detached signature, ...).
type KeyAuthorization string

// Authenticator performs the challenges of a single family (DV or
// continuity) that it claims support for via GetChallPref, and tears
// down any state it left behind once the handler is done with them.
type Authenticator interface {
	// GetChallPref returns, in order of preference, the challenge types
	// this authenticator can perform for domain.
	GetChallPref(domain string) []acme.ChallengeType

	// Perform carries out every challenge in achalls and returns one
	// KeyAuthorization per achall, in the same order. An empty entry
	// means this authenticator declined that particular challenge; the
	// caller then skips responding to it rather than treating it as
	// failed.
	//
	// If Perform returns an error, the caller calls Cleanup for every
	// achall of the batch, so Cleanup must tolerate achalls whose setup
	// was never done or was only partly done.
	Perform(achalls []AnnotatedChallenge) ([]KeyAuthorization, error)

	// Cleanup removes anything Perform set up for achalls. It is called
	// for each achall once its authorization is decided, whether or not
	// validation succeeded, and for all outstanding achalls after a
	// Perform error.
	Cleanup(achalls []AnnotatedChallenge) error
}
