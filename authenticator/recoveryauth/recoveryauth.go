// Package recoveryauth is a reference continuity authenticator for the
// recoveryToken challenge: it answers with the token the account was
// given at registration, proving the caller is the same party that
// registered the account key.
package recoveryauth

import (
	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/authenticator"
	"github.com/acmecore/acmeclient/errors"
)

// Authenticator answers recoveryToken challenges from a single stored
// token, supplied by whatever saved the account's registration
// resource.
type Authenticator struct {
	Token string
}

var _ authenticator.Authenticator = (*Authenticator)(nil)

// GetChallPref reports that this authenticator can perform the
// recoveryToken challenge type, for any domain.
func (a *Authenticator) GetChallPref(domain string) []acme.ChallengeType {
	return []acme.ChallengeType{acme.ChallengeTypeRecoveryToken}
}

// Perform returns the stored recovery token for every recoveryToken
// achall. It declines (returns an empty entry for) anything else.
func (a *Authenticator) Perform(achalls []authenticator.AnnotatedChallenge) ([]authenticator.KeyAuthorization, error) {
	resps := make([]authenticator.KeyAuthorization, len(achalls))
	for i, achall := range achalls {
		if _, ok := achall.ChallengeBody.Chall.(*acme.RecoveryTokenChallenge); !ok {
			continue
		}
		if a.Token == "" {
			return nil, errors.ClientUsageError("no recovery token is available for %s", achall.Domain)
		}
		resps[i] = authenticator.KeyAuthorization(a.Token)
	}
	return resps, nil
}

// Cleanup is a no-op: answering a recoveryToken challenge leaves no
// external state behind.
func (a *Authenticator) Cleanup(achalls []authenticator.AnnotatedChallenge) error {
	return nil
}
