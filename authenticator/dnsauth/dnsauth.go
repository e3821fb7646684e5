package dnsauth

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/authenticator"
	"github.com/acmecore/acmeclient/errors"
)

// label is the well-known subdomain the dns challenge publishes its
// proof under.
const label = "_acme-challenge"

// RecordSetter publishes (SetTXT) or removes (RemoveTXT) a TXT record at
// fqdn through whatever DNS provider API the deployment uses.
type RecordSetter interface {
	SetTXT(fqdn, value string) error
	RemoveTXT(fqdn, value string) error
}

// txtLookup is the slice of Resolver that Authenticator depends on,
// kept as its own interface so tests can fake propagation checks
// without standing up a real DNS client.
type txtLookup interface {
	LookupTXT(hostname string) ([]string, error)
}

// Authenticator performs the dns challenge: it publishes a TXT record
// via Records, waits for an external resolver to observe it, and only
// then returns the key authorization for the handler to submit.
type Authenticator struct {
	Records  RecordSetter
	Resolver txtLookup

	// PropagationTimeout bounds how long to wait for the record to
	// become visible before giving up and returning an error.
	PropagationTimeout time.Duration
	PollInterval       time.Duration
}

var _ authenticator.Authenticator = (*Authenticator)(nil)

// GetChallPref reports that this authenticator can perform the dns
// challenge type, for any domain.
func (a *Authenticator) GetChallPref(domain string) []acme.ChallengeType {
	return []acme.ChallengeType{acme.ChallengeTypeDNS}
}

// Perform publishes and confirms propagation of a TXT record for every
// dns achall, returning its key authorization. Achalls of any other
// type are declined (an empty entry), matching the authenticator
// contract's "not mine to perform" convention.
func (a *Authenticator) Perform(achalls []authenticator.AnnotatedChallenge) ([]authenticator.KeyAuthorization, error) {
	resps := make([]authenticator.KeyAuthorization, len(achalls))
	var published []struct {
		fqdn, value string
	}

	rollback := func() {
		for _, p := range published {
			_ = a.Records.RemoveTXT(p.fqdn, p.value)
		}
	}

	for i, achall := range achalls {
		dnsChall, ok := achall.ChallengeBody.Chall.(*acme.DNSChallenge)
		if !ok {
			continue
		}

		keyAuth, err := acme.KeyAuthorization(dnsChall.Token, achall.AccountKeyPEM)
		if err != nil {
			rollback()
			return nil, err
		}
		digest := sha256.Sum256([]byte(keyAuth))
		txtValue := base64.RawURLEncoding.EncodeToString(digest[:])
		fqdn := label + "." + achall.Domain

		if err := a.Records.SetTXT(fqdn, txtValue); err != nil {
			rollback()
			return nil, errors.ClientUsageError("failed to publish dns challenge record for %s: %v", achall.Domain, err)
		}
		published = append(published, struct{ fqdn, value string }{fqdn, txtValue})

		if err := a.waitForPropagation(fqdn, txtValue); err != nil {
			rollback()
			return nil, err
		}

		resps[i] = authenticator.KeyAuthorization(keyAuth)
	}
	return resps, nil
}

// Cleanup removes every TXT record this authenticator published for
// achalls.
func (a *Authenticator) Cleanup(achalls []authenticator.AnnotatedChallenge) error {
	for _, achall := range achalls {
		dnsChall, ok := achall.ChallengeBody.Chall.(*acme.DNSChallenge)
		if !ok {
			continue
		}
		keyAuth, err := acme.KeyAuthorization(dnsChall.Token, achall.AccountKeyPEM)
		if err != nil {
			continue
		}
		digest := sha256.Sum256([]byte(keyAuth))
		txtValue := base64.RawURLEncoding.EncodeToString(digest[:])
		_ = a.Records.RemoveTXT(label+"."+achall.Domain, txtValue)
	}
	return nil
}

func (a *Authenticator) waitForPropagation(fqdn, want string) error {
	deadline := time.Now().Add(a.PropagationTimeout)
	interval := a.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	for {
		values, err := a.Resolver.LookupTXT(fqdn)
		if err == nil {
			for _, v := range values {
				if v == want {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return errors.ClientUsageError("dns challenge record for %s did not propagate in time", fqdn)
		}
		time.Sleep(interval)
	}
}
