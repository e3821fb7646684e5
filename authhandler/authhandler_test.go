package authhandler

import (
	"testing"
	"time"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/authenticator"
)

// fakeNetwork is an in-memory acmenet.Network that resolves every
// challenge it is asked to answer according to a scripted outcome per
// domain, advancing one status step per Poll call.
type fakeNetwork struct {
	authzByDomain map[string]*acme.AuthorizationResource
	// outcome controls what each domain's authorization resolves to:
	// "valid", "invalid", or "pending" (never resolves).
	outcome map[string]string
	// roundsToResolve is how many Poll calls a domain takes to settle.
	roundsToResolve map[string]int
	pollCount       map[string]int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		authzByDomain:   make(map[string]*acme.AuthorizationResource),
		outcome:         make(map[string]string),
		roundsToResolve: make(map[string]int),
		pollCount:       make(map[string]int),
	}
}

func (f *fakeNetwork) RegisterFromAccount(acc acme.Registration) (acme.RegistrationResource, error) {
	return acme.RegistrationResource{}, nil
}

func (f *fakeNetwork) AgreeToTOS(regr acme.RegistrationResource) (acme.RegistrationResource, error) {
	return regr, nil
}

func (f *fakeNetwork) RequestDomainChallenges(domain, newAuthzURI string) (acme.AuthorizationResource, error) {
	authzr := f.authzByDomain[domain]
	return *authzr, nil
}

func (f *fakeNetwork) AnswerChallenge(challb acme.ChallengeBody, keyAuthorization string) (acme.ChallengeBody, error) {
	challb.Status = acme.StatusPending
	return challb, nil
}

func (f *fakeNetwork) Poll(authzr acme.AuthorizationResource) (acme.AuthorizationResource, error) {
	domain := authzr.Body.Identifier.Value
	f.pollCount[domain]++

	if f.pollCount[domain] >= f.roundsToResolve[domain] && f.roundsToResolve[domain] > 0 {
		final := f.outcome[domain]
		for i := range authzr.Body.Challenges {
			if final == "valid" {
				authzr.Body.Challenges[i].Status = acme.StatusValid
			} else if final == "invalid" {
				authzr.Body.Challenges[i].Status = acme.StatusInvalid
			}
		}
		if final == "valid" {
			authzr.Body.Status = acme.StatusValid
		} else if final == "invalid" {
			authzr.Body.Status = acme.StatusInvalid
		}
	}
	return authzr, nil
}

func (f *fakeNetwork) RequestIssuance(csr acme.CertificateRequest) (acme.CertificateResource, error) {
	return acme.CertificateResource{}, nil
}

func (f *fakeNetwork) FetchChain(certr acme.CertificateResource) ([]byte, error) {
	return nil, nil
}

// fakeDVAuth succeeds unless failWith is set, and records what it was
// asked to clean up.
type fakeDVAuth struct {
	cleanedUp []authenticator.AnnotatedChallenge
	failWith  error
}

func (f *fakeDVAuth) GetChallPref(domain string) []acme.ChallengeType {
	return []acme.ChallengeType{acme.ChallengeTypeSimpleHTTP, acme.ChallengeTypeDNS}
}

func (f *fakeDVAuth) Perform(achalls []authenticator.AnnotatedChallenge) ([]authenticator.KeyAuthorization, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	resps := make([]authenticator.KeyAuthorization, len(achalls))
	for i := range achalls {
		resps[i] = "key-auth"
	}
	return resps, nil
}

func (f *fakeDVAuth) Cleanup(achalls []authenticator.AnnotatedChallenge) error {
	f.cleanedUp = append(f.cleanedUp, achalls...)
	return nil
}

// noopContAuth stands for "no continuity authenticator": the handler
// then offers only the DV authenticator's preferences.
func noopContAuth() authenticator.Authenticator {
	return nil
}

func simpleAuthz(domain string) *acme.AuthorizationResource {
	return &acme.AuthorizationResource{
		Body: acme.Authorization{
			Identifier: acme.Identifier{Type: acme.IdentifierDNS, Value: domain},
			Status:     acme.StatusPending,
			Challenges: []acme.ChallengeBody{
				{Chall: &acme.SimpleHTTPChallenge{Token: "tok-" + domain}, Status: acme.StatusPending},
			},
		},
		URI: "https://ca.example/acme/authz/" + domain,
	}
}

func TestGetAuthorizationsAllValid(t *testing.T) {
	net := newFakeNetwork()
	net.authzByDomain["a.test"] = simpleAuthz("a.test")
	net.outcome["a.test"] = "valid"
	net.roundsToResolve["a.test"] = 1

	h := New(&fakeDVAuth{}, noopContAuth(), net, AccountKey{})
	h.MinSleep = time.Millisecond

	got, err := h.GetAuthorizations([]string{"a.test"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Body.Identifier.Value != "a.test" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestGetAuthorizationsBestEffortDropsFailures(t *testing.T) {
	net := newFakeNetwork()
	net.authzByDomain["a.test"] = simpleAuthz("a.test")
	net.authzByDomain["b.test"] = simpleAuthz("b.test")
	net.outcome["a.test"] = "valid"
	net.outcome["b.test"] = "invalid"
	net.roundsToResolve["a.test"] = 1
	net.roundsToResolve["b.test"] = 1

	h := New(&fakeDVAuth{}, noopContAuth(), net, AccountKey{})
	h.MinSleep = time.Millisecond

	got, err := h.GetAuthorizations([]string{"a.test", "b.test"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Body.Identifier.Value != "a.test" {
		t.Errorf("expected only a.test to survive best-effort, got %+v", got)
	}
}

func TestGetAuthorizationsFatalWithoutBestEffort(t *testing.T) {
	net := newFakeNetwork()
	net.authzByDomain["a.test"] = simpleAuthz("a.test")
	net.outcome["a.test"] = "invalid"
	net.roundsToResolve["a.test"] = 1

	h := New(&fakeDVAuth{}, noopContAuth(), net, AccountKey{})
	h.MinSleep = time.Millisecond

	_, err := h.GetAuthorizations([]string{"a.test"}, false)
	if err == nil {
		t.Fatal("expected an error when a domain fails without best_effort")
	}
}

func TestGetAuthorizationsMaxRoundsExhausted(t *testing.T) {
	net := newFakeNetwork()
	net.authzByDomain["a.test"] = simpleAuthz("a.test")
	// roundsToResolve left at 0 means the authorization never resolves.

	h := New(&fakeDVAuth{}, noopContAuth(), net, AccountKey{})
	h.MinSleep = time.Millisecond
	h.MaxRounds = 2

	got, err := h.GetAuthorizations([]string{"a.test"}, false)
	if err == nil {
		t.Fatal("expected verify_authzr_complete to fail on exhausted rounds")
	}
	if len(got) != 0 {
		t.Errorf("expected no authorizations, got %+v", got)
	}
}

func TestSolveChallengesCleansUpOnPerformError(t *testing.T) {
	net := newFakeNetwork()
	net.authzByDomain["a.test"] = simpleAuthz("a.test")

	dv := &fakeDVAuth{failWith: errPerform}
	h := New(dv, noopContAuth(), net, AccountKey{})
	h.MinSleep = time.Millisecond

	_, err := h.GetAuthorizations([]string{"a.test"}, false)
	if err == nil {
		t.Fatal("expected Perform failure to propagate")
	}
	if len(h.dvC) != 0 || len(h.contC) != 0 {
		t.Errorf("expected no achall to remain outstanding after cleanup, got dvC=%v contC=%v", h.dvC, h.contC)
	}
}

var errPerform = &performError{}

type performError struct{}

func (p *performError) Error() string { return "perform failed" }
