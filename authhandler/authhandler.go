// Package authhandler drives the authorization state machine: for each
// requested domain it fetches the server's offered challenges, plans
// and performs a subset of them through the DV and continuity
// authenticators, submits the results, and polls until every
// authorization reaches a terminal state.
package authhandler

import (
	"time"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acmenet"
	"github.com/acmecore/acmeclient/authenticator"
	"github.com/acmecore/acmeclient/errors"
	"github.com/acmecore/acmeclient/metrics"
	"github.com/acmecore/acmeclient/pathplan"
)

// Logger is the minimal logging surface AuthHandler needs, satisfied by
// the log package's wrapper around logr.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(err error, msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})         {}
func (noopLogger) Error(error, string, ...interface{}) {}

// AuthHandler coordinates one authorization round for a set of domains.
// It is not safe for concurrent use by multiple goroutines.
type AuthHandler struct {
	DVAuth   authenticator.Authenticator
	ContAuth authenticator.Authenticator
	Network  acmenet.Network
	Account  AccountKey
	Log      Logger
	Scope    metrics.Scope

	MinSleep  time.Duration
	MaxRounds int

	authzr map[string]acme.AuthorizationResource
	dvC    []authenticator.AnnotatedChallenge
	contC  []authenticator.AnnotatedChallenge
}

// AccountKey is the slice of an Account that AuthHandler needs: its
// private key, used to annotate outgoing challenges.
type AccountKey struct {
	PEM []byte
}

// defaultMinSleep and defaultMaxRounds match the reference client's
// polling cadence: a few seconds between rounds, capped well short of
// forever so a permanently pending server doesn't hang the caller.
const (
	defaultMinSleep  = 3 * time.Second
	defaultMaxRounds = 15
)

// New builds an AuthHandler ready to call GetAuthorizations.
func New(dvAuth, contAuth authenticator.Authenticator, network acmenet.Network, acc AccountKey) *AuthHandler {
	return &AuthHandler{
		DVAuth:    dvAuth,
		ContAuth:  contAuth,
		Network:   network,
		Account:   acc,
		Log:       noopLogger{},
		Scope:     metrics.NewNoopScope(),
		MinSleep:  defaultMinSleep,
		MaxRounds: defaultMaxRounds,
		authzr:    make(map[string]acme.AuthorizationResource),
	}
}

// GetAuthorizations drives every domain in domains to a decided
// authorization. With bestEffort false, it returns an error unless every
// domain's authorization reaches valid. With bestEffort true, domains
// whose authorization fails are dropped from the result instead of
// causing an error. In both modes, a domain still undecided when the
// polling rounds run out makes the call fail.
func (h *AuthHandler) GetAuthorizations(domains []string, bestEffort bool) ([]acme.AuthorizationResource, error) {
	for _, domain := range domains {
		authzr, err := h.Network.RequestDomainChallenges(domain, "")
		if err != nil {
			return nil, err
		}
		h.authzr[domain] = authzr
	}

	if err := h.chooseChallenges(domains); err != nil {
		return nil, err
	}

	for len(h.dvC) > 0 || len(h.contC) > 0 {
		contResp, dvResp, err := h.solveChallenges()
		if err != nil {
			return nil, err
		}
		h.Log.Info("waiting for verification")
		if err := h.respond(contResp, dvResp, bestEffort); err != nil {
			return nil, err
		}
	}

	if err := h.VerifyAuthzrComplete(); err != nil {
		return nil, err
	}

	var valid []acme.AuthorizationResource
	for _, authzr := range h.authzr {
		if authzr.Body.Status == acme.StatusValid {
			valid = append(valid, authzr)
		}
	}
	return valid, nil
}

// chooseChallenges plans a challenge path for every domain and splits
// the resulting annotated challenges into the DV and continuity queues.
func (h *AuthHandler) chooseChallenges(domains []string) error {
	for _, domain := range domains {
		authzr := h.authzr[domain]
		path, err := pathplan.GenChallengePath(
			authzr.Body.Challenges,
			h.challPref(domain),
			authzr.Body.Combinations,
		)
		if err != nil {
			return err
		}

		for _, index := range path {
			challb := authzr.Body.Challenges[index]
			achall := authenticator.AnnotatedChallenge{
				ChallengeBody: challb,
				Domain:        domain,
				AccountKeyPEM: h.Account.PEM,
			}
			switch challb.Chall.(type) {
			case acme.ContinuityChallenge:
				h.contC = append(h.contC, achall)
			case acme.DVChallenge:
				h.dvC = append(h.dvC, achall)
			default:
				return errors.ClientUsageError("unsupported challenge type %q", challb.Chall.ChallengeType())
			}
		}
	}
	return nil
}

// challPref returns the combined preference order of the continuity and
// DV authenticators for domain, continuity first, matching the
// reference ordering.
func (h *AuthHandler) challPref(domain string) []acme.ChallengeType {
	var prefs []acme.ChallengeType
	if h.ContAuth != nil {
		prefs = append(prefs, h.ContAuth.GetChallPref(domain)...)
	}
	if h.DVAuth != nil {
		prefs = append(prefs, h.DVAuth.GetChallPref(domain)...)
	}
	return prefs
}

// solveChallenges asks both authenticators to perform their queued
// challenges. On failure it cleans up everything outstanding before
// propagating the error, so no achall in dvC/contC survives a failed
// Perform call.
func (h *AuthHandler) solveChallenges() (contResp, dvResp []authenticator.KeyAuthorization, err error) {
	if len(h.contC) > 0 {
		contResp, err = h.ContAuth.Perform(h.contC)
	}
	if err == nil && len(h.dvC) > 0 {
		dvResp, err = h.DVAuth.Perform(h.dvC)
	}
	if err != nil {
		h.Log.Error(err, "failure in setting up challenges")
		h.cleanupChallenges(nil)
		return nil, nil, err
	}

	if len(contResp) != len(h.contC) || len(dvResp) != len(h.dvC) {
		h.cleanupChallenges(nil)
		return nil, nil, errors.ClientUsageError("authenticator returned a response count that did not match the challenge count")
	}
	return contResp, dvResp, nil
}

// respond submits every non-nil response, polls until the domains they
// cover are decided, and always cleans up the challenges it submitted
// (successful or not) before returning.
func (h *AuthHandler) respond(contResp, dvResp []authenticator.KeyAuthorization, bestEffort bool) error {
	domainUpdates := make(map[string][]authenticator.AnnotatedChallenge)
	var active []authenticator.AnnotatedChallenge

	active = append(active, h.sendResponses(h.dvC, dvResp, domainUpdates)...)
	active = append(active, h.sendResponses(h.contC, contResp, domainUpdates)...)

	pollErr := h.pollChallenges(domainUpdates, bestEffort)
	h.cleanupChallenges(active)
	return pollErr
}

// sendResponses submits each non-empty response for achalls through the
// network and records the domains it touched in domainUpdates.
func (h *AuthHandler) sendResponses(achalls []authenticator.AnnotatedChallenge, resps []authenticator.KeyAuthorization, domainUpdates map[string][]authenticator.AnnotatedChallenge) []authenticator.AnnotatedChallenge {
	var active []authenticator.AnnotatedChallenge
	for i, achall := range achalls {
		if i >= len(resps) || resps[i] == "" {
			continue
		}
		updated, err := h.Network.AnswerChallenge(achall.ChallengeBody, string(resps[i]))
		if err != nil {
			h.Log.Error(err, "failed to submit challenge response", "domain", achall.Domain)
			continue
		}
		achall.ChallengeBody = updated
		active = append(active, achall)
		domainUpdates[achall.Domain] = append(domainUpdates[achall.Domain], achall)
	}
	return active
}

// pollChallenges refetches each updated domain's authorization on a
// fixed interval until every challenge it submitted has reached a
// terminal state, the round budget is exhausted, or (with bestEffort
// false) one fails.
func (h *AuthHandler) pollChallenges(domainUpdates map[string][]authenticator.AnnotatedChallenge, bestEffort bool) error {
	pending := make(map[string]bool, len(domainUpdates))
	for domain := range domainUpdates {
		pending[domain] = true
	}

	for round := 0; len(pending) > 0 && round < h.MaxRounds; round++ {
		time.Sleep(h.MinSleep)
		h.Scope.Inc("poll_rounds", 1)

		for domain := range pending {
			completed, failed, err := h.handleCheck(domain, domainUpdates[domain])
			if err != nil {
				return err
			}

			switch {
			case len(completed) == len(domainUpdates[domain]):
				delete(pending, domain)
			case len(failed) == 0:
				domainUpdates[domain] = remaining(domainUpdates[domain], completed)
			default:
				if bestEffort {
					delete(pending, domain)
				} else {
					return errors.AuthorizationError("failed authorization procedure for %s", domain)
				}
			}
		}
	}
	return nil
}

// remaining returns achalls with every member of done removed, compared
// by challenge URI.
func remaining(achalls, done []authenticator.AnnotatedChallenge) []authenticator.AnnotatedChallenge {
	doneURIs := make(map[string]bool, len(done))
	for _, d := range done {
		doneURIs[d.ChallengeBody.URI] = true
	}
	var out []authenticator.AnnotatedChallenge
	for _, a := range achalls {
		if !doneURIs[a.ChallengeBody.URI] {
			out = append(out, a)
		}
	}
	return out
}

// handleCheck refetches domain's authorization and reports which of
// achalls have resolved to valid or invalid.
func (h *AuthHandler) handleCheck(domain string, achalls []authenticator.AnnotatedChallenge) (completed, failed []authenticator.AnnotatedChallenge, err error) {
	authzr, err := h.Network.Poll(h.authzr[domain])
	if err != nil {
		return nil, nil, err
	}
	h.authzr[domain] = authzr

	if authzr.Body.Status == acme.StatusValid {
		return achalls, nil, nil
	}

	for _, achall := range achalls {
		status, err := challStatus(authzr, achall)
		if err != nil {
			return nil, nil, err
		}
		switch status {
		case acme.StatusValid:
			completed = append(completed, achall)
		case acme.StatusInvalid:
			failed = append(failed, achall)
		}
	}
	return completed, failed, nil
}

// challStatus finds the server's current status for achall's challenge
// type within authzr. This assumes, as the reference implementation
// does, that an authorization never offers the same challenge type
// twice.
func challStatus(authzr acme.AuthorizationResource, achall authenticator.AnnotatedChallenge) (acme.Status, error) {
	for _, challb := range authzr.Body.Challenges {
		if challb.Chall.ChallengeType() == achall.ChallengeBody.Chall.ChallengeType() {
			return challb.Status, nil
		}
	}
	return "", errors.AuthorizationError("target challenge not found in authorization resource")
}

// cleanupChallenges tears down either every outstanding challenge (when
// achallList is nil) or only the listed ones, removing them from dvC and
// contC as it goes.
func (h *AuthHandler) cleanupChallenges(achallList []authenticator.AnnotatedChallenge) {
	h.Log.Info("cleaning up challenges")

	var dv, cont []authenticator.AnnotatedChallenge
	if achallList == nil {
		dv, cont = h.dvC, h.contC
	} else {
		for _, achall := range achallList {
			switch achall.ChallengeBody.Chall.(type) {
			case acme.ContinuityChallenge:
				cont = append(cont, achall)
			case acme.DVChallenge:
				dv = append(dv, achall)
			}
		}
	}

	if len(dv) > 0 {
		if err := h.DVAuth.Cleanup(dv); err != nil {
			h.Log.Error(err, "dv authenticator cleanup failed")
		}
		h.dvC = remaining(h.dvC, dv)
	}
	if len(cont) > 0 {
		if err := h.ContAuth.Cleanup(cont); err != nil {
			h.Log.Error(err, "continuity authenticator cleanup failed")
		}
		h.contC = remaining(h.contC, cont)
	}
}

// VerifyAuthzrComplete returns an error unless every tracked
// authorization has reached a terminal (valid or invalid) status.
func (h *AuthHandler) VerifyAuthzrComplete() error {
	for _, authzr := range h.authzr {
		if authzr.Body.Status != acme.StatusValid && authzr.Body.Status != acme.StatusInvalid {
			return errors.AuthorizationError("incomplete authorizations")
		}
	}
	return nil
}
