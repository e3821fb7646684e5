// Package simplehttp is a reference DV authenticator for the simpleHttp
// challenge: it serves the key authorization at the well-known path for
// as long as the challenge is outstanding.
package simplehttp

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/authenticator"
	"github.com/acmecore/acmeclient/metrics/measured_http"
)

const wellKnownPath = "/.well-known/acme-challenge/"

// Authenticator performs the simpleHttp challenge by running a small
// HTTP server bound to addr. It is meant to run on port 80 of the
// domain being authorized so that the validation request the CA makes
// reaches it directly.
type Authenticator struct {
	Addr string

	mu      sync.Mutex
	tokens  map[string]string
	server  *http.Server
	serveMu sync.Mutex

	// listenAddr is the actual address the server bound to, which can
	// differ from Addr when Addr asks for an OS-assigned port (":0").
	listenAddr string
}

// ListenAddr returns the address the server actually bound to, once
// Perform has started it.
func (a *Authenticator) ListenAddr() string {
	a.serveMu.Lock()
	defer a.serveMu.Unlock()
	return a.listenAddr
}

var _ authenticator.Authenticator = (*Authenticator)(nil)

// GetChallPref reports that this authenticator can perform the
// simpleHttp challenge type, for any domain.
func (a *Authenticator) GetChallPref(domain string) []acme.ChallengeType {
	return []acme.ChallengeType{acme.ChallengeTypeSimpleHTTP}
}

// Perform starts the HTTP server (if not already running) and registers
// a response for every simpleHttp achall.
func (a *Authenticator) Perform(achalls []authenticator.AnnotatedChallenge) ([]authenticator.KeyAuthorization, error) {
	resps := make([]authenticator.KeyAuthorization, len(achalls))

	a.mu.Lock()
	if a.tokens == nil {
		a.tokens = make(map[string]string)
	}
	a.mu.Unlock()

	if err := a.ensureServing(); err != nil {
		return nil, err
	}

	for i, achall := range achalls {
		chall, ok := achall.ChallengeBody.Chall.(*acme.SimpleHTTPChallenge)
		if !ok {
			continue
		}

		keyAuth, err := acme.KeyAuthorization(chall.Token, achall.AccountKeyPEM)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		a.tokens[chall.Token] = keyAuth
		a.mu.Unlock()

		resps[i] = authenticator.KeyAuthorization(keyAuth)
	}
	return resps, nil
}

// Cleanup removes the registered responses for achalls and stops the
// server once nothing is left outstanding.
func (a *Authenticator) Cleanup(achalls []authenticator.AnnotatedChallenge) error {
	a.mu.Lock()
	for _, achall := range achalls {
		if chall, ok := achall.ChallengeBody.Chall.(*acme.SimpleHTTPChallenge); ok {
			delete(a.tokens, chall.Token)
		}
	}
	remaining := len(a.tokens)
	a.mu.Unlock()

	if remaining == 0 {
		return a.stop()
	}
	return nil
}

func (a *Authenticator) ensureServing() error {
	a.serveMu.Lock()
	defer a.serveMu.Unlock()
	if a.server != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc(wellKnownPath, a.handle)
	a.server = &http.Server{Addr: a.Addr, Handler: measured_http.New(mux)}

	ln, err := net.Listen("tcp", a.Addr)
	if err != nil {
		a.server = nil
		return err
	}
	a.listenAddr = ln.Addr().String()
	go a.server.Serve(ln)
	return nil
}

func (a *Authenticator) stop() error {
	a.serveMu.Lock()
	defer a.serveMu.Unlock()
	if a.server == nil {
		return nil
	}
	err := a.server.Close()
	a.server = nil
	return err
}

func (a *Authenticator) handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Path[len(wellKnownPath):]

	a.mu.Lock()
	keyAuth, ok := a.tokens[token]
	a.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, keyAuth)
}
