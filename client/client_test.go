package client

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/account"
	"github.com/acmecore/acmeclient/authenticator"
	"github.com/acmecore/acmeclient/authhandler"
	"github.com/acmecore/acmeclient/keymanager"
	"github.com/acmecore/acmeclient/reporter"
)

type fakeNetwork struct {
	authz  *acme.AuthorizationResource
	polled int
}

func (f *fakeNetwork) RegisterFromAccount(reg acme.Registration) (acme.RegistrationResource, error) {
	return acme.RegistrationResource{
		Body:           reg,
		URI:            "https://ca.test/acme/reg/1",
		NewAuthzURI:    "https://ca.test/acme/new-authz",
		TermsOfService: "https://ca.test/terms",
	}, nil
}

func (f *fakeNetwork) AgreeToTOS(regr acme.RegistrationResource) (acme.RegistrationResource, error) {
	regr.Body.Agreement = regr.TermsOfService
	return regr, nil
}

func (f *fakeNetwork) RequestDomainChallenges(domain, newAuthzURI string) (acme.AuthorizationResource, error) {
	return *f.authz, nil
}

func (f *fakeNetwork) AnswerChallenge(challb acme.ChallengeBody, keyAuthorization string) (acme.ChallengeBody, error) {
	challb.Status = acme.StatusPending
	return challb, nil
}

func (f *fakeNetwork) Poll(authzr acme.AuthorizationResource) (acme.AuthorizationResource, error) {
	f.polled++
	authzr.Body.Status = acme.StatusValid
	for i := range authzr.Body.Challenges {
		authzr.Body.Challenges[i].Status = acme.StatusValid
	}
	return authzr, nil
}

func (f *fakeNetwork) RequestIssuance(csr acme.CertificateRequest) (acme.CertificateResource, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return acme.CertificateResource{}, err
	}
	der, err := selfSignedCertDER(key)
	if err != nil {
		return acme.CertificateResource{}, err
	}
	return acme.CertificateResource{Body: der, CertChainURI: "https://ca.test/acme/issuer"}, nil
}

func (f *fakeNetwork) FetchChain(certr acme.CertificateResource) ([]byte, error) {
	return []byte("-----BEGIN CERTIFICATE-----\nfakechain\n-----END CERTIFICATE-----\n"), nil
}

func selfSignedCertDER(key *ecdsa.PrivateKey) ([]byte, error) {
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     []string{"example.com"},
	}
	return x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
}

type fakeDVAuth struct{}

func (fakeDVAuth) GetChallPref(domain string) []acme.ChallengeType {
	return []acme.ChallengeType{acme.ChallengeTypeSimpleHTTP}
}

func (fakeDVAuth) Perform(achalls []authenticator.AnnotatedChallenge) ([]authenticator.KeyAuthorization, error) {
	resps := make([]authenticator.KeyAuthorization, len(achalls))
	for i := range achalls {
		resps[i] = "key-auth"
	}
	return resps, nil
}

func (fakeDVAuth) Cleanup(achalls []authenticator.AnnotatedChallenge) error { return nil }

type fakeInstaller struct {
	deployed []string
	saved    bool
	restarts int
}

func (f *fakeInstaller) DeployCert(domain, certPath, keyPath, chainPath string) error {
	f.deployed = append(f.deployed, domain)
	return nil
}

func (f *fakeInstaller) Save(message string) error {
	f.saved = true
	return nil
}

func (f *fakeInstaller) Restart() error {
	f.restarts++
	return nil
}

func testAccount(t *testing.T) *account.Account {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	dir := t.TempDir()
	return &account.Account{AccountsDir: dir, Key: account.Key{File: filepath.Join(dir, "key.pem"), PEM: pemBytes}}
}

func testAuthHandler(net *fakeNetwork) *authhandler.AuthHandler {
	h := authhandler.New(fakeDVAuth{}, nil, net, authhandler.AccountKey{})
	h.MinSleep = time.Millisecond
	return h
}

func simpleAuthz() *acme.AuthorizationResource {
	return &acme.AuthorizationResource{
		Body: acme.Authorization{
			Identifier: acme.Identifier{Type: acme.IdentifierDNS, Value: "example.com"},
			Status:     acme.StatusPending,
			Challenges: []acme.ChallengeBody{
				{Chall: &acme.SimpleHTTPChallenge{Token: "tok"}, Status: acme.StatusPending},
			},
		},
		URI: "https://ca.test/acme/authz/1",
	}
}

func TestRegisterSavesAccountAndReportsCredentials(t *testing.T) {
	acc := testAccount(t)
	net := &fakeNetwork{authz: simpleAuthz()}
	rep := &reporter.MemoryReporter{}
	c := New(acc, net, testAuthHandler(net), nil, rep, Config{
		AgreeToTOS: func(string) bool { return true },
	})

	if err := c.Register("", "alice@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Regr == nil || acc.Regr.URI == "" {
		t.Fatal("expected a saved registration resource")
	}
	if _, err := os.Stat(filepath.Join(acc.AccountsDir, "alice@example.com")); err != nil {
		t.Errorf("expected account file to be written: %v", err)
	}
	if len(rep.Messages()) == 0 {
		t.Error("expected at least one reported message")
	}
}

func TestObtainAndSaveCertificate(t *testing.T) {
	acc := testAccount(t)
	net := &fakeNetwork{authz: simpleAuthz()}
	c := New(acc, net, testAuthHandler(net), nil, nil, Config{
		CertDir:   t.TempDir(),
		KeyPolicy: keymanager.DefaultPolicy,
	})
	acc.Regr = &acme.RegistrationResource{URI: "https://ca.test/acme/reg/1"}

	certPEM, keyPEM, chainPEM, err := c.ObtainCertificate([]string{"example.com"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 || len(chainPEM) == 0 {
		t.Fatal("expected non-empty cert, key, and chain PEM")
	}

	certPath, chainPath, err := c.SaveCertificate("example.com", certPEM, chainPEM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(certPath); err != nil {
		t.Errorf("expected cert file to exist: %v", err)
	}
	if _, err := os.Stat(chainPath); err != nil {
		t.Errorf("expected chain file to exist: %v", err)
	}
}

func TestObtainCertificateRequiresRegistration(t *testing.T) {
	acc := testAccount(t)
	net := &fakeNetwork{authz: simpleAuthz()}
	c := New(acc, net, testAuthHandler(net), nil, nil, Config{KeyPolicy: keymanager.DefaultPolicy})

	if _, _, _, err := c.ObtainCertificate([]string{"example.com"}, false); err == nil {
		t.Fatal("expected an error when the account has not registered")
	}
}

func TestDeployCertificateRequiresInstaller(t *testing.T) {
	acc := testAccount(t)
	net := &fakeNetwork{authz: simpleAuthz()}
	c := New(acc, net, testAuthHandler(net), nil, nil, Config{})

	if err := c.DeployCertificate([]string{"example.com"}, "key.pem", "cert.pem", ""); err == nil {
		t.Fatal("expected an error with no installer configured")
	}
}

func TestDeployCertificateDrivesInstaller(t *testing.T) {
	acc := testAccount(t)
	net := &fakeNetwork{authz: simpleAuthz()}
	inst := &fakeInstaller{}
	c := New(acc, net, testAuthHandler(net), inst, nil, Config{})

	if err := c.DeployCertificate([]string{"example.com"}, "key.pem", "cert.pem", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inst.deployed) != 1 || !inst.saved || inst.restarts != 1 {
		t.Errorf("unexpected installer interaction: %+v", inst)
	}
}
