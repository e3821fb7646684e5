// Package client is the top-level facade: it wires an account, a
// network, an authorization handler, and an optional installer together
// into the register / obtain / save / deploy workflow a CLI entrypoint
// drives.
package client

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/account"
	"github.com/acmecore/acmeclient/acmenet"
	"github.com/acmecore/acmeclient/authhandler"
	"github.com/acmecore/acmeclient/errors"
	"github.com/acmecore/acmeclient/keymanager"
	"github.com/acmecore/acmeclient/reporter"
)

// Config carries the directories and policy the facade needs beyond
// what's already on the Account.
type Config struct {
	CertDir   string
	KeyDir    string
	KeyPolicy keymanager.KeyPolicy

	// AgreeToTOS is consulted when the server returns a
	// terms-of-service link during registration; returning false aborts
	// registration.
	AgreeToTOS func(termsOfServiceURI string) bool
}

// Client drives the register/obtain/save/deploy workflow against a
// single account.
type Client struct {
	Account     *account.Account
	Network     acmenet.Network
	AuthHandler *authhandler.AuthHandler
	Installer   Installer
	Reporter    reporter.Reporter
	Config      Config
}

// New builds a Client. installer may be nil; DeployCertificate then
// fails if called.
func New(acc *account.Account, network acmenet.Network, authHandler *authhandler.AuthHandler, installer Installer, rep reporter.Reporter, cfg Config) *Client {
	if rep == nil {
		rep = &reporter.MemoryReporter{}
	}
	return &Client{
		Account:     acc,
		Network:     network,
		AuthHandler: authHandler,
		Installer:   installer,
		Reporter:    rep,
		Config:      cfg,
	}
}

// Register creates a new account registration with the server, agreeing
// to its terms of service via Config.AgreeToTOS if one is offered, then
// records phone and email on the account, persists it, and reports where
// its credentials were saved (and its recovery token, if it has one).
func (c *Client) Register(phone, email string) error {
	reg := acme.RegistrationFromData(phone, email)
	jwk, err := acme.LoadAccountKey(c.Account.Key.PEM)
	if err != nil {
		return fmt.Errorf("loading account key: %w", err)
	}
	reg.Key = jwk

	regr, err := c.Network.RegisterFromAccount(reg)
	if err != nil {
		return fmt.Errorf("registering account: %w", err)
	}

	if regr.TermsOfService != "" {
		agree := true
		if c.Config.AgreeToTOS != nil {
			agree = c.Config.AgreeToTOS(regr.TermsOfService)
		}
		if !agree {
			return errors.ClientUsageError("must agree to terms of service to register")
		}
		regr, err = c.Network.AgreeToTOS(regr)
		if err != nil {
			return fmt.Errorf("agreeing to terms of service: %w", err)
		}
	}

	c.Account.Regr = &regr
	c.Account.Email = email
	c.Account.Phone = phone
	if err := c.Account.Save(); err != nil {
		return fmt.Errorf("saving account: %w", err)
	}
	c.reportNewAccount()
	return nil
}

func (c *Client) reportNewAccount() {
	c.Reporter.AddMessage(fmt.Sprintf(
		"Your account credentials have been saved in %s. Back up this "+
			"directory now: it also holds certificates and private keys "+
			"this client obtains.", c.Account.AccountsDir),
		reporter.MediumPriority, true)

	token := c.Account.RecoveryToken()
	if token == "" {
		return
	}
	msg := fmt.Sprintf("If you lose your account credentials, you can recover "+
		"them with the token %q. Write it down and keep it safe.", token)
	if c.Account.Email != "" {
		msg += fmt.Sprintf(" You can also recover via e-mail to %s.", c.Account.Email)
	}
	c.Reporter.AddMessage(msg, reporter.HighPriority, true)
}

// ObtainCertificate authorizes domains (failing closed unless
// bestEffort allows partial authorization), generates a key and CSR,
// and requests issuance.
func (c *Client) ObtainCertificate(domains []string, bestEffort bool) (certPEM, keyPEM, chainPEM []byte, err error) {
	if c.Account.Regr == nil {
		return nil, nil, nil, errors.ClientUsageError("register with the server before obtaining a certificate")
	}

	authzrs, err := c.AuthHandler.GetAuthorizations(domains, bestEffort)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("authorizing domains: %w", err)
	}

	authorized := make([]string, len(authzrs))
	for i, a := range authzrs {
		authorized[i] = a.URI
	}

	key, err := c.Config.KeyPolicy.Generate(keymanager.KeyTypeECDSAP256)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generating certificate key: %w", err)
	}
	csrDER, err := keymanager.NewCSR(key, domains)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building CSR: %w", err)
	}

	certr, err := c.Network.RequestIssuance(acme.CertificateRequest{
		CSR:            csrDER,
		Authorizations: authorized,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("requesting issuance: %w", err)
	}

	certDER, err := x509.ParseCertificate(certr.Body)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parsing issued certificate: %w", err)
	}
	certPEM = encodePEMCert(certDER.Raw)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling certificate key: %w", err)
	}
	keyPEM = encodePEMKey(keyDER)

	if certr.CertChainURI != "" {
		chainPEM, err = c.Network.FetchChain(certr)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("fetching issuer chain: %w", err)
		}
	}

	return certPEM, keyPEM, chainPEM, nil
}

// SaveCertificate writes certPEM and chainPEM (if non-empty) under
// Config.CertDir, returning the absolute paths actually used.
func (c *Client) SaveCertificate(domain string, certPEM, chainPEM []byte) (certPath, chainPath string, err error) {
	certDir, err := filepath.Abs(c.Config.CertDir)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(certDir, 0o755); err != nil {
		return "", "", err
	}

	certPath = filepath.Join(certDir, domain+".crt")
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return "", "", fmt.Errorf("writing certificate: %w", err)
	}

	if len(chainPEM) == 0 {
		return certPath, "", nil
	}

	chainPath = filepath.Join(certDir, domain+".chain.pem")
	if err := os.WriteFile(chainPath, chainPEM, 0o644); err != nil {
		return "", "", fmt.Errorf("writing chain: %w", err)
	}
	return certPath, chainPath, nil
}

// DeployCertificate installs the certificate for every domain via
// Installer, saves the installer's configuration, and restarts it.
func (c *Client) DeployCertificate(domains []string, keyPath, certPath, chainPath string) error {
	if c.Installer == nil {
		return errors.ClientUsageError("no installer is configured; cannot deploy the certificate")
	}

	absCert, err := filepath.Abs(certPath)
	if err != nil {
		return err
	}
	absKey, err := filepath.Abs(keyPath)
	if err != nil {
		return err
	}
	var absChain string
	if chainPath != "" {
		absChain, err = filepath.Abs(chainPath)
		if err != nil {
			return err
		}
	}

	for _, domain := range domains {
		if err := c.Installer.DeployCert(domain, absCert, absKey, absChain); err != nil {
			return fmt.Errorf("deploying certificate for %s: %w", domain, err)
		}
	}

	if err := c.Installer.Save("Deployed certificate"); err != nil {
		return fmt.Errorf("saving installer configuration: %w", err)
	}
	return c.Installer.Restart()
}

func encodePEMCert(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func encodePEMKey(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}
