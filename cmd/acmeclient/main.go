// Command acmeclient registers an ACME account, authorizes a set of
// domains, and obtains and saves a certificate for them.
package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/account"
	"github.com/acmecore/acmeclient/acmenet"
	"github.com/acmecore/acmeclient/authenticator"
	"github.com/acmecore/acmeclient/authenticator/dnsauth"
	"github.com/acmecore/acmeclient/authenticator/recoveryauth"
	"github.com/acmecore/acmeclient/authenticator/simplehttp"
	"github.com/acmecore/acmeclient/authhandler"
	"github.com/acmecore/acmeclient/client"
	"github.com/acmecore/acmeclient/cmd"
	"github.com/acmecore/acmeclient/keymanager"
	"github.com/acmecore/acmeclient/metrics"
)

func main() {
	configFile := flag.String("config", "", "Path to a JSON configuration file")
	domainsFlag := flag.String("domains", "", "Comma-separated list of domains to authorize and certify")
	email := flag.String("email", "", "Contact e-mail address to register with")
	phone := flag.String("phone", "", "Contact phone number to register with")
	register := flag.Bool("register", false, "Register a new account before obtaining a certificate")
	bestEffort := flag.Bool("best-effort", false, "Keep domains that authorize successfully even if others fail")
	flag.Parse()

	var cfg cmd.Config
	cmd.FailOnError(cmd.ReadConfigFile(*configFile, &cfg), "Reading config file")
	cfg.SetDefaultChallengesIfEmpty()
	cmd.FailOnError(cfg.CheckChallenges(), "Validating configured challenge types")

	scope, logger := cmd.StatsAndLogging("acmeclient")

	if cfg.DebugAddr != "" {
		go func() {
			if err := cmd.DebugServer(cfg.DebugAddr); err != nil {
				logger.Error(err, "debug server exited")
			}
		}()
	}

	acc, err := loadOrCreateAccount(cfg, *email)
	cmd.FailOnError(err, "Loading account")

	network, err := buildNetwork(cfg, acc, scope)
	cmd.FailOnError(err, "Building network backend")

	dvAuth, contAuth := buildAuthenticators(cfg)
	h := authhandler.New(dvAuth, contAuth, network, authhandler.AccountKey{PEM: acc.Key.PEM})
	h.Log = logger
	h.Scope = scope

	c := client.New(acc, network, h, nil, nil, client.Config{
		CertDir:    cfg.CertDir,
		KeyDir:     cfg.KeyDir,
		KeyPolicy:  keymanager.DefaultPolicy,
		AgreeToTOS: func(string) bool { return true },
	})

	if *register {
		cmd.FailOnError(c.Register(*phone, *email), "Registering account")
	}

	if *domainsFlag == "" {
		return
	}
	domains := strings.Split(*domainsFlag, ",")

	certPEM, keyPEM, chainPEM, err := c.ObtainCertificate(domains, *bestEffort)
	cmd.FailOnError(err, "Obtaining certificate")

	certPath, chainPath, err := c.SaveCertificate(domains[0], certPEM, chainPEM)
	cmd.FailOnError(err, "Saving certificate")

	keyPath := certPath + ".key"
	if cfg.KeyDir != "" {
		cmd.FailOnError(os.MkdirAll(cfg.KeyDir, 0o700), "Creating key directory")
		keyPath = filepath.Join(cfg.KeyDir, domains[0]+".key")
	}
	cmd.FailOnError(os.WriteFile(keyPath, keyPEM, 0o600), "Saving certificate key")

	fmt.Printf("Certificate saved to %s\n", certPath)
	fmt.Printf("Key saved to %s\n", keyPath)
	if chainPath != "" {
		fmt.Printf("Chain saved to %s\n", chainPath)
	}
}

func buildNetwork(cfg cmd.Config, acc *account.Account, scope metrics.Scope) (acmenet.Network, error) {
	signer, err := acme.ParseAccountSigner(acc.Key.PEM)
	if err != nil {
		return nil, err
	}

	switch cfg.Network.Backend {
	case "rfc8555":
		return nil, fmt.Errorf("rfc8555 backend requires constructing an eggsampler client directly; see acmenet.EggsamplerNetwork")
	default:
		return &acmenet.HTTPNetwork{
			Server:     cfg.Server,
			Key:        signer,
			Scope:      scope,
			HTTPClient: &http.Client{Timeout: cfg.Network.RequestTimeout.Duration},
		}, nil
	}
}

// buildAuthenticators picks a single DV authenticator from the
// configured challenge set (simpleHttp by default, dns if that's the
// only DV type enabled) and a continuity authenticator that answers
// recoveryToken challenges when the config carries a token.
func buildAuthenticators(cfg cmd.Config) (dv, cont authenticator.Authenticator) {
	if cfg.Challenges[string(acme.ChallengeTypeDNS)] && !cfg.Challenges[string(acme.ChallengeTypeSimpleHTTP)] {
		dv = &dnsauth.Authenticator{}
	} else {
		dv = &simplehttp.Authenticator{Addr: cfg.SimpleHTTPPort}
	}

	cont = &recoveryauth.Authenticator{Token: string(cfg.RecoveryToken)}
	return dv, cont
}

func loadOrCreateAccount(cfg cmd.Config, email string) (*account.Account, error) {
	acc, err := account.FromExistingAccount(cfg.AccountsDir, email)
	if err == nil {
		return acc, nil
	}
	return account.FromEmail(cfg.AccountsDir, cfg.AccountKeysDir, email, generateAccountKey(cfg.AccountKeyRSABits))
}

// generateAccountKey builds the account.KeyGenerator this command uses to
// provision new accounts: an RSA key of the configured size, written
// PEM-encoded under accountKeysDir.
func generateAccountKey(rsaBits int) account.KeyGenerator {
	return func(accountKeysDir, filename string) (account.Key, error) {
		policy := keymanager.DefaultPolicy
		policy.RSAKeySize = rsaBits

		signer, err := policy.Generate(keymanager.KeyTypeRSA)
		if err != nil {
			return account.Key{}, err
		}
		rsaKey, ok := signer.(*rsa.PrivateKey)
		if !ok {
			return account.Key{}, fmt.Errorf("generated account key is not RSA")
		}
		der := x509.MarshalPKCS1PrivateKey(rsaKey)
		keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})

		path := filepath.Join(accountKeysDir, filename+".pem")
		if err := os.WriteFile(path, keyPEM, 0o600); err != nil {
			return account.Key{}, err
		}
		return account.Key{File: path, PEM: keyPEM}, nil
	}
}
