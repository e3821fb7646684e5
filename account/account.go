// Package account manages on-disk ACME account records: one key=value
// config file per account, keyed by a sanitized email address (or the
// literal name "default" for the no-email account), alongside the
// account's private key file.
package account

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/errors"
)

// emailRegexp matches a plausible email address. It intentionally does
// not reject a leading dot or a double dot; safeEmail enforces those
// separately so the failure reason stays legible.
var emailRegexp = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+$`)

// Key is an account or certificate private key as stored on disk: the
// path it lives at and its PEM-encoded bytes.
type Key struct {
	File string
	PEM  []byte
}

// Account is a registered ACME account as persisted by this client:
// which key it authenticates with, its contact email and phone, and the
// registration resource the server returned for it (nil until the
// account has actually registered).
type Account struct {
	AccountsDir string
	Key         Key
	Email       string
	Phone       string
	Regr        *acme.RegistrationResource
}

// URI returns the account's registration URI, or "" if it has not
// registered yet.
func (a *Account) URI() string {
	if a.Regr == nil {
		return ""
	}
	return a.Regr.URI
}

// NewAuthzURI returns the server's new-authorization URI for this
// account, or "" if it has not registered yet.
func (a *Account) NewAuthzURI() string {
	if a.Regr == nil {
		return ""
	}
	return a.Regr.NewAuthzURI
}

// TermsOfService returns the terms-of-service URI the account has
// agreed to, or "" if it has not registered yet.
func (a *Account) TermsOfService() string {
	if a.Regr == nil {
		return ""
	}
	return a.Regr.TermsOfService
}

// RecoveryToken returns the account's recovery token, or "" if it has
// not registered yet.
func (a *Account) RecoveryToken() string {
	if a.Regr == nil {
		return ""
	}
	return a.Regr.Body.RecoveryToken
}

// configFilename returns the on-disk file name for an account with the
// given email: the email itself, or "default" when there is none.
func configFilename(email string) string {
	if email == "" {
		return "default"
	}
	return email
}

// SafeEmail reports whether email is safe to use as-is, both as an
// address and as a filename component: it must match the permissive
// email shape, and must not start with a dot or contain two consecutive
// dots.
func SafeEmail(email string) bool {
	if !emailRegexp.MatchString(email) {
		return false
	}
	return !strings.HasPrefix(email, ".") && !strings.Contains(email, "..")
}

// Save writes the account's config file into accountsDir, creating the
// directory (mode 0700) if necessary.
func (a *Account) Save() error {
	if err := os.MkdirAll(a.AccountsDir, 0o700); err != nil {
		return err
	}
	if err := os.Chmod(a.AccountsDir, 0o700); err != nil {
		return err
	}

	cfg := ini.Empty()
	section, err := cfg.NewSection(ini.DefaultSection)
	if err != nil {
		return err
	}
	if _, err := section.NewKey("key", a.Key.File); err != nil {
		return err
	}
	phone := a.Phone
	if phone == "" {
		phone = "None"
	}
	if _, err := section.NewKey("phone", phone); err != nil {
		return err
	}

	if a.Regr != nil {
		rr, err := cfg.NewSection("RegistrationResource")
		if err != nil {
			return err
		}
		if _, err := rr.NewKey("uri", a.Regr.URI); err != nil {
			return err
		}
		if _, err := rr.NewKey("new_authzr_uri", a.Regr.NewAuthzURI); err != nil {
			return err
		}
		if _, err := rr.NewKey("terms_of_service", a.Regr.TermsOfService); err != nil {
			return err
		}
		body, err := marshalRegistration(a.Regr.Body)
		if err != nil {
			return err
		}
		if _, err := rr.NewKey("body", body); err != nil {
			return err
		}
	}

	return cfg.SaveTo(filepath.Join(a.AccountsDir, configFilename(a.Email)))
}

// FromExistingAccount loads a previously saved account record for the
// given email (or "" for the default account).
func FromExistingAccount(accountsDir, email string) (*Account, error) {
	fp := filepath.Join(accountsDir, configFilename(email))
	return fromConfigFile(accountsDir, fp)
}

func fromConfigFile(accountsDir, configFp string) (*Account, error) {
	cfg, err := ini.Load(configFp)
	if err != nil {
		return nil, errors.ClientUsageError("account for %s does not exist", filepath.Base(configFp))
	}
	section := cfg.Section(ini.DefaultSection)

	base := filepath.Base(configFp)
	email := base
	if base == "default" {
		email = ""
	}

	phone := section.Key("phone").String()
	if phone == "None" {
		phone = ""
	}

	keyFile := section.Key("key").String()
	pem, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	key := Key{File: keyFile, PEM: pem}

	var regr *acme.RegistrationResource
	if cfg.HasSection("RegistrationResource") {
		rr := cfg.Section("RegistrationResource")
		body, err := unmarshalRegistration(rr.Key("body").String())
		if err != nil {
			return nil, err
		}
		regr = &acme.RegistrationResource{
			URI:            rr.Key("uri").String(),
			NewAuthzURI:    rr.Key("new_authzr_uri").String(),
			TermsOfService: rr.Key("terms_of_service").String(),
			Body:           body,
		}
	}

	return &Account{
		AccountsDir: accountsDir,
		Key:         key,
		Email:       email,
		Phone:       phone,
		Regr:        regr,
	}, nil
}

// GetAccounts returns every account currently saved under accountsDir,
// skipping subdirectories (e.g. a key store living alongside the config
// files). A missing accountsDir yields an empty, non-error result.
func GetAccounts(accountsDir string) ([]*Account, error) {
	entries, err := os.ReadDir(accountsDir)
	if err != nil {
		return nil, nil
	}

	var accounts []*Account
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		acc, err := fromConfigFile(accountsDir, filepath.Join(accountsDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// KeyGenerator produces and persists a new account key under
// accountKeysDir, named after filename, and returns the resulting Key.
type KeyGenerator func(accountKeysDir, filename string) (Key, error)

// FromEmail generates a new account for the given email (or "" for the
// anonymous default account), persisting a freshly generated key via
// genKey.
func FromEmail(accountsDir, accountKeysDir, email string, genKey KeyGenerator) (*Account, error) {
	if email != "" && !SafeEmail(email) {
		return nil, errors.ClientUsageError("invalid email address %q", email)
	}

	if err := os.MkdirAll(accountKeysDir, 0o700); err != nil {
		return nil, err
	}
	if err := os.Chmod(accountKeysDir, 0o700); err != nil {
		return nil, err
	}

	key, err := genKey(accountKeysDir, configFilename(email))
	if err != nil {
		return nil, err
	}

	return &Account{
		AccountsDir: accountsDir,
		Key:         key,
		Email:       email,
	}, nil
}

// Chooser prompts for an email address and returns the result of the
// interaction: the address entered, and whether the caller confirmed
// (rather than cancelling the prompt).
type Chooser func() (email string, ok bool)

// Determine drives an interactive email prompt via chooser, retrying on
// an invalid address until the user confirms a valid one or cancels.
func Determine(accountsDir, accountKeysDir string, chooser Chooser, genKey KeyGenerator) (*Account, error) {
	for {
		email, ok := chooser()
		if !ok {
			return nil, nil
		}
		acc, err := FromEmail(accountsDir, accountKeysDir, email, genKey)
		if err != nil {
			if errors.Is(err, errors.Client) {
				continue
			}
			return nil, err
		}
		return acc, nil
	}
}
