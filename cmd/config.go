package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/acmecore/acmeclient/acme"
)

// Config stores the configuration parameters this client needs. For
// simplicity they are all lumped into one struct and loaded with
// encoding/json.
//
// Note: no defaults are provided, except the challenge set that
// SetDefaultChallengesIfEmpty fills in when Challenges is empty.
type Config struct {
	// Server is the ACME directory/new-registration URL to talk to.
	Server string

	// AccountsDir and AccountKeysDir hold the on-disk account store:
	// one config file per account plus the key files it references.
	AccountsDir    string
	AccountKeysDir string

	// AccountKeyRSABits is the modulus size used when generating a new
	// account's RSA key. Zero defaults to keymanager's default size.
	AccountKeyRSABits int

	// CertDir and KeyDir hold issued certificates and the keys they
	// were requested with. An empty KeyDir puts each key beside its
	// certificate in CertDir.
	CertDir string
	KeyDir  string

	// SimpleHTTPPort is the address the reference SimpleHTTP
	// authenticator binds its token server to.
	SimpleHTTPPort string

	// DebugAddr, if set, runs the metrics/expvar debug server here.
	DebugAddr string

	Network NetworkConfig

	// Challenges enables or disables specific challenge types the DV
	// authenticator is allowed to offer.
	Challenges map[string]bool

	// RecoveryToken, if set, lets the recoveryauth authenticator answer
	// recoveryToken continuity challenges for an existing account.
	RecoveryToken ConfigSecret
}

// NetworkConfig selects and configures a Network implementation.
type NetworkConfig struct {
	// Backend is "http" for the primary old-draft HTTPNetwork, or
	// "rfc8555" for the EggsamplerNetwork adapter.
	Backend string

	// RequestTimeout bounds every network call this client makes.
	RequestTimeout ConfigDuration
}

// CheckChallenges reports whether every name in Challenges is a
// recognized challenge type.
func (c Config) CheckChallenges() error {
	for name := range c.Challenges {
		switch acme.ChallengeType(name) {
		case acme.ChallengeTypeDVSNI, acme.ChallengeTypeSimpleHTTP, acme.ChallengeTypeDNS,
			acme.ChallengeTypeRecoveryToken, acme.ChallengeTypeRecoveryContact, acme.ChallengeTypeProofOfPossession:
			continue
		default:
			return fmt.Errorf("invalid challenge type in config: %s", name)
		}
	}
	return nil
}

// SetDefaultChallengesIfEmpty enables the reference DV challenge types
// (simpleHttp and dns) when the config specifies none.
func (c *Config) SetDefaultChallengesIfEmpty() {
	if len(c.Challenges) > 0 {
		return
	}
	c.Challenges = map[string]bool{
		string(acme.ChallengeTypeSimpleHTTP): true,
		string(acme.ChallengeTypeDNS):        true,
	}
}

// ConfigDuration is a time.Duration that serializes as a JSON string
// ("30s") instead of a number of nanoseconds.
type ConfigDuration struct {
	time.Duration
}

// ErrDurationMustBeString is returned when a non-string value is
// presented to be deserialized as a ConfigDuration.
var ErrDurationMustBeString = errors.New("cannot JSON unmarshal something other than a string into a ConfigDuration")

// UnmarshalJSON parses a string into a ConfigDuration using
// time.ParseDuration.
func (d *ConfigDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return ErrDurationMustBeString
		}
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// MarshalJSON returns the string form of the duration.
func (d ConfigDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// ConfigSecret represents a string-valued config field. It may be
// specified directly in the config or, if it starts with "secret:", its
// contents are read from the file named after the prefix, with
// trailing newlines removed.
type ConfigSecret string

var errSecretMustBeString = errors.New("cannot JSON unmarshal something other than a string into a ConfigSecret")

const secretPrefix = "secret:"

// UnmarshalJSON unmarshals a ConfigSecret, resolving a secret: prefix
// against the filesystem.
func (d *ConfigSecret) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return errSecretMustBeString
		}
		return err
	}
	if !strings.HasPrefix(s, secretPrefix) {
		*d = ConfigSecret(s)
		return nil
	}
	contents, err := os.ReadFile(s[len(secretPrefix):])
	if err != nil {
		return err
	}
	*d = ConfigSecret(strings.TrimRight(string(contents), "\n"))
	return nil
}
