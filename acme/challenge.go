package acme

// ChallengeType identifies one of the wire challenge variants. It is the
// bare "type" tag used both on the wire and as the registry key for
// (de)serialization.
type ChallengeType string

// The challenge variants this client understands, partitioned into two
// capability families (see DVChallenge / ContinuityChallenge below). The
// variant -> family mapping lives on the type, not in a runtime lookup.
const (
	ChallengeTypeDVSNI             ChallengeType = "dvsni"
	ChallengeTypeSimpleHTTP        ChallengeType = "simpleHttp"
	ChallengeTypeDNS               ChallengeType = "dns"
	ChallengeTypeRecoveryToken     ChallengeType = "recoveryToken"
	ChallengeTypeRecoveryContact   ChallengeType = "recoveryContact"
	ChallengeTypeProofOfPossession ChallengeType = "proofOfPossession"
)

// Challenge is the common interface satisfied by every challenge variant.
type Challenge interface {
	ChallengeType() ChallengeType
}

// DVChallenge marks a challenge variant that proves control of a DNS
// identifier via server/network reachability.
type DVChallenge interface {
	Challenge
	dvChallenge()
}

// ContinuityChallenge marks a challenge variant that proves continuity of
// account ownership (a recovery path).
type ContinuityChallenge interface {
	Challenge
	continuityChallenge()
}

// DVSNIChallenge asks the client to present a self-signed certificate
// with a specific SNI name derived from a server nonce and a client-chosen
// secret (R, S).
type DVSNIChallenge struct {
	R string `json:"r"`
	S string `json:"s"`
}

func (DVSNIChallenge) ChallengeType() ChallengeType { return ChallengeTypeDVSNI }
func (DVSNIChallenge) dvChallenge()                 {}

// SimpleHTTPChallenge asks the client to serve a token at a well-known
// HTTP(S) path.
type SimpleHTTPChallenge struct {
	Token string `json:"token"`
	TLS   *bool  `json:"tls,omitempty"`
}

func (SimpleHTTPChallenge) ChallengeType() ChallengeType { return ChallengeTypeSimpleHTTP }
func (SimpleHTTPChallenge) dvChallenge()                 {}

// DNSChallenge asks the client to publish a TXT record containing a key
// authorization digest under a well-known label.
type DNSChallenge struct {
	Token string `json:"token"`
}

func (DNSChallenge) ChallengeType() ChallengeType { return ChallengeTypeDNS }
func (DNSChallenge) dvChallenge()                 {}

// RecoveryTokenChallenge asks the client to present a token it was given
// at registration time, proving it is the same party that registered the
// account key.
type RecoveryTokenChallenge struct{}

func (RecoveryTokenChallenge) ChallengeType() ChallengeType { return ChallengeTypeRecoveryToken }
func (RecoveryTokenChallenge) continuityChallenge()         {}

// RecoveryContactChallenge asks the client to retrieve an activation code
// out of band (e.g. an email or SMS sent to the registered contact) and
// relay it back through an activation URL.
type RecoveryContactChallenge struct {
	ActivationURL string `json:"activationURL,omitempty"`
	SuccessURL    string `json:"successURL,omitempty"`
	Contact       string `json:"contact,omitempty"`
}

func (RecoveryContactChallenge) ChallengeType() ChallengeType { return ChallengeTypeRecoveryContact }
func (RecoveryContactChallenge) continuityChallenge()         {}

// ProofOfPossessionChallenge asks the client to sign a server nonce with
// one of the keys it is hinted to hold (e.g. the key of a certificate
// already observed for the identifier).
type ProofOfPossessionChallenge struct {
	Alg   string `json:"alg"`
	Nonce string `json:"nonce"`
	Hints string `json:"hints,omitempty"`
}

func (ProofOfPossessionChallenge) ChallengeType() ChallengeType {
	return ChallengeTypeProofOfPossession
}
func (ProofOfPossessionChallenge) continuityChallenge() {}

// challengeRegistry maps the wire tag to a zero-value constructor, used by
// ChallengeBody's UnmarshalJSON to pick a concrete type before decoding
// the variant-specific fields into it.
var challengeRegistry = map[ChallengeType]func() Challenge{
	ChallengeTypeDVSNI:             func() Challenge { return &DVSNIChallenge{} },
	ChallengeTypeSimpleHTTP:        func() Challenge { return &SimpleHTTPChallenge{} },
	ChallengeTypeDNS:               func() Challenge { return &DNSChallenge{} },
	ChallengeTypeRecoveryToken:     func() Challenge { return &RecoveryTokenChallenge{} },
	ChallengeTypeRecoveryContact:   func() Challenge { return &RecoveryContactChallenge{} },
	ChallengeTypeProofOfPossession: func() Challenge { return &ProofOfPossessionChallenge{} },
}

// ExclusiveGroup is a configured set of mutually exclusive challenge
// variants: a client or server offering more than one member of a group
// for the same identifier is contradicting itself, so the path planner
// never selects two members of the same group together.
type ExclusiveGroup []ChallengeType

// ExclusiveChallengeGroups is the core's configured table of mutually
// exclusive challenge variants. It is configuration data, not code: the
// only current group is the legacy DVSNI/SimpleHTTP pair, both of which
// prove control of the same identifier over the same TCP connection
// machinery and are therefore redundant with one another.
var ExclusiveChallengeGroups = []ExclusiveGroup{
	{ChallengeTypeDVSNI, ChallengeTypeSimpleHTTP},
}

// MutuallyExclusive reports whether a and b appear together in any
// configured exclusive group.
func MutuallyExclusive(a, b ChallengeType, groups []ExclusiveGroup) bool {
	for _, group := range groups {
		aIn, bIn := false, false
		for _, member := range group {
			if member == a {
				aIn = true
			}
			if member == b {
				bIn = true
			}
		}
		if aIn && bIn {
			return true
		}
	}
	return false
}
