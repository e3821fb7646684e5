package acmenet

import (
	"testing"

	acmelib "github.com/eggsampler/acme/v3"

	"github.com/acmecore/acmeclient/acme"
)

func TestConvertAuthorizationSingletonCombinations(t *testing.T) {
	auth := acmelib.Authorization{
		Identifier: acmelib.Identifier{Type: "dns", Value: "example.com"},
		Status:     "pending",
		Challenges: []acmelib.Challenge{
			{Type: acmelib.ChallengeTypeHTTP01, URL: "https://ca.test/chall/1", Token: "tok-a", Status: "pending"},
			{Type: acmelib.ChallengeTypeDNS01, URL: "https://ca.test/chall/2", Token: "tok-b", Status: "pending"},
		},
	}

	body, err := convertAuthorization(auth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.Combinations) != 2 {
		t.Fatalf("expected 2 singleton combinations, got %v", body.Combinations)
	}
	if len(body.Combinations[0]) != 1 || body.Combinations[0][0] != 0 {
		t.Errorf("expected combination 0 = [0], got %v", body.Combinations[0])
	}
	if len(body.Combinations[1]) != 1 || body.Combinations[1][0] != 1 {
		t.Errorf("expected combination 1 = [1], got %v", body.Combinations[1])
	}

	if _, ok := body.Challenges[0].Chall.(*acme.SimpleHTTPChallenge); !ok {
		t.Errorf("expected challenge 0 to be SimpleHTTPChallenge, got %T", body.Challenges[0].Chall)
	}
	if _, ok := body.Challenges[1].Chall.(*acme.DNSChallenge); !ok {
		t.Errorf("expected challenge 1 to be DNSChallenge, got %T", body.Challenges[1].Chall)
	}
}

func TestConvertAuthorizationRejectsUnsupportedChallenge(t *testing.T) {
	auth := acmelib.Authorization{
		Identifier: acmelib.Identifier{Type: "dns", Value: "example.com"},
		Challenges: []acmelib.Challenge{
			{Type: "tls-alpn-01", URL: "https://ca.test/chall/1", Token: "tok-a"},
		},
	}
	if _, err := convertAuthorization(auth); err == nil {
		t.Fatal("expected an error for an unsupported challenge type")
	}
}

func TestEggsamplerChallengeTypeRoundTrip(t *testing.T) {
	wire, err := eggsamplerChallengeType(acme.ChallengeTypeSimpleHTTP)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, err := fromEggsamplerChallengeType(wire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back != acme.ChallengeTypeSimpleHTTP {
		t.Errorf("got %q, want %q", back, acme.ChallengeTypeSimpleHTTP)
	}

	if _, err := eggsamplerChallengeType(acme.ChallengeTypeDVSNI); err == nil {
		t.Error("expected dvsni to have no RFC8555 equivalent")
	}
}
