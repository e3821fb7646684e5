package recoveryauth

import (
	"testing"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/authenticator"
)

func TestPerformReturnsStoredToken(t *testing.T) {
	a := &Authenticator{Token: "s3cr3t"}
	achalls := []authenticator.AnnotatedChallenge{
		{ChallengeBody: acme.ChallengeBody{Chall: &acme.RecoveryTokenChallenge{}}, Domain: "example.com"},
	}
	resps, err := a.Perform(achalls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resps[0] != "s3cr3t" {
		t.Errorf("got %q, want %q", resps[0], "s3cr3t")
	}
}

func TestPerformFailsWithoutStoredToken(t *testing.T) {
	a := &Authenticator{}
	achalls := []authenticator.AnnotatedChallenge{
		{ChallengeBody: acme.ChallengeBody{Chall: &acme.RecoveryTokenChallenge{}}, Domain: "example.com"},
	}
	_, err := a.Perform(achalls)
	if err == nil {
		t.Fatal("expected an error when no recovery token is configured")
	}
}
