package simplehttp

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/authenticator"
)

func testAccountKeyPEM(t *testing.T) []byte {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func TestPerformServesKeyAuthorization(t *testing.T) {
	a := &Authenticator{Addr: "127.0.0.1:0"}
	achalls := []authenticator.AnnotatedChallenge{
		{
			ChallengeBody: acme.ChallengeBody{Chall: &acme.SimpleHTTPChallenge{Token: "tok123"}},
			Domain:        "example.com",
			AccountKeyPEM: testAccountKeyPEM(t),
		},
	}

	resps, err := a.Perform(achalls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resps[0] == "" {
		t.Fatal("expected a non-empty key authorization")
	}

	if err := a.Cleanup(achalls); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestHandleServesRegisteredToken(t *testing.T) {
	a := &Authenticator{Addr: "127.0.0.1:0"}
	achalls := []authenticator.AnnotatedChallenge{
		{
			ChallengeBody: acme.ChallengeBody{Chall: &acme.SimpleHTTPChallenge{Token: "tok456"}},
			Domain:        "example.com",
			AccountKeyPEM: testAccountKeyPEM(t),
		},
	}
	resps, err := a.Perform(achalls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Cleanup(achalls)

	// Give the background goroutine a moment to start accepting.
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://" + a.ListenAddr() + wellKnownPath + "tok456")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != string(resps[0]) {
		t.Errorf("got body %q, want %q", body, resps[0])
	}
}
