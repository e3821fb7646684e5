package acme

import "testing"

func TestRevocationURL(t *testing.T) {
	var r Revocation
	got, err := r.URL("https://ca.example/acme/new-reg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://ca.example/acme/revoke-cert"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
