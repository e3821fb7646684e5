package acme

import "net/url"

// Revocation requests that a certificate be revoked.
type Revocation struct {
	CertificateRequest JSONBuffer `json:"certificate"`
}

// URL derives the revoke-cert endpoint from a server's new-reg URL by
// replacing its path, since the old ACME draft does not advertise a
// revocation URL in its directory resource.
func (Revocation) URL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	u.Path = "/acme/revoke-cert"
	return u.String(), nil
}
