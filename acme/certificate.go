package acme

// CertificateRequest is the new-cert request body: a DER CSR plus the
// authorization URIs that cover the names it asserts.
type CertificateRequest struct {
	CSR            JSONBuffer `json:"csr"`
	Authorizations []string   `json:"authorizations,omitempty"`
}

// CertificateResource is an issued certificate together with the URIs
// the server handed back for refetching it and its chain, and the
// authorizations it was issued against.
type CertificateResource struct {
	Body           JSONBuffer `json:"body"`
	URI            string     `json:"uri,omitempty"`
	CertChainURI   string     `json:"certChainUri,omitempty"`
	Authorizations []string   `json:"authorizations,omitempty"`
}
