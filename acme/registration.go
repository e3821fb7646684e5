package acme

import jose "gopkg.in/go-jose/go-jose.v2"

// Registration is an account record: the account's public key, its
// contact addresses, an optional recovery token, and the agreement URI
// it has accepted.
type Registration struct {
	Key           jose.JSONWebKey `json:"key"`
	Contact       []string        `json:"contact,omitempty"`
	RecoveryToken string          `json:"recoveryToken,omitempty"`
	Agreement     string          `json:"agreement,omitempty"`
}

// RegistrationFromData builds a Registration's Contact list from a phone
// number and an email, in tel:/mailto: form, omitting either that is
// empty. Contact is always ordered phone before email.
func RegistrationFromData(phone, email string) Registration {
	var contact []string
	if phone != "" {
		contact = append(contact, "tel:"+phone)
	}
	if email != "" {
		contact = append(contact, "mailto:"+email)
	}
	return Registration{Contact: contact}
}

// RegistrationResource pairs a Registration with the URIs the server
// handed back for it.
type RegistrationResource struct {
	Body           Registration `json:"body"`
	URI            string       `json:"uri,omitempty"`
	NewAuthzURI    string       `json:"newAuthzURI,omitempty"`
	TermsOfService string       `json:"termsOfService,omitempty"`
}
