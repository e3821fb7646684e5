package account

import (
	"encoding/json"

	"github.com/acmecore/acmeclient/acme"
)

// marshalRegistration renders a Registration as a single-line JSON blob
// suitable for storing as one ini key's value. A Registration with no
// key is written without the "key" field.
func marshalRegistration(r acme.Registration) (string, error) {
	var v interface{} = r
	if r.Key.Key == nil {
		v = struct {
			Contact       []string `json:"contact,omitempty"`
			RecoveryToken string   `json:"recoveryToken,omitempty"`
			Agreement     string   `json:"agreement,omitempty"`
		}{r.Contact, r.RecoveryToken, r.Agreement}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalRegistration is the inverse of marshalRegistration.
func unmarshalRegistration(blob string) (acme.Registration, error) {
	var r acme.Registration
	if blob == "" {
		return r, nil
	}
	err := json.Unmarshal([]byte(blob), &r)
	return r, err
}
