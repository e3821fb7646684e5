package acme

import (
	"encoding/json"

	"github.com/acmecore/acmeclient/errors"
)

// Identifier encodes a value that can be validated by ACME. The protocol
// allows for different kinds of identifier (DNS names, IP addresses,
// etc.) but this client only speaks the DNS kind.
type Identifier struct {
	Type  IdentifierType `json:"type"`
	Value string         `json:"value"`
}

type rawIdentifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// UnmarshalJSON validates that Type is a recognized identifier type.
func (i *Identifier) UnmarshalJSON(data []byte) error {
	var raw rawIdentifier
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if IdentifierType(raw.Type) != IdentifierDNS {
		return errors.DeserializationError("unrecognized identifier type %q", raw.Type)
	}
	i.Type = IdentifierType(raw.Type)
	i.Value = raw.Value
	return nil
}
