package acme

import (
	"encoding/json"

	"github.com/acmecore/acmeclient/errors"
)

// Status defines the state of a challenge or authorization as it moves
// through the ACME protocol.
type Status string

// These are the states a ChallengeBody or Authorization may hold. Status
// transitions monotonically from Pending toward one of the terminal
// states (Valid, Invalid, Revoked); there is never a transition back out
// of a terminal state.
const (
	StatusUnknown    Status = "unknown"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusValid      Status = "valid"
	StatusInvalid    Status = "invalid"
	StatusRevoked    Status = "revoked"
)

var validStatuses = map[Status]bool{
	StatusUnknown:    true,
	StatusPending:    true,
	StatusProcessing: true,
	StatusValid:      true,
	StatusInvalid:    true,
	StatusRevoked:    true,
}

// IsTerminal reports whether the status can no longer transition.
func (s Status) IsTerminal() bool {
	return s == StatusValid || s == StatusInvalid || s == StatusRevoked
}

// UnmarshalJSON rejects any status name that isn't one of the registered
// constants above, per the DeserializationError contract in spec.md §4.1.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	candidate := Status(raw)
	if !validStatuses[candidate] {
		return errors.DeserializationError("unrecognized status %q", raw)
	}
	*s = candidate
	return nil
}

// IdentifierType defines the available identification mechanisms.
type IdentifierType string

// IdentifierDNS is the only identifier type the protocol currently
// defines: proof of control of a DNS name.
const IdentifierDNS = IdentifierType("dns")
