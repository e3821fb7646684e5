package acme

import (
	"encoding/json"
	"time"

	"github.com/acmecore/acmeclient/errors"
)

// ChallengeBody wraps a concrete Challenge variant with the status
// envelope fields the server attaches to it once it is part of an
// authorization: the challenge URI, its current status, the time it
// validated (if any), and any error recorded against it.
//
// On the wire this is a single flat JSON object: the variant's own
// fields (r/s, token, alg, ...) sit alongside the envelope fields,
// disambiguated only by the "type" tag. MarshalJSON/UnmarshalJSON do the
// merge/split so that the rest of the package can work with Chall as a
// typed value instead of a bag of optional fields.
type ChallengeBody struct {
	URI       string     `json:"uri,omitempty"`
	Status    Status     `json:"status,omitempty"`
	Validated *time.Time `json:"validated,omitempty"`
	Error     *Error     `json:"error,omitempty"`
	Chall     Challenge  `json:"-"`
}

type challengeEnvelope struct {
	Type      ChallengeType `json:"type"`
	URI       string        `json:"uri,omitempty"`
	Status    Status        `json:"status,omitempty"`
	Validated *time.Time    `json:"validated,omitempty"`
	Error     *Error        `json:"error,omitempty"`
}

// MarshalJSON flattens Chall's own fields into the same object as the
// envelope fields, tagged by Chall.ChallengeType().
func (cb ChallengeBody) MarshalJSON() ([]byte, error) {
	if cb.Chall == nil {
		return nil, errors.ClientUsageError("challenge body has no underlying challenge")
	}
	variant, err := json.Marshal(cb.Chall)
	if err != nil {
		return nil, err
	}
	var variantFields map[string]json.RawMessage
	if err := json.Unmarshal(variant, &variantFields); err != nil {
		return nil, err
	}

	envelope := challengeEnvelope{
		Type:      cb.Chall.ChallengeType(),
		URI:       cb.URI,
		Status:    cb.Status,
		Validated: cb.Validated,
		Error:     cb.Error,
	}
	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(envelopeBytes, &merged); err != nil {
		return nil, err
	}
	for k, v := range variantFields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the "type" tag, looks up the matching variant
// constructor, and decodes the full object into both the envelope and
// the variant in turn.
func (cb *ChallengeBody) UnmarshalJSON(data []byte) error {
	var envelope challengeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	ctor, ok := challengeRegistry[envelope.Type]
	if !ok {
		return errors.DeserializationError("unrecognized challenge type %q", envelope.Type)
	}
	chall := ctor()
	if err := json.Unmarshal(data, chall); err != nil {
		return err
	}

	cb.URI = envelope.URI
	cb.Status = envelope.Status
	cb.Validated = envelope.Validated
	cb.Error = envelope.Error
	cb.Chall = chall
	return nil
}
