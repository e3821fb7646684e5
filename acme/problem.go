package acme

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/acmecore/acmeclient/errors"
)

// ProblemType is one of the registered ACME error codes, carried on the
// wire as a URN under the "urn:acme:error:" namespace.
type ProblemType string

const errorNamespace = "urn:acme:error:"

// The registered problem types and their human-readable descriptions.
// The problemDescriptions table is both the description lookup used by
// Error() and the set of codes UnmarshalJSON accepts; MarshalJSON writes
// Typ as given without consulting it.
const (
	MalformedProblem         ProblemType = "malformed"
	UnauthorizedProblem      ProblemType = "unauthorized"
	ServerInternalProblem    ProblemType = "serverInternal"
	TLSProblem               ProblemType = "tls"
	UnknownHostProblem       ProblemType = "unknownHost"
	RateLimitedProblem       ProblemType = "rateLimited"
	ConnectionProblem        ProblemType = "connection"
	InvalidEmailProblem      ProblemType = "invalidEmail"
	NotSupportedProblem      ProblemType = "notSupported"
	ExternalAccountProblem   ProblemType = "externalAccountRequired"
)

var problemDescriptions = map[ProblemType]string{
	MalformedProblem:       "The request message was malformed",
	UnauthorizedProblem:    "The client lacks sufficient authorization",
	ServerInternalProblem:  "The server experienced an internal error",
	TLSProblem:             "The server experienced a TLS error during domain verification",
	UnknownHostProblem:     "The server could not resolve a domain name",
	RateLimitedProblem:     "The client has exceeded a rate limit",
	ConnectionProblem:      "The server could not connect to the client to verify the domain",
	InvalidEmailProblem:    "The provided email for a registration was invalid",
	NotSupportedProblem:    "A request was made for a feature that is not supported",
	ExternalAccountProblem: "The server requires an external account to be bound to this account",
}

// Error is a server-reported problem, either standalone (in an HTTP error
// response) or attached to a ChallengeBody that failed validation.
type Error struct {
	Typ    ProblemType `json:"-"`
	Title  string      `json:"title,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// Error renders "<type> :: <description> :: <detail>", eliding the type
// and description when Typ is empty so that locally constructed errors
// (never decoded off the wire) read as a bare message.
func (e *Error) Error() string {
	if e.Typ == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s :: %s :: %s", e.Typ, problemDescriptions[e.Typ], e.Detail)
}

// String is an alias for Error, matching the teacher's convention of
// giving wire objects a human-readable String() alongside error().
func (e *Error) String() string {
	return e.Error()
}

type rawError struct {
	Type   string `json:"type"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// MarshalJSON re-adds the urn:acme:error: prefix that UnmarshalJSON
// strips.
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(rawError{
		Type:   errorNamespace + string(e.Typ),
		Title:  e.Title,
		Detail: e.Detail,
	})
}

// UnmarshalJSON requires the urn:acme:error: prefix and a registered
// problem code; anything else is a DeserializationError.
func (e *Error) UnmarshalJSON(data []byte) error {
	var raw rawError
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !strings.HasPrefix(raw.Type, errorNamespace) {
		return errors.DeserializationError("error type %q missing %s prefix", raw.Type, errorNamespace)
	}
	code := ProblemType(strings.TrimPrefix(raw.Type, errorNamespace))
	if _, ok := problemDescriptions[code]; !ok {
		return errors.DeserializationError("unrecognized error code %q", code)
	}
	e.Typ = code
	e.Title = raw.Title
	e.Detail = raw.Detail
	return nil
}
