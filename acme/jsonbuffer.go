package acme

import "encoding/base64"

// JSONBuffer is raw binary data (a CSR, a DER certificate, a key
// authorization digest) that the wire format carries as unpadded
// base64url text, matching the teacher's core.JSONBuffer.
type JSONBuffer []byte

// MarshalJSON encodes the buffer as an unpadded base64url string.
func (jb JSONBuffer) MarshalJSON() ([]byte, error) {
	encoded := base64.RawURLEncoding.EncodeToString(jb)
	return []byte(`"` + encoded + `"`), nil
}

// UnmarshalJSON decodes an unpadded base64url string, tolerating the
// padded form some servers still emit.
func (jb *JSONBuffer) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		*jb = JSONBuffer{}
		return nil
	}
	raw := string(data[1 : len(data)-1])
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(raw)
		if err != nil {
			return err
		}
	}
	*jb = decoded
	return nil
}
