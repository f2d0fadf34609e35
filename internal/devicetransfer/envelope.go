package devicetransfer

import (
	"encoding/json"
	"errors"
)

// Envelope is the self-describing wrapper of every record on the wire.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
	// RawType is the tag as received; it differs from Type only for
	// unrecognised tags.
	RawType string `json:"-"`
}

var errMissingType = errors.New("missing type tag")

// DecodeEnvelope parses the outer envelope of b. An unrecognised tag is not
// an error: the envelope comes back as MessageTypeUnknown.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var raw struct {
		Type *string         `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Envelope{}, &MalformedRecordError{Type: MessageTypeUnknown, Err: err}
	}
	if raw.Type == nil {
		return Envelope{}, &MalformedRecordError{Type: MessageTypeUnknown, Field: "type", Err: errMissingType}
	}
	return Envelope{
		Type:    ParseMessageType(*raw.Type),
		Data:    raw.Data,
		RawType: *raw.Type,
	}, nil
}

// Encode wraps rec in an envelope tagged with its own type.
func Encode(rec WireRecord) ([]byte, error) {
	if u, ok := rec.(*UnknownRecord); ok {
		return json.Marshal(Envelope{Type: MessageType(u.Tag), Data: u.Body})
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: rec.Type(), Data: data})
}

// DecodeRecord parses an envelope and its payload in one step.
func DecodeRecord(b []byte) (WireRecord, error) {
	env, err := DecodeEnvelope(b)
	if err != nil {
		return nil, err
	}
	return Decode(env)
}
