package devicetransfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devxfer/devxfer/internal/chat"
)

// WireRecord is any value that travels inside an envelope.
type WireRecord interface {
	Type() MessageType
}

// StorageRecord is a wire record that restores into a chat table.
type StorageRecord interface {
	WireRecord
	ToStorage() chat.Record
}

// UnknownRecord holds a record whose tag this build does not know.
type UnknownRecord struct {
	Tag  string
	Body json.RawMessage
}

func (*UnknownRecord) Type() MessageType { return MessageTypeUnknown }

type adapter struct {
	table  chat.Table
	decode func(json.RawMessage) (StorageRecord, error)
	from   func(chat.Record) (StorageRecord, error)
	// skipExisting leaves an already stored row untouched on restore.
	skipExisting bool
}

var (
	registry   map[MessageType]adapter
	tableTypes map[chat.Table]MessageType
)

func init() {
	registry = map[MessageType]adapter{
		MessageTypeConversation:      {table: chat.TableConversations, decode: decodeConversation, from: fromConversation},
		MessageTypeParticipant:       {table: chat.TableParticipants, decode: decodeParticipant, from: fromParticipant},
		MessageTypeUser:              {table: chat.TableUsers, decode: decodeUser, from: fromUser},
		MessageTypeAsset:             {table: chat.TableAssets, decode: decodeAsset, from: fromAsset},
		MessageTypeSnapshot:          {table: chat.TableSnapshots, decode: decodeSnapshot, from: fromSnapshot, skipExisting: true},
		MessageTypeSticker:           {table: chat.TableStickers, decode: decodeSticker, from: fromSticker},
		MessageTypePinMessage:        {table: chat.TablePinMessages, decode: decodePinMessage, from: fromPinMessage, skipExisting: true},
		MessageTypeTranscriptMessage: {table: chat.TableTranscriptMessages, decode: decodeTranscriptMessage, from: fromTranscriptMessage},
		MessageTypeMessage:           {table: chat.TableMessages, decode: decodeMessage, from: fromMessage, skipExisting: true},
		MessageTypeExpiredMessage:    {table: chat.TableExpiredMessages, decode: decodeExpiredMessage, from: fromExpiredMessage},
	}
	tableTypes = make(map[chat.Table]MessageType, len(registry))
	for t, a := range registry {
		tableTypes[a.table] = t
	}
}

// Decode dispatches env to the decoder registered for its tag. Unknown tags
// yield an *UnknownRecord; payload problems yield a *MalformedRecordError.
func Decode(env Envelope) (WireRecord, error) {
	switch env.Type {
	case MessageTypeUnknown:
		return &UnknownRecord{Tag: env.RawType, Body: env.Data}, nil
	case MessageTypeCommand:
		c, err := decodeCommand(env.Data)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	a, ok := registry[env.Type]
	if !ok {
		return &UnknownRecord{Tag: env.RawType, Body: env.Data}, nil
	}
	rec, err := a.decode(env.Data)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FromStorage builds the outbound wire record for a stored row.
func FromStorage(rec chat.Record) (StorageRecord, error) {
	t, ok := tableTypes[rec.Table()]
	if !ok {
		return nil, fmt.Errorf("no wire type for table %q", rec.Table())
	}
	return registry[t].from(rec)
}

// TypeForTable returns the wire tag of a chat table.
func TypeForTable(table chat.Table) (MessageType, bool) {
	t, ok := tableTypes[table]
	return t, ok
}

func skipsExisting(t MessageType) bool {
	return registry[t].skipExisting
}

var (
	errMissingField = errors.New("required field missing")
	errWrongTable   = errors.New("record of wrong table")
)

// decodeFields checks that every required field is present and non-null,
// then unmarshals data into v.
func decodeFields(t MessageType, data json.RawMessage, v any, required ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return &MalformedRecordError{Type: t, Err: err}
	}
	for _, name := range required {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return &MalformedRecordError{Type: t, Field: name, Err: errMissingField}
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return &MalformedRecordError{Type: t, Field: te.Field, Err: err}
		}
		return &MalformedRecordError{Type: t, Err: err}
	}
	return nil
}

func wrongTable(t MessageType, rec chat.Record) error {
	return fmt.Errorf("%s adapter: %w: %s", t, errWrongTable, rec.Table())
}
