// Package devicetransfer moves a user's chat history from one device to
// another over a local link. Records travel as self-describing
// {"type", "data"} envelopes inside typed frames; a Session drives the
// handshake, streams or applies records, and reports its TransferState
// through a Bridge.
package devicetransfer

// MessageType is the stable wire tag of a record kind. Tags are additive
// only: an existing tag is never reused for a different kind.
type MessageType string

const (
	MessageTypeConversation      MessageType = "conversation"
	MessageTypeParticipant       MessageType = "participant"
	MessageTypeUser              MessageType = "user"
	MessageTypeAsset             MessageType = "asset"
	MessageTypeSnapshot          MessageType = "snapshot"
	MessageTypeSticker           MessageType = "sticker"
	MessageTypePinMessage        MessageType = "pin_message"
	MessageTypeTranscriptMessage MessageType = "transcript_message"
	MessageTypeMessage           MessageType = "message"
	MessageTypeExpiredMessage    MessageType = "expired_message"
	MessageTypeCommand           MessageType = "command"
	MessageTypeUnknown           MessageType = "unknown"
)

// MessageTypes lists every known tag.
var MessageTypes = []MessageType{
	MessageTypeConversation,
	MessageTypeParticipant,
	MessageTypeUser,
	MessageTypeAsset,
	MessageTypeSnapshot,
	MessageTypeSticker,
	MessageTypePinMessage,
	MessageTypeTranscriptMessage,
	MessageTypeMessage,
	MessageTypeExpiredMessage,
	MessageTypeCommand,
	MessageTypeUnknown,
}

var knownTypes = func() map[string]MessageType {
	m := make(map[string]MessageType, len(MessageTypes))
	for _, t := range MessageTypes {
		m[string(t)] = t
	}
	return m
}()

// ParseMessageType resolves a wire tag. Unrecognised tags map to
// MessageTypeUnknown; it never fails.
func ParseMessageType(tag string) MessageType {
	if t, ok := knownTypes[tag]; ok {
		return t
	}
	return MessageTypeUnknown
}

func (t MessageType) String() string { return string(t) }

// Frame types on the wire.
const (
	FrameCommand byte = 0x01
	FrameMessage byte = 0x02
)

// ProtocolVersion is exchanged in the connect command.
const ProtocolVersion = 1
