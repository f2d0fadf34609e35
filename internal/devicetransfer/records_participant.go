package devicetransfer

import (
	"encoding/json"

	"github.com/devxfer/devxfer/internal/chat"
)

// Participant is the wire form of a conversation participant. The sender's
// status is not transferred; every restored participant starts over.
type Participant struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	CreatedAt      string `json:"created_at"`
}

func (*Participant) Type() MessageType { return MessageTypeParticipant }

// NewParticipant builds the outbound record, dropping status.
func NewParticipant(p chat.Participant) *Participant {
	return &Participant{
		ConversationID: p.ConversationID,
		UserID:         p.UserID,
		Role:           p.Role,
		CreatedAt:      p.CreatedAt,
	}
}

// ToStorage restores the participant with status START.
func (p *Participant) ToStorage() chat.Record {
	return chat.Participant{
		ConversationID: p.ConversationID,
		UserID:         p.UserID,
		Role:           p.Role,
		Status:         chat.ParticipantStatusStart,
		CreatedAt:      p.CreatedAt,
	}
}

func decodeParticipant(data json.RawMessage) (StorageRecord, error) {
	var p Participant
	if err := decodeFields(MessageTypeParticipant, data, &p,
		"conversation_id", "user_id", "role", "created_at"); err != nil {
		return nil, err
	}
	return &p, nil
}

func fromParticipant(rec chat.Record) (StorageRecord, error) {
	p, ok := rec.(chat.Participant)
	if !ok {
		return nil, wrongTable(MessageTypeParticipant, rec)
	}
	return NewParticipant(p), nil
}
