package devicetransfer

import (
	"encoding/json"

	"github.com/devxfer/devxfer/internal/chat"
)

// restoredMediaStatus cancels downloads that were still pending on the
// sending device; attachment bytes are not part of a transfer.
func restoredMediaStatus(status *string) *string {
	if status == nil || *status != chat.MediaStatusPending {
		return status
	}
	canceled := chat.MediaStatusCanceled
	return &canceled
}

// Message is the wire form of a chat message.
type Message struct {
	MessageID      string  `json:"message_id"`
	ConversationID string  `json:"conversation_id"`
	UserID         string  `json:"user_id"`
	Category       string  `json:"category"`
	Content        *string `json:"content"`
	MediaURL       *string `json:"media_url"`
	MediaMimeType  *string `json:"media_mime_type"`
	MediaSize      *int64  `json:"media_size"`
	MediaDuration  *int64  `json:"media_duration"`
	MediaWidth     *int    `json:"media_width"`
	MediaHeight    *int    `json:"media_height"`
	MediaKey       []byte  `json:"media_key"`
	MediaDigest    []byte  `json:"media_digest"`
	MediaStatus    *string `json:"media_status"`
	MediaWaveform  []byte  `json:"media_waveform"`
	ThumbImage     *string `json:"thumb_image"`
	Status         string  `json:"status"`
	Action         *string `json:"action"`
	ParticipantID  *string `json:"participant_id"`
	SnapshotID     *string `json:"snapshot_id"`
	Name           *string `json:"name"`
	StickerID      *string `json:"sticker_id"`
	SharedUserID   *string `json:"shared_user_id"`
	QuoteMessageID *string `json:"quote_message_id"`
	QuoteContent   *string `json:"quote_content"`
	AlbumID        *string `json:"album_id"`
	CreatedAt      string  `json:"created_at"`
}

func (*Message) Type() MessageType { return MessageTypeMessage }

func NewMessage(m chat.Message) *Message {
	return &Message{
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Category:       m.Category,
		Content:        m.Content,
		MediaURL:       m.MediaURL,
		MediaMimeType:  m.MediaMimeType,
		MediaSize:      m.MediaSize,
		MediaDuration:  m.MediaDuration,
		MediaWidth:     m.MediaWidth,
		MediaHeight:    m.MediaHeight,
		MediaKey:       m.MediaKey,
		MediaDigest:    m.MediaDigest,
		MediaStatus:    m.MediaStatus,
		MediaWaveform:  m.MediaWaveform,
		ThumbImage:     m.ThumbImage,
		Status:         m.Status,
		Action:         m.Action,
		ParticipantID:  m.ParticipantID,
		SnapshotID:     m.SnapshotID,
		Name:           m.Name,
		StickerID:      m.StickerID,
		SharedUserID:   m.SharedUserID,
		QuoteMessageID: m.QuoteMessageID,
		QuoteContent:   m.QuoteContent,
		AlbumID:        m.AlbumID,
		CreatedAt:      m.CreatedAt,
	}
}

func (m *Message) ToStorage() chat.Record {
	return chat.Message{
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Category:       m.Category,
		Content:        m.Content,
		MediaURL:       m.MediaURL,
		MediaMimeType:  m.MediaMimeType,
		MediaSize:      m.MediaSize,
		MediaDuration:  m.MediaDuration,
		MediaWidth:     m.MediaWidth,
		MediaHeight:    m.MediaHeight,
		MediaKey:       m.MediaKey,
		MediaDigest:    m.MediaDigest,
		MediaStatus:    restoredMediaStatus(m.MediaStatus),
		MediaWaveform:  m.MediaWaveform,
		ThumbImage:     m.ThumbImage,
		Status:         m.Status,
		Action:         m.Action,
		ParticipantID:  m.ParticipantID,
		SnapshotID:     m.SnapshotID,
		Name:           m.Name,
		StickerID:      m.StickerID,
		SharedUserID:   m.SharedUserID,
		QuoteMessageID: m.QuoteMessageID,
		QuoteContent:   m.QuoteContent,
		AlbumID:        m.AlbumID,
		CreatedAt:      m.CreatedAt,
	}
}

func decodeMessage(data json.RawMessage) (StorageRecord, error) {
	var m Message
	if err := decodeFields(MessageTypeMessage, data, &m,
		"message_id", "conversation_id", "user_id", "category", "status", "created_at"); err != nil {
		return nil, err
	}
	return &m, nil
}

func fromMessage(rec chat.Record) (StorageRecord, error) {
	m, ok := rec.(chat.Message)
	if !ok {
		return nil, wrongTable(MessageTypeMessage, rec)
	}
	return NewMessage(m), nil
}

// TranscriptMessage is one message quoted inside a transcript.
type TranscriptMessage struct {
	TranscriptID  string  `json:"transcript_id"`
	MessageID     string  `json:"message_id"`
	UserID        *string `json:"user_id"`
	UserFullName  *string `json:"user_full_name"`
	Category      string  `json:"category"`
	Content       *string `json:"content"`
	MediaURL      *string `json:"media_url"`
	MediaName     *string `json:"media_name"`
	MediaSize     *int64  `json:"media_size"`
	MediaWidth    *int    `json:"media_width"`
	MediaHeight   *int    `json:"media_height"`
	MediaMimeType *string `json:"media_mime_type"`
	MediaDuration *int64  `json:"media_duration"`
	MediaStatus   *string `json:"media_status"`
	MediaKey      []byte  `json:"media_key"`
	MediaDigest   []byte  `json:"media_digest"`
	ThumbImage    *string `json:"thumb_image"`
	StickerID     *string `json:"sticker_id"`
	QuoteID       *string `json:"quote_id"`
	QuoteContent  *string `json:"quote_content"`
	CreatedAt     string  `json:"created_at"`
}

func (*TranscriptMessage) Type() MessageType { return MessageTypeTranscriptMessage }

func NewTranscriptMessage(t chat.TranscriptMessage) *TranscriptMessage {
	return &TranscriptMessage{
		TranscriptID:  t.TranscriptID,
		MessageID:     t.MessageID,
		UserID:        t.UserID,
		UserFullName:  t.UserFullName,
		Category:      t.Category,
		Content:       t.Content,
		MediaURL:      t.MediaURL,
		MediaName:     t.MediaName,
		MediaSize:     t.MediaSize,
		MediaWidth:    t.MediaWidth,
		MediaHeight:   t.MediaHeight,
		MediaMimeType: t.MediaMimeType,
		MediaDuration: t.MediaDuration,
		MediaStatus:   t.MediaStatus,
		MediaKey:      t.MediaKey,
		MediaDigest:   t.MediaDigest,
		ThumbImage:    t.ThumbImage,
		StickerID:     t.StickerID,
		QuoteID:       t.QuoteID,
		QuoteContent:  t.QuoteContent,
		CreatedAt:     t.CreatedAt,
	}
}

func (t *TranscriptMessage) ToStorage() chat.Record {
	return chat.TranscriptMessage{
		TranscriptID:  t.TranscriptID,
		MessageID:     t.MessageID,
		UserID:        t.UserID,
		UserFullName:  t.UserFullName,
		Category:      t.Category,
		Content:       t.Content,
		MediaURL:      t.MediaURL,
		MediaName:     t.MediaName,
		MediaSize:     t.MediaSize,
		MediaWidth:    t.MediaWidth,
		MediaHeight:   t.MediaHeight,
		MediaMimeType: t.MediaMimeType,
		MediaDuration: t.MediaDuration,
		MediaStatus:   restoredMediaStatus(t.MediaStatus),
		MediaKey:      t.MediaKey,
		MediaDigest:   t.MediaDigest,
		ThumbImage:    t.ThumbImage,
		StickerID:     t.StickerID,
		QuoteID:       t.QuoteID,
		QuoteContent:  t.QuoteContent,
		CreatedAt:     t.CreatedAt,
	}
}

func decodeTranscriptMessage(data json.RawMessage) (StorageRecord, error) {
	var t TranscriptMessage
	if err := decodeFields(MessageTypeTranscriptMessage, data, &t,
		"transcript_id", "message_id", "category", "created_at"); err != nil {
		return nil, err
	}
	return &t, nil
}

func fromTranscriptMessage(rec chat.Record) (StorageRecord, error) {
	t, ok := rec.(chat.TranscriptMessage)
	if !ok {
		return nil, wrongTable(MessageTypeTranscriptMessage, rec)
	}
	return NewTranscriptMessage(t), nil
}

type PinMessage struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	CreatedAt      string `json:"created_at"`
}

func (*PinMessage) Type() MessageType { return MessageTypePinMessage }

func NewPinMessage(p chat.PinMessage) *PinMessage {
	return &PinMessage{MessageID: p.MessageID, ConversationID: p.ConversationID, CreatedAt: p.CreatedAt}
}

func (p *PinMessage) ToStorage() chat.Record {
	return chat.PinMessage{MessageID: p.MessageID, ConversationID: p.ConversationID, CreatedAt: p.CreatedAt}
}

func decodePinMessage(data json.RawMessage) (StorageRecord, error) {
	var p PinMessage
	if err := decodeFields(MessageTypePinMessage, data, &p, "message_id", "conversation_id", "created_at"); err != nil {
		return nil, err
	}
	return &p, nil
}

func fromPinMessage(rec chat.Record) (StorageRecord, error) {
	p, ok := rec.(chat.PinMessage)
	if !ok {
		return nil, wrongTable(MessageTypePinMessage, rec)
	}
	return NewPinMessage(p), nil
}

// ExpiredMessage carries a disappearing-message timer. expire_at is kept so
// the countdown continues on the new device.
type ExpiredMessage struct {
	MessageID string `json:"message_id"`
	ExpireIn  int64  `json:"expire_in"`
	ExpireAt  *int64 `json:"expire_at"`
}

func (*ExpiredMessage) Type() MessageType { return MessageTypeExpiredMessage }

func NewExpiredMessage(e chat.ExpiredMessage) *ExpiredMessage {
	return &ExpiredMessage{MessageID: e.MessageID, ExpireIn: e.ExpireIn, ExpireAt: e.ExpireAt}
}

func (e *ExpiredMessage) ToStorage() chat.Record {
	return chat.ExpiredMessage{MessageID: e.MessageID, ExpireIn: e.ExpireIn, ExpireAt: e.ExpireAt}
}

func decodeExpiredMessage(data json.RawMessage) (StorageRecord, error) {
	var e ExpiredMessage
	if err := decodeFields(MessageTypeExpiredMessage, data, &e, "message_id", "expire_in"); err != nil {
		return nil, err
	}
	return &e, nil
}

func fromExpiredMessage(rec chat.Record) (StorageRecord, error) {
	e, ok := rec.(chat.ExpiredMessage)
	if !ok {
		return nil, wrongTable(MessageTypeExpiredMessage, rec)
	}
	return NewExpiredMessage(e), nil
}
