package devicetransfer

import (
	"encoding/json"

	"github.com/devxfer/devxfer/internal/chat"
)

// Conversation is the wire form of a conversation. Drafts and unread
// counters are local to a device and stay behind.
type Conversation struct {
	ConversationID string  `json:"conversation_id"`
	OwnerID        string  `json:"owner_id"`
	Category       string  `json:"category"`
	Name           string  `json:"name"`
	IconURL        string  `json:"icon_url"`
	Announcement   string  `json:"announcement"`
	CodeURL        string  `json:"code_url"`
	CreatedAt      string  `json:"created_at"`
	PinTime        *string `json:"pin_time"`
	LastMessageID  *string `json:"last_message_id"`
	LastMessageAt  *string `json:"last_message_created_at"`
	Status         int     `json:"status"`
	MuteUntil      *string `json:"mute_until"`
	ExpireIn       int64   `json:"expire_in"`
}

func (*Conversation) Type() MessageType { return MessageTypeConversation }

func NewConversation(c chat.Conversation) *Conversation {
	return &Conversation{
		ConversationID: c.ConversationID,
		OwnerID:        c.OwnerID,
		Category:       c.Category,
		Name:           c.Name,
		IconURL:        c.IconURL,
		Announcement:   c.Announcement,
		CodeURL:        c.CodeURL,
		CreatedAt:      c.CreatedAt,
		PinTime:        c.PinTime,
		LastMessageID:  c.LastMessageID,
		LastMessageAt:  c.LastMessageAt,
		Status:         c.Status,
		MuteUntil:      c.MuteUntil,
		ExpireIn:       c.ExpireIn,
	}
}

// ToStorage restores the conversation with an empty draft and no unseen
// messages.
func (c *Conversation) ToStorage() chat.Record {
	return chat.Conversation{
		ConversationID: c.ConversationID,
		OwnerID:        c.OwnerID,
		Category:       c.Category,
		Name:           c.Name,
		IconURL:        c.IconURL,
		Announcement:   c.Announcement,
		CodeURL:        c.CodeURL,
		CreatedAt:      c.CreatedAt,
		PinTime:        c.PinTime,
		LastMessageID:  c.LastMessageID,
		LastMessageAt:  c.LastMessageAt,
		Status:         c.Status,
		MuteUntil:      c.MuteUntil,
		ExpireIn:       c.ExpireIn,
	}
}

func decodeConversation(data json.RawMessage) (StorageRecord, error) {
	var c Conversation
	if err := decodeFields(MessageTypeConversation, data, &c, "conversation_id", "created_at"); err != nil {
		return nil, err
	}
	return &c, nil
}

func fromConversation(rec chat.Record) (StorageRecord, error) {
	c, ok := rec.(chat.Conversation)
	if !ok {
		return nil, wrongTable(MessageTypeConversation, rec)
	}
	return NewConversation(c), nil
}

// User is the wire form of a user; it is copied as is.
type User struct {
	UserID         string  `json:"user_id"`
	FullName       string  `json:"full_name"`
	Biography      string  `json:"biography"`
	IdentityNumber string  `json:"identity_number"`
	Relationship   string  `json:"relationship"`
	AvatarURL      string  `json:"avatar_url"`
	Phone          *string `json:"phone"`
	IsVerified     bool    `json:"is_verified"`
	IsScam         bool    `json:"is_scam"`
	AppID          *string `json:"app_id"`
	MuteUntil      *string `json:"mute_until"`
	CreatedAt      *string `json:"created_at"`
}

func (*User) Type() MessageType { return MessageTypeUser }

func NewUser(u chat.User) *User {
	return &User{
		UserID:         u.UserID,
		FullName:       u.FullName,
		Biography:      u.Biography,
		IdentityNumber: u.IdentityNumber,
		Relationship:   u.Relationship,
		AvatarURL:      u.AvatarURL,
		Phone:          u.Phone,
		IsVerified:     u.IsVerified,
		IsScam:         u.IsScam,
		AppID:          u.AppID,
		MuteUntil:      u.MuteUntil,
		CreatedAt:      u.CreatedAt,
	}
}

func (u *User) ToStorage() chat.Record {
	return chat.User{
		UserID:         u.UserID,
		FullName:       u.FullName,
		Biography:      u.Biography,
		IdentityNumber: u.IdentityNumber,
		Relationship:   u.Relationship,
		AvatarURL:      u.AvatarURL,
		Phone:          u.Phone,
		IsVerified:     u.IsVerified,
		IsScam:         u.IsScam,
		AppID:          u.AppID,
		MuteUntil:      u.MuteUntil,
		CreatedAt:      u.CreatedAt,
	}
}

func decodeUser(data json.RawMessage) (StorageRecord, error) {
	var u User
	if err := decodeFields(MessageTypeUser, data, &u, "user_id"); err != nil {
		return nil, err
	}
	return &u, nil
}

func fromUser(rec chat.Record) (StorageRecord, error) {
	u, ok := rec.(chat.User)
	if !ok {
		return nil, wrongTable(MessageTypeUser, rec)
	}
	return NewUser(u), nil
}
