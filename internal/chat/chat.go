// Package chat holds the local storage entities of the chat database.
//
// Field names follow the local schema; the device transfer wire format lives
// in package devicetransfer and does not share these types.
package chat

import "context"

// Table names a storage table.
type Table string

const (
	TableConversations      Table = "conversations"
	TableParticipants       Table = "participants"
	TableUsers              Table = "users"
	TableAssets             Table = "assets"
	TableSnapshots          Table = "snapshots"
	TableStickers           Table = "stickers"
	TablePinMessages        Table = "pin_messages"
	TableTranscriptMessages Table = "transcript_messages"
	TableMessages           Table = "messages"
	TableExpiredMessages    Table = "expired_messages"
)

// Tables lists every table in dependency order: rows referenced by later
// tables come first.
var Tables = []Table{
	TableConversations,
	TableParticipants,
	TableUsers,
	TableAssets,
	TableSnapshots,
	TableStickers,
	TablePinMessages,
	TableTranscriptMessages,
	TableMessages,
	TableExpiredMessages,
}

// Record is a row of one of the chat tables.
type Record interface {
	// Table returns the table the record belongs to.
	Table() Table
	// Key returns the primary key values in column order.
	Key() []any
}

// Reader counts and walks stored rows.
type Reader interface {
	Count(ctx context.Context, table Table) (int, error)
	Walk(ctx context.Context, table Table, fn func(Record) error) error
}

// Participant status values.
const (
	ParticipantStatusStart   = "START"
	ParticipantStatusSuccess = "SUCCESS"
)

// Media status values shared by messages and transcript messages.
const (
	MediaStatusPending  = "PENDING"
	MediaStatusDone     = "DONE"
	MediaStatusCanceled = "CANCELED"
	MediaStatusExpired  = "EXPIRED"
)

type Conversation struct {
	ConversationID     string
	OwnerID            string
	Category           string
	Name               string
	IconURL            string
	Announcement       string
	CodeURL            string
	CreatedAt          string
	PinTime            *string
	LastMessageID      *string
	LastMessageAt      *string
	Draft              string
	UnseenMessageCount int
	Status             int
	MuteUntil          *string
	ExpireIn           int64
}

func (c Conversation) Table() Table { return TableConversations }
func (c Conversation) Key() []any { return []any{c.ConversationID} }

type Participant struct {
	ConversationID string
	UserID         string
	Role           string
	Status         string
	CreatedAt      string
}

func (p Participant) Table() Table { return TableParticipants }
func (p Participant) Key() []any { return []any{p.ConversationID, p.UserID} }

type User struct {
	UserID         string
	FullName       string
	Biography      string
	IdentityNumber string
	Relationship   string
	AvatarURL      string
	Phone          *string
	IsVerified     bool
	IsScam         bool
	AppID          *string
	MuteUntil      *string
	CreatedAt      *string
}

func (u User) Table() Table { return TableUsers }
func (u User) Key() []any { return []any{u.UserID} }

type Asset struct {
	AssetID       string
	Symbol        string
	Name          string
	IconURL       string
	Balance       string
	Destination   string
	Tag           *string
	PriceBTC      string
	PriceUSD      string
	ChangeUSD     string
	ChainID       string
	Confirmations int
	AssetKey      *string
	Reserve       *string
}

func (a Asset) Table() Table { return TableAssets }
func (a Asset) Key() []any { return []any{a.AssetID} }

type Snapshot struct {
	SnapshotID      string
	Type            string
	AssetID         string
	Amount          string
	OpponentID      *string
	TransactionHash *string
	Sender          *string
	Receiver        *string
	Memo            *string
	Confirmations   *int
	TraceID         *string
	CreatedAt       string
}

func (s Snapshot) Table() Table { return TableSnapshots }
func (s Snapshot) Key() []any { return []any{s.SnapshotID} }

type Sticker struct {
	StickerID   string
	Name        string
	AssetURL    string
	AssetType   string
	AssetWidth  int
	AssetHeight int
	LastUseAt   *string
	AlbumID     *string
	// CreatedAt is assigned by the store on insert when empty.
	CreatedAt   string
}

func (s Sticker) Table() Table { return TableStickers }
func (s Sticker) Key() []any { return []any{s.StickerID} }

type PinMessage struct {
	MessageID      string
	ConversationID string
	CreatedAt      string
}

func (p PinMessage) Table() Table { return TablePinMessages }
func (p PinMessage) Key() []any { return []any{p.MessageID} }

type TranscriptMessage struct {
	TranscriptID  string
	MessageID     string
	UserID        *string
	UserFullName  *string
	Category      string
	Content       *string
	MediaURL      *string
	MediaName     *string
	MediaSize     *int64
	MediaWidth    *int
	MediaHeight   *int
	MediaMimeType *string
	MediaDuration *int64
	MediaStatus   *string
	MediaKey      []byte
	MediaDigest   []byte
	ThumbImage    *string
	StickerID     *string
	QuoteID       *string
	QuoteContent  *string
	CreatedAt     string
}

func (t TranscriptMessage) Table() Table { return TableTranscriptMessages }
func (t TranscriptMessage) Key() []any { return []any{t.TranscriptID, t.MessageID} }

type Message struct {
	MessageID      string
	ConversationID string
	UserID         string
	Category       string
	Content        *string
	MediaURL       *string
	MediaMimeType  *string
	MediaSize      *int64
	MediaDuration  *int64
	MediaWidth     *int
	MediaHeight    *int
	MediaKey       []byte
	MediaDigest    []byte
	MediaStatus    *string
	MediaWaveform  []byte
	ThumbImage     *string
	Status         string
	Action         *string
	ParticipantID  *string
	SnapshotID     *string
	Name           *string
	StickerID      *string
	SharedUserID   *string
	QuoteMessageID *string
	QuoteContent   *string
	AlbumID        *string
	CreatedAt      string
}

func (m Message) Table() Table { return TableMessages }
func (m Message) Key() []any { return []any{m.MessageID} }

type ExpiredMessage struct {
	MessageID string
	ExpireIn  int64
	ExpireAt  *int64
}

func (e ExpiredMessage) Table() Table { return TableExpiredMessages }
func (e ExpiredMessage) Key() []any { return []any{e.MessageID} }
