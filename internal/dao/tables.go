package dao

import (
	"fmt"

	"github.com/devxfer/devxfer/internal/chat"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// tableSpec maps one chat table to its columns. keys are the primary key
// columns; preserve columns keep their stored value on conflict.
type tableSpec struct {
	columns  []string
	keys     []string
	preserve []string
	// defaults replaces the plain placeholder for a column.
	defaults map[string]string
	values   func(chat.Record) []any
	scan     func(rowScanner) (chat.Record, error)
}

const nowExpr = "strftime('%Y-%m-%dT%H:%M:%fZ', 'now')"

var tables = map[chat.Table]tableSpec{
	chat.TableConversations: {
		columns: []string{"conversation_id", "owner_id", "category", "name", "icon_url", "announcement",
			"code_url", "created_at", "pin_time", "last_message_id", "last_message_created_at", "draft",
			"unseen_message_count", "status", "mute_until", "expire_in"},
		keys: []string{"conversation_id"},
		values: func(r chat.Record) []any {
			c := r.(chat.Conversation)
			return []any{c.ConversationID, c.OwnerID, c.Category, c.Name, c.IconURL, c.Announcement,
				c.CodeURL, c.CreatedAt, c.PinTime, c.LastMessageID, c.LastMessageAt, c.Draft,
				c.UnseenMessageCount, c.Status, c.MuteUntil, c.ExpireIn}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var c chat.Conversation
			err := s.Scan(&c.ConversationID, &c.OwnerID, &c.Category, &c.Name, &c.IconURL, &c.Announcement,
				&c.CodeURL, &c.CreatedAt, &c.PinTime, &c.LastMessageID, &c.LastMessageAt, &c.Draft,
				&c.UnseenMessageCount, &c.Status, &c.MuteUntil, &c.ExpireIn)
			return c, err
		},
	},
	chat.TableParticipants: {
		columns: []string{"conversation_id", "user_id", "role", "status", "created_at"},
		keys:    []string{"conversation_id", "user_id"},
		values: func(r chat.Record) []any {
			p := r.(chat.Participant)
			return []any{p.ConversationID, p.UserID, p.Role, p.Status, p.CreatedAt}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var p chat.Participant
			err := s.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.Status, &p.CreatedAt)
			return p, err
		},
	},
	chat.TableUsers: {
		columns: []string{"user_id", "full_name", "biography", "identity_number", "relationship", "avatar_url",
			"phone", "is_verified", "is_scam", "app_id", "mute_until", "created_at"},
		keys: []string{"user_id"},
		values: func(r chat.Record) []any {
			u := r.(chat.User)
			return []any{u.UserID, u.FullName, u.Biography, u.IdentityNumber, u.Relationship, u.AvatarURL,
				u.Phone, u.IsVerified, u.IsScam, u.AppID, u.MuteUntil, u.CreatedAt}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var u chat.User
			err := s.Scan(&u.UserID, &u.FullName, &u.Biography, &u.IdentityNumber, &u.Relationship, &u.AvatarURL,
				&u.Phone, &u.IsVerified, &u.IsScam, &u.AppID, &u.MuteUntil, &u.CreatedAt)
			return u, err
		},
	},
	chat.TableAssets: {
		columns: []string{"asset_id", "symbol", "name", "icon_url", "balance", "destination", "tag",
			"price_btc", "price_usd", "change_usd", "chain_id", "confirmations", "asset_key", "reserve"},
		keys: []string{"asset_id"},
		values: func(r chat.Record) []any {
			a := r.(chat.Asset)
			return []any{a.AssetID, a.Symbol, a.Name, a.IconURL, a.Balance, a.Destination, a.Tag,
				a.PriceBTC, a.PriceUSD, a.ChangeUSD, a.ChainID, a.Confirmations, a.AssetKey, a.Reserve}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var a chat.Asset
			err := s.Scan(&a.AssetID, &a.Symbol, &a.Name, &a.IconURL, &a.Balance, &a.Destination, &a.Tag,
				&a.PriceBTC, &a.PriceUSD, &a.ChangeUSD, &a.ChainID, &a.Confirmations, &a.AssetKey, &a.Reserve)
			return a, err
		},
	},
	chat.TableSnapshots: {
		columns: []string{"snapshot_id", "type", "asset_id", "amount", "opponent_id", "transaction_hash",
			"sender", "receiver", "memo", "confirmations", "trace_id", "created_at"},
		keys: []string{"snapshot_id"},
		values: func(r chat.Record) []any {
			n := r.(chat.Snapshot)
			return []any{n.SnapshotID, n.Type, n.AssetID, n.Amount, n.OpponentID, n.TransactionHash,
				n.Sender, n.Receiver, n.Memo, n.Confirmations, n.TraceID, n.CreatedAt}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var n chat.Snapshot
			err := s.Scan(&n.SnapshotID, &n.Type, &n.AssetID, &n.Amount, &n.OpponentID, &n.TransactionHash,
				&n.Sender, &n.Receiver, &n.Memo, &n.Confirmations, &n.TraceID, &n.CreatedAt)
			return n, err
		},
	},
	chat.TableStickers: {
		columns: []string{"sticker_id", "name", "asset_url", "asset_type", "asset_width", "asset_height",
			"last_used_at", "album_id", "created_at"},
		keys:     []string{"sticker_id"},
		preserve: []string{"created_at"},
		defaults: map[string]string{"created_at": "COALESCE(NULLIF(?, ''), " + nowExpr + ")"},
		values: func(r chat.Record) []any {
			k := r.(chat.Sticker)
			return []any{k.StickerID, k.Name, k.AssetURL, k.AssetType, k.AssetWidth, k.AssetHeight,
				k.LastUseAt, k.AlbumID, k.CreatedAt}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var k chat.Sticker
			err := s.Scan(&k.StickerID, &k.Name, &k.AssetURL, &k.AssetType, &k.AssetWidth, &k.AssetHeight,
				&k.LastUseAt, &k.AlbumID, &k.CreatedAt)
			return k, err
		},
	},
	chat.TablePinMessages: {
		columns: []string{"message_id", "conversation_id", "created_at"},
		keys:    []string{"message_id"},
		values: func(r chat.Record) []any {
			p := r.(chat.PinMessage)
			return []any{p.MessageID, p.ConversationID, p.CreatedAt}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var p chat.PinMessage
			err := s.Scan(&p.MessageID, &p.ConversationID, &p.CreatedAt)
			return p, err
		},
	},
	chat.TableTranscriptMessages: {
		columns: []string{"transcript_id", "message_id", "user_id", "user_full_name", "category", "content",
			"media_url", "media_name", "media_size", "media_width", "media_height", "media_mime_type",
			"media_duration", "media_status", "media_key", "media_digest", "thumb_image", "sticker_id",
			"quote_id", "quote_content", "created_at"},
		keys: []string{"transcript_id", "message_id"},
		values: func(r chat.Record) []any {
			t := r.(chat.TranscriptMessage)
			return []any{t.TranscriptID, t.MessageID, t.UserID, t.UserFullName, t.Category, t.Content,
				t.MediaURL, t.MediaName, t.MediaSize, t.MediaWidth, t.MediaHeight, t.MediaMimeType,
				t.MediaDuration, t.MediaStatus, t.MediaKey, t.MediaDigest, t.ThumbImage, t.StickerID,
				t.QuoteID, t.QuoteContent, t.CreatedAt}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var t chat.TranscriptMessage
			err := s.Scan(&t.TranscriptID, &t.MessageID, &t.UserID, &t.UserFullName, &t.Category, &t.Content,
				&t.MediaURL, &t.MediaName, &t.MediaSize, &t.MediaWidth, &t.MediaHeight, &t.MediaMimeType,
				&t.MediaDuration, &t.MediaStatus, &t.MediaKey, &t.MediaDigest, &t.ThumbImage, &t.StickerID,
				&t.QuoteID, &t.QuoteContent, &t.CreatedAt)
			return t, err
		},
	},
	chat.TableMessages: {
		columns: []string{"message_id", "conversation_id", "user_id", "category", "content", "media_url",
			"media_mime_type", "media_size", "media_duration", "media_width", "media_height", "media_key",
			"media_digest", "media_status", "media_waveform", "thumb_image", "status", "action",
			"participant_id", "snapshot_id", "name", "sticker_id", "shared_user_id", "quote_message_id",
			"quote_content", "album_id", "created_at"},
		keys: []string{"message_id"},
		values: func(r chat.Record) []any {
			m := r.(chat.Message)
			return []any{m.MessageID, m.ConversationID, m.UserID, m.Category, m.Content, m.MediaURL,
				m.MediaMimeType, m.MediaSize, m.MediaDuration, m.MediaWidth, m.MediaHeight, m.MediaKey,
				m.MediaDigest, m.MediaStatus, m.MediaWaveform, m.ThumbImage, m.Status, m.Action,
				m.ParticipantID, m.SnapshotID, m.Name, m.StickerID, m.SharedUserID, m.QuoteMessageID,
				m.QuoteContent, m.AlbumID, m.CreatedAt}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var m chat.Message
			err := s.Scan(&m.MessageID, &m.ConversationID, &m.UserID, &m.Category, &m.Content, &m.MediaURL,
				&m.MediaMimeType, &m.MediaSize, &m.MediaDuration, &m.MediaWidth, &m.MediaHeight, &m.MediaKey,
				&m.MediaDigest, &m.MediaStatus, &m.MediaWaveform, &m.ThumbImage, &m.Status, &m.Action,
				&m.ParticipantID, &m.SnapshotID, &m.Name, &m.StickerID, &m.SharedUserID, &m.QuoteMessageID,
				&m.QuoteContent, &m.AlbumID, &m.CreatedAt)
			return m, err
		},
	},
	chat.TableExpiredMessages: {
		columns: []string{"message_id", "expire_in", "expire_at"},
		keys:    []string{"message_id"},
		values: func(r chat.Record) []any {
			e := r.(chat.ExpiredMessage)
			return []any{e.MessageID, e.ExpireIn, e.ExpireAt}
		},
		scan: func(s rowScanner) (chat.Record, error) {
			var e chat.ExpiredMessage
			err := s.Scan(&e.MessageID, &e.ExpireIn, &e.ExpireAt)
			return e, err
		},
	},
}

func specFor(table chat.Table) (tableSpec, error) {
	spec, ok := tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return spec, nil
}
