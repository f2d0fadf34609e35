package devicetransfer

import (
	"encoding/json"

	"github.com/devxfer/devxfer/internal/chat"
)

// StickerCreatedAt replaces the real creation time of every outbound sticker.
const StickerCreatedAt = "2017-10-25T00:00:00.000Z"

// Sticker is the wire form of a sticker. created_at is always the fixed
// StickerCreatedAt on the wire and is never restored; the store assigns the
// local creation time.
type Sticker struct {
	StickerID   string  `json:"sticker_id"`
	Name        string  `json:"name"`
	AssetURL    string  `json:"asset_url"`
	AssetType   string  `json:"asset_type"`
	AssetWidth  int     `json:"asset_width"`
	AssetHeight int     `json:"asset_height"`
	LastUseAt   *string `json:"last_used_at"`
	AlbumID     *string `json:"album_id"`
	CreatedAt   string  `json:"created_at"`
}

func (*Sticker) Type() MessageType { return MessageTypeSticker }

func NewSticker(s chat.Sticker) *Sticker {
	return &Sticker{
		StickerID:   s.StickerID,
		Name:        s.Name,
		AssetURL:    s.AssetURL,
		AssetType:   s.AssetType,
		AssetWidth:  s.AssetWidth,
		AssetHeight: s.AssetHeight,
		LastUseAt:   s.LastUseAt,
		AlbumID:     s.AlbumID,
		CreatedAt:   StickerCreatedAt,
	}
}

func (s *Sticker) ToStorage() chat.Record {
	return chat.Sticker{
		StickerID:   s.StickerID,
		Name:        s.Name,
		AssetURL:    s.AssetURL,
		AssetType:   s.AssetType,
		AssetWidth:  s.AssetWidth,
		AssetHeight: s.AssetHeight,
		LastUseAt:   s.LastUseAt,
		AlbumID:     s.AlbumID,
	}
}

func decodeSticker(data json.RawMessage) (StorageRecord, error) {
	var s Sticker
	if err := decodeFields(MessageTypeSticker, data, &s,
		"sticker_id", "name", "asset_url", "asset_type", "asset_width", "asset_height"); err != nil {
		return nil, err
	}
	return &s, nil
}

func fromSticker(rec chat.Record) (StorageRecord, error) {
	s, ok := rec.(chat.Sticker)
	if !ok {
		return nil, wrongTable(MessageTypeSticker, rec)
	}
	return NewSticker(s), nil
}
