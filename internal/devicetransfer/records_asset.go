package devicetransfer

import (
	"encoding/json"

	"github.com/devxfer/devxfer/internal/chat"
)

// Asset is the wire form of a wallet asset. Balances are not transferred;
// the receiving device refreshes them from the network.
type Asset struct {
	AssetID       string  `json:"asset_id"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	IconURL       string  `json:"icon_url"`
	Destination   string  `json:"destination"`
	Tag           *string `json:"tag"`
	PriceBTC      string  `json:"price_btc"`
	PriceUSD      string  `json:"price_usd"`
	ChangeUSD     string  `json:"change_usd"`
	ChainID       string  `json:"chain_id"`
	Confirmations int     `json:"confirmations"`
	AssetKey      *string `json:"asset_key"`
	Reserve       *string `json:"reserve"`
}

// RestoredAssetBalance is the balance of every restored asset.
const RestoredAssetBalance = "0"

func (*Asset) Type() MessageType { return MessageTypeAsset }

func NewAsset(a chat.Asset) *Asset {
	return &Asset{
		AssetID:       a.AssetID,
		Symbol:        a.Symbol,
		Name:          a.Name,
		IconURL:       a.IconURL,
		Destination:   a.Destination,
		Tag:           a.Tag,
		PriceBTC:      a.PriceBTC,
		PriceUSD:      a.PriceUSD,
		ChangeUSD:     a.ChangeUSD,
		ChainID:       a.ChainID,
		Confirmations: a.Confirmations,
		AssetKey:      a.AssetKey,
		Reserve:       a.Reserve,
	}
}

func (a *Asset) ToStorage() chat.Record {
	return chat.Asset{
		AssetID:       a.AssetID,
		Symbol:        a.Symbol,
		Name:          a.Name,
		IconURL:       a.IconURL,
		Balance:       RestoredAssetBalance,
		Destination:   a.Destination,
		Tag:           a.Tag,
		PriceBTC:      a.PriceBTC,
		PriceUSD:      a.PriceUSD,
		ChangeUSD:     a.ChangeUSD,
		ChainID:       a.ChainID,
		Confirmations: a.Confirmations,
		AssetKey:      a.AssetKey,
		Reserve:       a.Reserve,
	}
}

func decodeAsset(data json.RawMessage) (StorageRecord, error) {
	var a Asset
	if err := decodeFields(MessageTypeAsset, data, &a, "asset_id", "symbol", "name", "chain_id"); err != nil {
		return nil, err
	}
	return &a, nil
}

func fromAsset(rec chat.Record) (StorageRecord, error) {
	a, ok := rec.(chat.Asset)
	if !ok {
		return nil, wrongTable(MessageTypeAsset, rec)
	}
	return NewAsset(a), nil
}

// Snapshot is the wire form of a wallet snapshot; it is copied as is.
type Snapshot struct {
	SnapshotID      string  `json:"snapshot_id"`
	SnapshotType    string  `json:"type"`
	AssetID         string  `json:"asset_id"`
	Amount          string  `json:"amount"`
	OpponentID      *string `json:"opponent_id"`
	TransactionHash *string `json:"transaction_hash"`
	Sender          *string `json:"sender"`
	Receiver        *string `json:"receiver"`
	Memo            *string `json:"memo"`
	Confirmations   *int    `json:"confirmations"`
	TraceID         *string `json:"trace_id"`
	CreatedAt       string  `json:"created_at"`
}

func (*Snapshot) Type() MessageType { return MessageTypeSnapshot }

func NewSnapshot(s chat.Snapshot) *Snapshot {
	return &Snapshot{
		SnapshotID:      s.SnapshotID,
		SnapshotType:    s.Type,
		AssetID:         s.AssetID,
		Amount:          s.Amount,
		OpponentID:      s.OpponentID,
		TransactionHash: s.TransactionHash,
		Sender:          s.Sender,
		Receiver:        s.Receiver,
		Memo:            s.Memo,
		Confirmations:   s.Confirmations,
		TraceID:         s.TraceID,
		CreatedAt:       s.CreatedAt,
	}
}

func (s *Snapshot) ToStorage() chat.Record {
	return chat.Snapshot{
		SnapshotID:      s.SnapshotID,
		Type:            s.SnapshotType,
		AssetID:         s.AssetID,
		Amount:          s.Amount,
		OpponentID:      s.OpponentID,
		TransactionHash: s.TransactionHash,
		Sender:          s.Sender,
		Receiver:        s.Receiver,
		Memo:            s.Memo,
		Confirmations:   s.Confirmations,
		TraceID:         s.TraceID,
		CreatedAt:       s.CreatedAt,
	}
}

func decodeSnapshot(data json.RawMessage) (StorageRecord, error) {
	var s Snapshot
	if err := decodeFields(MessageTypeSnapshot, data, &s,
		"snapshot_id", "type", "asset_id", "amount", "created_at"); err != nil {
		return nil, err
	}
	return &s, nil
}

func fromSnapshot(rec chat.Record) (StorageRecord, error) {
	s, ok := rec.(chat.Snapshot)
	if !ok {
		return nil, wrongTable(MessageTypeSnapshot, rec)
	}
	return NewSnapshot(s), nil
}
