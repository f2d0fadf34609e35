package devicetransfer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devxfer/devxfer/internal/chat"
)

func strPtr(s string) *string { return &s }

// roundTrip sends rec through the outbound adapter, the wire and the
// inbound decoder.
func roundTrip(t *testing.T, rec chat.Record) chat.Record {
	t.Helper()
	out, err := FromStorage(rec)
	require.NoError(t, err)
	body, err := Encode(out)
	require.NoError(t, err)
	in, err := DecodeRecord(body)
	require.NoError(t, err)
	sr, ok := in.(StorageRecord)
	require.True(t, ok, "decoded %T", in)
	return sr.ToStorage()
}

func TestParticipantStatusResets(t *testing.T) {
	got := roundTrip(t, chat.Participant{
		ConversationID: "c1", UserID: "u1", Role: "ADMIN",
		Status: chat.ParticipantStatusSuccess, CreatedAt: "2023-01-01T00:00:00.000Z",
	})
	assert.Equal(t, chat.Participant{
		ConversationID: "c1", UserID: "u1", Role: "ADMIN",
		Status: chat.ParticipantStatusStart, CreatedAt: "2023-01-01T00:00:00.000Z",
	}, got)

	body, err := Encode(NewParticipant(chat.Participant{ConversationID: "c1", UserID: "u1", Status: "SUCCESS"}))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "status")
}

func TestStickerCreatedAtNotTransferred(t *testing.T) {
	src := chat.Sticker{
		StickerID: "s1", Name: "wave", AssetURL: "https://example.com/s1.webp", AssetType: "webp",
		AssetWidth: 128, AssetHeight: 96, AlbumID: strPtr("a1"), CreatedAt: "2022-06-01T10:00:00.000Z",
	}
	out := NewSticker(src)
	assert.Equal(t, StickerCreatedAt, out.CreatedAt)

	got := roundTrip(t, src).(chat.Sticker)
	assert.Empty(t, got.CreatedAt)
	assert.Equal(t, "s1", got.StickerID)
	assert.Equal(t, 96, got.AssetHeight)
	assert.Equal(t, "a1", *got.AlbumID)
}

func TestAssetBalanceNotTransferred(t *testing.T) {
	src := chat.Asset{AssetID: "a1", Symbol: "BTC", Name: "Bitcoin", Balance: "12.5", ChainID: "c", PriceUSD: "1"}
	body, err := Encode(NewAsset(src))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "12.5")

	got := roundTrip(t, src).(chat.Asset)
	assert.Equal(t, RestoredAssetBalance, got.Balance)
	assert.Equal(t, "1", got.PriceUSD)
}

func TestConversationLocalStateDropped(t *testing.T) {
	src := chat.Conversation{
		ConversationID: "c1", Category: "GROUP", Name: "team", CreatedAt: "2023-01-01T00:00:00.000Z",
		Draft: "half typed", UnseenMessageCount: 7, PinTime: strPtr("2023-02-01T00:00:00.000Z"), ExpireIn: 60,
	}
	got := roundTrip(t, src).(chat.Conversation)
	assert.Empty(t, got.Draft)
	assert.Zero(t, got.UnseenMessageCount)
	assert.Equal(t, "team", got.Name)
	assert.Equal(t, int64(60), got.ExpireIn)
	assert.Equal(t, *src.PinTime, *got.PinTime)
}

func TestPendingMediaCanceled(t *testing.T) {
	msg := chat.Message{
		MessageID: "m1", ConversationID: "c1", UserID: "u1", Category: "PLAIN_IMAGE", Status: "DELIVERED",
		MediaStatus: strPtr(chat.MediaStatusPending), MediaKey: []byte{1, 2, 3}, CreatedAt: "2023-01-01T00:00:00.000Z",
	}
	got := roundTrip(t, msg).(chat.Message)
	assert.Equal(t, chat.MediaStatusCanceled, *got.MediaStatus)
	assert.Equal(t, []byte{1, 2, 3}, got.MediaKey)

	msg.MediaStatus = strPtr(chat.MediaStatusDone)
	got = roundTrip(t, msg).(chat.Message)
	assert.Equal(t, chat.MediaStatusDone, *got.MediaStatus)

	tm := chat.TranscriptMessage{
		TranscriptID: "t1", MessageID: "m1", Category: "PLAIN_DATA",
		MediaStatus: strPtr(chat.MediaStatusPending), CreatedAt: "2023-01-01T00:00:00.000Z",
	}
	gotTM := roundTrip(t, tm).(chat.TranscriptMessage)
	assert.Equal(t, chat.MediaStatusCanceled, *gotTM.MediaStatus)
}

func TestCopiedAsIs(t *testing.T) {
	expireAt := int64(1700000000)
	for _, rec := range []chat.Record{
		chat.PinMessage{MessageID: "m1", ConversationID: "c1", CreatedAt: "2023-01-01T00:00:00.000Z"},
		chat.ExpiredMessage{MessageID: "m1", ExpireIn: 30, ExpireAt: &expireAt},
		chat.Snapshot{SnapshotID: "s1", Type: "transfer", AssetID: "a1", Amount: "-1", Memo: strPtr("hi"), CreatedAt: "x"},
		chat.User{UserID: "u1", FullName: "Ada", IsVerified: true, Phone: strPtr("+1")},
	} {
		t.Run(string(rec.Table()), func(t *testing.T) {
			assert.Equal(t, rec, roundTrip(t, rec))
		})
	}
}

func TestDecodeMalformedFields(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing field", `{"type":"participant","data":{"conversation_id":"c","role":"","created_at":"x"}}`, "user_id"},
		{"null field", `{"type":"participant","data":{"conversation_id":"c","user_id":null,"role":"","created_at":"x"}}`, "user_id"},
		{"wrong type", `{"type":"expired_message","data":{"message_id":"m","expire_in":"soon"}}`, "expire_in"},
		{"missing tag", `{"data":{}}`, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord([]byte(tt.body))
			var mre *MalformedRecordError
			require.ErrorAs(t, err, &mre)
			assert.Equal(t, tt.field, mre.Field)
		})
	}

	_, err := DecodeRecord([]byte(`not json`))
	var mre *MalformedRecordError
	require.ErrorAs(t, err, &mre)
}

func TestUnknownTagPassesThrough(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"type":"nonexistent_v2","data":{"a":1}}`))
	require.NoError(t, err)
	u, ok := rec.(*UnknownRecord)
	require.True(t, ok)
	assert.Equal(t, "nonexistent_v2", u.Tag)
	assert.JSONEq(t, `{"a":1}`, string(u.Body))

	// Re-encoding keeps the original tag.
	body, err := Encode(u)
	require.NoError(t, err)
	env, err := DecodeEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeUnknown, env.Type)
	assert.Equal(t, "nonexistent_v2", env.RawType)
}

func TestParseMessageType(t *testing.T) {
	for _, mt := range MessageTypes {
		assert.Equal(t, mt, ParseMessageType(string(mt)))
	}
	assert.Equal(t, MessageTypeUnknown, ParseMessageType("Participant"))
	assert.Equal(t, MessageTypeUnknown, ParseMessageType(""))
}

func TestEveryTableHasWireType(t *testing.T) {
	for _, table := range chat.Tables {
		mt, ok := TypeForTable(table)
		require.True(t, ok, "table %s", table)
		assert.Equal(t, table, registry[mt].table)
	}
	assert.True(t, skipsExisting(MessageTypeMessage))
	assert.True(t, skipsExisting(MessageTypeSnapshot))
	assert.True(t, skipsExisting(MessageTypePinMessage))
	assert.False(t, skipsExisting(MessageTypeParticipant))
}

func TestCommandDecoding(t *testing.T) {
	body, err := Encode(startCommand(UnknownTotal))
	require.NoError(t, err)
	rec, err := DecodeRecord(body)
	require.NoError(t, err)
	assert.Equal(t, &Command{Action: ActionStart, Total: UnknownTotal}, rec)

	_, err = DecodeRecord([]byte(`{"type":"command","data":{"action":"dance"}}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = DecodeRecord([]byte(`{"type":"command","data":{"action":"start","total":-2}}`))
	var mre *MalformedRecordError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, "total", mre.Field)

	var env struct {
		Data map[string]any `json:"data"`
	}
	body, err = Encode(closeCommand(CloseUserCancelled))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, map[string]any{"action": "close", "reason": "user_cancelled"}, env.Data)
}
