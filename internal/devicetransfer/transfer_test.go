package devicetransfer

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devxfer/devxfer/internal/chat"
	"github.com/devxfer/devxfer/internal/dao"
	"github.com/devxfer/devxfer/internal/migrations"
	"github.com/devxfer/devxfer/internal/sqlite"
)

func openChat(t *testing.T, name string) *dao.ChatDAO {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.BootstrapChat(db))
	return dao.NewChatDAO(db)
}

// seedChat fills one row per table plus a few extra participants and
// messages, and returns the row count.
func seedChat(t *testing.T, d *dao.ChatDAO) int {
	t.Helper()
	ctx := context.Background()
	pending := chat.MediaStatusPending
	expireAt := int64(1700000000)
	rows := []chat.Record{
		chat.Conversation{ConversationID: "c1", Category: "GROUP", Name: "team", CreatedAt: "2023-01-01T00:00:00.000Z",
			Draft: "unsent", UnseenMessageCount: 4},
		chat.User{UserID: "u1", FullName: "Ada", IdentityNumber: "7000"},
		chat.Asset{AssetID: "a1", Symbol: "BTC", Name: "Bitcoin", Balance: "12.5", ChainID: "a1"},
		chat.Snapshot{SnapshotID: "s1", Type: "transfer", AssetID: "a1", Amount: "1", CreatedAt: "2023-01-02T00:00:00.000Z"},
		chat.Sticker{StickerID: "st1", Name: "wave", AssetURL: "https://example.com/st1.webp", AssetType: "webp",
			AssetWidth: 64, AssetHeight: 64, CreatedAt: "2020-01-01T00:00:00.000Z"},
		chat.PinMessage{MessageID: "m1", ConversationID: "c1", CreatedAt: "2023-01-03T00:00:00.000Z"},
		chat.TranscriptMessage{TranscriptID: "m9", MessageID: "m1", Category: "PLAIN_TEXT", CreatedAt: "2023-01-03T00:00:00.000Z"},
		chat.ExpiredMessage{MessageID: "m2", ExpireIn: 60, ExpireAt: &expireAt},
	}
	for i := 1; i <= 5; i++ {
		rows = append(rows, chat.Participant{ConversationID: "c1", UserID: "u" + string(rune('0'+i)),
			Status: chat.ParticipantStatusSuccess, CreatedAt: "2023-01-01T00:00:00.000Z"})
	}
	for i := 1; i <= 20; i++ {
		m := chat.Message{MessageID: "m" + strings.Repeat("x", i), ConversationID: "c1", UserID: "u1",
			Category: "PLAIN_TEXT", Status: "READ", CreatedAt: "2023-01-04T00:00:00.000Z"}
		if i == 1 {
			m.MessageID = "m1"
			m.Category = "PLAIN_IMAGE"
			m.MediaStatus = &pending
			m.MediaKey = []byte{0xde, 0xad}
		}
		rows = append(rows, m)
	}
	for _, r := range rows {
		require.NoError(t, d.InsertOrReplace(ctx, r))
	}
	return len(rows)
}

func runPair(t *testing.T, send, recv func(context.Context) error) (sendErr, recvErr error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sendc := make(chan error, 1)
	recvc := make(chan error, 1)
	go func() { sendc <- send(ctx) }()
	go func() { recvc <- recv(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case sendErr = <-sendc:
		case recvErr = <-recvc:
		case <-time.After(30 * time.Second):
			t.Fatal("transfer did not end")
		}
	}
	return sendErr, recvErr
}

func assertRestored(t *testing.T, src, dst *dao.ChatDAO) {
	t.Helper()
	ctx := context.Background()
	for _, table := range chat.Tables {
		want, err := src.Count(ctx, table)
		require.NoError(t, err)
		got, err := dst.Count(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, want, got, "table %s", table)
	}

	rec, err := dst.Get(ctx, chat.TableParticipants, "c1", "u3")
	require.NoError(t, err)
	assert.Equal(t, chat.ParticipantStatusStart, rec.(chat.Participant).Status)

	rec, err = dst.Get(ctx, chat.TableAssets, "a1")
	require.NoError(t, err)
	assert.Equal(t, RestoredAssetBalance, rec.(chat.Asset).Balance)

	rec, err = dst.Get(ctx, chat.TableConversations, "c1")
	require.NoError(t, err)
	assert.Empty(t, rec.(chat.Conversation).Draft)
	assert.Zero(t, rec.(chat.Conversation).UnseenMessageCount)

	rec, err = dst.Get(ctx, chat.TableStickers, "st1")
	require.NoError(t, err)
	createdAt := rec.(chat.Sticker).CreatedAt
	assert.NotEmpty(t, createdAt)
	assert.NotEqual(t, "2020-01-01T00:00:00.000Z", createdAt)
	assert.NotEqual(t, StickerCreatedAt, createdAt)

	rec, err = dst.Get(ctx, chat.TableMessages, "m1")
	require.NoError(t, err)
	msg := rec.(chat.Message)
	assert.Equal(t, chat.MediaStatusCanceled, *msg.MediaStatus)
	assert.Equal(t, []byte{0xde, 0xad}, msg.MediaKey)
}

func TestTransferOverPipe(t *testing.T) {
	src, dst := openChat(t, "src.db"), openChat(t, "dst.db")
	total := seedChat(t, src)
	journal := newTestJournal(t)

	cfg := testConfig()
	cfg.Code = "482913"
	sender := NewSender(cfg, src, journal)
	receiver := NewReceiver(cfg, dst, journal)
	rec := record(receiver.Bridge())

	a, b := newPipe(8)
	sendErr, recvErr := runPair(t,
		func(ctx context.Context) error { return sender.Run(ctx, a, RoleResponder) },
		func(ctx context.Context) error { return receiver.Run(ctx, b, RoleInitiator) },
	)
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)

	assert.Equal(t, StateFinished, sender.State().Kind())
	assert.Equal(t, StateFinished, receiver.State().Kind())
	assert.Equal(t, total, sender.Stats().Sent)
	assert.Equal(t, total, receiver.Stats().Committed)
	assert.Equal(t, 1, rec.count(StateFinished))
	last, ok := rec.lastTransporting()
	require.True(t, ok)
	assert.Equal(t, total, last.Processed())
	assertRestored(t, src, dst)

	sessions, err := journal.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, "finished", s.State)
	}
	counts, err := journal.OutcomeCounts(receiver.ID())
	require.NoError(t, err)
	assert.Equal(t, total, counts[OutcomeApplied])
}

func TestTransferTwiceKeepsMessages(t *testing.T) {
	src, dst := openChat(t, "src.db"), openChat(t, "dst.db")
	total := seedChat(t, src)

	for round := 0; round < 2; round++ {
		sender := NewSender(testConfig(), src, nil)
		receiver := NewReceiver(testConfig(), dst, nil)
		a, b := newPipe(8)
		sendErr, recvErr := runPair(t,
			func(ctx context.Context) error { return sender.Run(ctx, a, RoleResponder) },
			func(ctx context.Context) error { return receiver.Run(ctx, b, RoleInitiator) },
		)
		require.NoError(t, sendErr)
		require.NoError(t, recvErr)

		stats := receiver.Stats()
		if round == 0 {
			assert.Equal(t, total, stats.Committed)
			continue
		}
		// 20 messages, 1 snapshot and 1 pin are kept as they are.
		assert.Equal(t, 22, stats.Skipped)
		assert.Equal(t, total-22, stats.Committed)
	}
	assertRestored(t, src, dst)
}

func TestTransferOverSealedTCP(t *testing.T) {
	src, dst := openChat(t, "src.db"), openChat(t, "dst.db")
	seedChat(t, src)

	cfg := testConfig()
	secret := []byte("an ephemeral secret shared via QR")
	ln, err := ListenTCP("127.0.0.1:0", cfg.Transport)
	require.NoError(t, err)
	defer ln.Close()

	sender := NewSender(cfg, src, nil)
	receiver := NewReceiver(cfg, dst, nil)
	sendErr, recvErr := runPair(t,
		func(ctx context.Context) error { return sender.ListenAndRun(ctx, SealListener(ln, secret)) },
		func(ctx context.Context) error {
			return receiver.DialAndRun(ctx, SealDialer(DialTCP(ln.Addr(), cfg.Transport), secret))
		},
	)
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)
	assertRestored(t, src, dst)
}

func TestTransferWrongSecret(t *testing.T) {
	src, dst := openChat(t, "src.db"), openChat(t, "dst.db")
	seedChat(t, src)

	cfg := testConfig()
	ln, err := ListenTCP("127.0.0.1:0", cfg.Transport)
	require.NoError(t, err)
	defer ln.Close()

	sender := NewSender(cfg, src, nil)
	receiver := NewReceiver(cfg, dst, nil)
	sendErr, recvErr := runPair(t,
		func(ctx context.Context) error { return sender.ListenAndRun(ctx, SealListener(ln, []byte("secret one"))) },
		func(ctx context.Context) error {
			return receiver.DialAndRun(ctx, SealDialer(DialTCP(ln.Addr(), cfg.Transport), []byte("secret two")))
		},
	)
	require.Error(t, sendErr)
	require.Error(t, recvErr)
	assert.Equal(t, Failed(ReasonIntegrityFailure), sender.State())
	assert.Equal(t, StateFailed, receiver.State().Kind())

	n, err := dst.Count(context.Background(), chat.TableMessages)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransferOverWebSocket(t *testing.T) {
	src, dst := openChat(t, "src.db"), openChat(t, "dst.db")
	seedChat(t, src)

	cfg := testConfig()
	ln := NewWSListener(cfg.Transport)
	srv := httptest.NewServer(ln)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + WSPath

	sender := NewSender(cfg, src, nil)
	receiver := NewReceiver(cfg, dst, nil)
	sendErr, recvErr := runPair(t,
		func(ctx context.Context) error { return sender.ListenAndRun(ctx, ln) },
		func(ctx context.Context) error { return receiver.DialAndRun(ctx, DialWS(url, cfg.Transport)) },
	)
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)
	assertRestored(t, src, dst)
}

func TestReceiverCancelStopsSender(t *testing.T) {
	src, dst := openChat(t, "src.db"), openChat(t, "dst.db")
	seedChat(t, src)

	sender := NewSender(testConfig(), src, nil)
	store := &hookStore{Store: dst, at: 5}
	receiver := NewReceiver(testConfig(), store, nil)
	store.hook = receiver.Bridge().RequestCancel

	a, b := newPipe(2)
	sendErr, recvErr := runPair(t,
		func(ctx context.Context) error { return sender.Run(ctx, a, RoleResponder) },
		func(ctx context.Context) error { return receiver.Run(ctx, b, RoleInitiator) },
	)
	assert.ErrorIs(t, recvErr, ErrUserCancelled)
	assert.Equal(t, StateClosed, receiver.State().Kind())
	require.Error(t, sendErr)
	assert.Equal(t, StateFailed, sender.State().Kind())

	n, err := dst.Count(context.Background(), chat.TableConversations)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = dst.Count(context.Background(), chat.TableMessages)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// hookStore calls hook after the at-th insert.
type hookStore struct {
	Store
	n    atomic.Int32
	at   int32
	hook func()
}

func (h *hookStore) InsertOrReplace(ctx context.Context, rec chat.Record) error {
	err := h.Store.InsertOrReplace(ctx, rec)
	if h.n.Add(1) == h.at {
		h.hook()
	}
	return err
}

// liveChat stands for a sending device that keeps receiving messages: the
// first walk of its pinned view writes a new message through the live
// handle.
type liveChat struct {
	*dao.ChatDAO
	once sync.Once
	t    *testing.T
}

type liveView struct {
	chat.Reader
	owner *liveChat
}

func (l *liveChat) Snapshot(ctx context.Context) (chat.Reader, func() error, error) {
	view, release, err := l.ChatDAO.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	return liveView{Reader: view, owner: l}, release, nil
}

func (v liveView) Walk(ctx context.Context, table chat.Table, fn func(chat.Record) error) error {
	v.owner.once.Do(func() {
		assert.NoError(v.owner.t, v.owner.InsertOrReplace(ctx, chat.Message{MessageID: "late", ConversationID: "c1",
			UserID: "u1", Category: "PLAIN_TEXT", Status: "SENT", CreatedAt: "2023-01-05T00:00:00.000Z"}))
	})
	return v.Reader.Walk(ctx, table, fn)
}

func TestTransferWhileSenderWrites(t *testing.T) {
	src, dst := openChat(t, "src.db"), openChat(t, "dst.db")
	total := seedChat(t, src)
	live := &liveChat{ChatDAO: src, t: t}

	transfer := func() *Session {
		sender := NewSender(testConfig(), live, nil)
		receiver := NewReceiver(testConfig(), dst, nil)
		a, b := newPipe(8)
		sendErr, recvErr := runPair(t,
			func(ctx context.Context) error { return sender.Run(ctx, a, RoleResponder) },
			func(ctx context.Context) error { return receiver.Run(ctx, b, RoleInitiator) },
		)
		require.NoError(t, sendErr)
		require.NoError(t, recvErr)
		assert.Equal(t, StateFinished, sender.State().Kind())
		assert.Equal(t, StateFinished, receiver.State().Kind())
		return receiver
	}

	receiver := transfer()
	assert.Equal(t, total, receiver.Stats().Committed)
	_, err := dst.Get(context.Background(), chat.TableMessages, "late")
	assert.ErrorIs(t, err, dao.ErrNotFound, "rows written after the count wait for the next transfer")

	receiver = transfer()
	assert.Equal(t, total+1-22, receiver.Stats().Committed)
	_, err = dst.Get(context.Background(), chat.TableMessages, "late")
	assert.NoError(t, err)
	assertRestored(t, src, dst)
}

// growingSource gains a row in a table while that table is walked.
type growingSource struct {
	memSource
	table chat.Table
	extra chat.Record
}

func (g *growingSource) Walk(ctx context.Context, table chat.Table, fn func(chat.Record) error) error {
	if table == g.table && g.extra != nil {
		g.memSource[table] = append(g.memSource[table], g.extra)
		g.extra = nil
	}
	return g.memSource.Walk(ctx, table, fn)
}

func TestSenderStopsAtCountedRows(t *testing.T) {
	src := &growingSource{
		memSource: memSource{
			chat.TableParticipants: {
				chat.Participant{ConversationID: "c1", UserID: "u1", Role: "OWNER", CreatedAt: "2023-01-01T00:00:00.000Z"},
				chat.Participant{ConversationID: "c1", UserID: "u2", CreatedAt: "2023-01-01T00:00:00.000Z"},
			},
		},
		table: chat.TableParticipants,
		extra: chat.Participant{ConversationID: "c1", UserID: "u3", CreatedAt: "2023-01-01T00:00:00.000Z"},
	}
	store := newMemStore()
	sender := NewSender(testConfig(), src, nil)
	receiver := NewReceiver(testConfig(), store, nil)

	a, b := newPipe(8)
	sendErr, recvErr := runPair(t,
		func(ctx context.Context) error { return sender.Run(ctx, a, RoleResponder) },
		func(ctx context.Context) error { return receiver.Run(ctx, b, RoleInitiator) },
	)
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)
	assert.Equal(t, 2, sender.Stats().Sent)
	assert.Equal(t, 2, store.count(chat.TableParticipants))
	assert.Equal(t, StateFinished, receiver.State().Kind())
}
