package devicetransfer

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/devxfer/devxfer/internal/chat"
	"github.com/devxfer/devxfer/internal/deviceid"
	"github.com/devxfer/devxfer/internal/log"
)

// ErrSessionUsed is returned when a session is run a second time.
var ErrSessionUsed = errors.New("session already run")

// Role is a side of the handshake. The initiator sends connect; the
// responder validates it.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// Store is the persistence target of a receiving session. It must be safe
// for concurrent use.
type Store interface {
	InsertOrReplace(ctx context.Context, rec chat.Record) error
	Exists(ctx context.Context, rec chat.Record) (bool, error)
}

// Source supplies the rows a sending session streams.
type Source interface {
	Count(ctx context.Context, table chat.Table) (int, error)
	Walk(ctx context.Context, table chat.Table, fn func(chat.Record) error) error
}

// SnapshotSource is a Source that can pin one consistent view of its rows
// for the length of a send.
type SnapshotSource interface {
	Source
	Snapshot(ctx context.Context) (chat.Reader, func() error, error)
}

// Stats breaks down the records a session handled.
type Stats struct {
	Sent       int
	Committed  int
	Skipped    int
	Duplicates int
	Malformed  int
	Unknown    int
}

// Session is one end-to-end device transfer, from preparing to a terminal
// state. A session runs once.
type Session struct {
	id        string
	direction Direction
	cfg       Config
	store     Store
	source    Source
	journal   *Journal
	machine   *Machine
	bridge    *Bridge
	log       zerolog.Logger

	mu        sync.Mutex
	transport Transport
	stop      context.CancelFunc
	ran       bool
	peerID    string

	sent, committed, skipped, duplicates, malformed, unknown atomic.Int64
}

// NewReceiver creates a session that restores records into store. journal
// may be nil.
func NewReceiver(cfg Config, store Store, journal *Journal) *Session {
	s := newSession(DirectionReceive, cfg, journal)
	s.store = store
	return s
}

// NewSender creates a session that streams every row of source. journal
// may be nil.
func NewSender(cfg Config, source Source, journal *Journal) *Session {
	s := newSession(DirectionSend, cfg, journal)
	s.source = source
	return s
}

func newSession(direction Direction, cfg Config, journal *Journal) *Session {
	id := deviceid.New()
	logger := log.With("devicetransfer").With().
		Str("session_id", id).
		Str("direction", string(direction)).
		Logger()

	s := &Session{
		id:        id,
		direction: direction,
		cfg:       cfg.withDefaults(),
		journal:   journal,
		bridge:    NewBridge(),
		log:       logger,
	}
	s.machine = NewMachine(s.bridge.publish, logger)
	s.bridge.bind(s.cancel)

	if journal != nil {
		if err := journal.BeginSession(id, direction, ""); err != nil {
			logger.Warn().Err(err).Msg("Failed to journal session")
		}
		s.bridge.OnStateChanged(func(state TransferState) {
			if err := journal.UpdateState(id, state); err != nil {
				logger.Warn().Err(err).Str("state", state.String()).Msg("Failed to journal state")
			}
		})
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Bridge returns the consumer-facing state and cancel surface.
func (s *Session) Bridge() *Bridge { return s.bridge }

// State returns the current state.
func (s *Session) State() TransferState { return s.machine.State() }

// PeerDeviceID returns the device id the peer presented in the handshake.
func (s *Session) PeerDeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

// Stats returns the record counters.
func (s *Session) Stats() Stats {
	return Stats{
		Sent:       int(s.sent.Load()),
		Committed:  int(s.committed.Load()),
		Skipped:    int(s.skipped.Load()),
		Duplicates: int(s.duplicates.Load()),
		Malformed:  int(s.malformed.Load()),
		Unknown:    int(s.unknown.Load()),
	}
}

// ListenAndRun moves to ready, accepts one peer from ln and runs the
// transfer as handshake responder. It returns once the session is terminal
// and observers have seen the terminal state.
func (s *Session) ListenAndRun(ctx context.Context, ln Listener) error {
	ctx, err := s.begin(ctx)
	if err != nil {
		return s.end(err)
	}
	defer s.release()

	if err := s.machine.Ready(); err != nil {
		return s.end(err)
	}
	s.log.Info().Str("addr", ln.Addr()).Msg("Waiting for peer")

	t, err := ln.Accept(ctx)
	if err != nil {
		return s.end(err)
	}
	return s.end(s.run(ctx, t, RoleResponder))
}

// DialAndRun moves to ready, dials the peer and runs the transfer as
// handshake initiator.
func (s *Session) DialAndRun(ctx context.Context, dial Dialer) error {
	ctx, err := s.begin(ctx)
	if err != nil {
		return s.end(err)
	}
	defer s.release()

	if err := s.machine.Ready(); err != nil {
		return s.end(err)
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.Transport.ConnectTimeout)
	t, err := dial(dctx)
	cancel()
	if err != nil {
		return s.end(err)
	}
	return s.end(s.run(ctx, t, RoleInitiator))
}

// Run drives the transfer over an already open transport. The session owns
// t from here on and closes it.
func (s *Session) Run(ctx context.Context, t Transport, role Role) error {
	ctx, err := s.begin(ctx)
	if err != nil {
		t.Close()
		return s.end(err)
	}
	defer s.release()

	if err := s.machine.Ready(); err != nil {
		t.Close()
		return s.end(err)
	}
	return s.end(s.run(ctx, t, role))
}

func (s *Session) begin(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ran {
		return nil, ErrSessionUsed
	}
	s.ran = true
	if s.machine.State().Terminal() {
		return nil, ErrTerminalState
	}
	ctx, stop := context.WithCancel(parent)
	s.stop = stop
	return ctx, nil
}

func (s *Session) release() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (s *Session) run(ctx context.Context, t Transport, role Role) error {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
	defer t.Close()

	peer := t.RemoteAddr()
	s.log.Info().Str("peer", peer).Str("role", role.String()).Msg("Peer connected")
	if s.journal != nil {
		if err := s.journal.SetPeer(s.id, peer); err != nil {
			s.log.Warn().Err(err).Msg("Failed to journal peer")
		}
	}

	err := s.transfer(ctx, t, role)
	if err != nil && ctx.Err() == nil {
		s.notifyPeer(t, reasonFor(err))
	}
	return err
}

func (s *Session) transfer(ctx context.Context, t Transport, role Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.handshake(ctx, t, role); err != nil {
		return err
	}
	if err := s.machine.Connected(); err != nil {
		return err
	}

	if s.direction == DirectionSend {
		return s.send(ctx, t)
	}
	return s.receive(ctx, t)
}

// notifyPeer tells the peer why a session failed locally. Failures the
// peer caused or already announced are not echoed back.
func (s *Session) notifyPeer(t Transport, reason ClosedReason) {
	switch reason {
	case ReasonIntegrityFailure, ReasonDecodeBudgetExceeded, ReasonTimeout:
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CancelGrace)
	defer cancel()
	if err := s.sendCommand(ctx, t, closeCommand(reason.String())); err != nil {
		s.log.Debug().Err(err).Msg("Failed to notify peer of failure")
	}
}

// end settles the machine for the way run ended and waits until observers
// have seen the terminal state.
func (s *Session) end(err error) error {
	if errors.Is(err, ErrSessionUsed) {
		return err
	}
	switch {
	case s.machine.State().Kind() == StateFinished:
		err = nil
	case s.bridge.cancelRequested():
		s.machine.Close()
		err = ErrUserCancelled
	case err == nil, errors.Is(err, context.Canceled):
		s.machine.Close()
	default:
		s.machine.Fail(reasonFor(err))
	}

	state := s.machine.State()
	stats := s.Stats()
	event := s.log.Info()
	if state.Kind() == StateFailed {
		event = s.log.Error().Err(err)
	}
	event.Str("state", state.String()).
		Int("sent", stats.Sent).
		Int("committed", stats.Committed).
		Int("skipped", stats.Skipped).
		Int("duplicates", stats.Duplicates).
		Int("malformed", stats.Malformed).
		Int("unknown", stats.Unknown).
		Msg("Session ended")

	<-s.bridge.Done()
	return err
}

// cancel runs on RequestCancel: closed first, then the session context,
// then a best effort close notice to the peer, then the transport.
func (s *Session) cancel() {
	s.machine.Close()

	s.mu.Lock()
	t, stop := s.transport, s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CancelGrace)
	defer cancel()
	if err := s.sendCommand(ctx, t, closeCommand(CloseUserCancelled)); err != nil {
		s.log.Debug().Err(err).Msg("Failed to notify peer of cancel")
	}
	t.Close()
}

func (s *Session) handshake(ctx context.Context, t Transport, role Role) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Transport.HandshakeTimeout)
	defer cancel()

	if role == RoleInitiator {
		if err := s.sendCommand(ctx, t, connectCommand(s.cfg.Code, s.cfg.DeviceID)); err != nil {
			return err
		}
		cmd, err := s.receiveCommand(ctx, t)
		if err != nil {
			return err
		}
		switch cmd.Action {
		case ActionConnect:
			if cmd.Version != ProtocolVersion {
				return &ClosedReasonError{Reason: ReasonVersionMismatch, Err: fmt.Errorf("peer speaks version %d", cmd.Version)}
			}
			s.setPeerID(cmd.DeviceID)
			return nil
		case ActionClose:
			return &ClosedReasonError{Reason: peerClosedReason(cmd.Reason), Err: fmt.Errorf("peer closed: %s", cmd.Reason)}
		default:
			return &IntegrityError{Reason: "unexpected " + cmd.Action + " during handshake"}
		}
	}

	cmd, err := s.receiveCommand(ctx, t)
	if err != nil {
		return err
	}
	if cmd.Action != ActionConnect {
		return &IntegrityError{Reason: "unexpected " + cmd.Action + " during handshake"}
	}
	if cmd.Version != ProtocolVersion {
		s.reject(ctx, t, ReasonVersionMismatch)
		return &ClosedReasonError{Reason: ReasonVersionMismatch, Err: fmt.Errorf("peer speaks version %d", cmd.Version)}
	}
	if s.cfg.Code != "" && subtle.ConstantTimeCompare([]byte(cmd.Code), []byte(s.cfg.Code)) != 1 {
		s.reject(ctx, t, ReasonPeerRejected)
		return &ClosedReasonError{Reason: ReasonPeerRejected, Err: errors.New("pairing code mismatch")}
	}
	s.setPeerID(cmd.DeviceID)
	return s.sendCommand(ctx, t, connectCommand("", s.cfg.DeviceID))
}

func (s *Session) reject(ctx context.Context, t Transport, reason ClosedReason) {
	if err := s.sendCommand(ctx, t, closeCommand(reason.String())); err != nil {
		s.log.Debug().Err(err).Msg("Failed to send rejection")
	}
}

func (s *Session) setPeerID(id string) {
	s.mu.Lock()
	s.peerID = id
	s.mu.Unlock()
}

// sendFrame bounds every write by the idle timeout.
func (s *Session) sendFrame(ctx context.Context, t Transport, frameType byte, rec WireRecord) error {
	body, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", rec.Type(), err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Transport.IdleTimeout)
	defer cancel()
	return t.Send(ctx, frameType, body)
}

func (s *Session) sendCommand(ctx context.Context, t Transport, cmd *Command) error {
	return s.sendFrame(ctx, t, FrameCommand, cmd)
}

func (s *Session) receiveCommand(ctx context.Context, t Transport) (*Command, error) {
	frameType, body, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if frameType != FrameCommand {
		return nil, &IntegrityError{Reason: fmt.Sprintf("expected command frame, got 0x%02x", frameType)}
	}
	return decodeCommandFrame(body)
}

func decodeCommandFrame(body []byte) (*Command, error) {
	rec, err := DecodeRecord(body)
	if err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("bad command: %v", err)}
	}
	cmd, ok := rec.(*Command)
	if !ok {
		return nil, &IntegrityError{Reason: fmt.Sprintf("expected command, got %s", rec.Type())}
	}
	return cmd, nil
}

// advance counts one record. A cancel closes the machine before it stops
// the session context, so a terminal machine ends the stream as a cancel.
func (s *Session) advance(ctx context.Context) error {
	err := s.machine.Advance(1)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrTerminalState):
		return ErrUserCancelled
	default:
		return &IntegrityError{Reason: err.Error()}
	}
}

// recordID renders a row's primary key for the journal.
func recordID(rec chat.Record) string {
	key := rec.Key()
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = fmt.Sprint(k)
	}
	return strings.Join(parts, ":")
}
