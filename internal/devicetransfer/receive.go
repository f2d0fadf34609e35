package devicetransfer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// inbound is one received frame in arrival order. Records carry a channel
// the decode stage fills; commands are decoded by the reader.
type inbound struct {
	cmd    *Command
	result chan decoded
}

type decoded struct {
	rec WireRecord
	err error
}

// receive runs the restore pipeline: one reader keeps frames in order, a
// bounded pool decodes them, and one arbiter commits and counts.
func (s *Session) receive(ctx context.Context, t Transport) error {
	g, gctx := errgroup.WithContext(ctx)
	items := make(chan inbound, s.cfg.QueueDepth)

	g.Go(func() error { return s.readLoop(gctx, t, items) })
	g.Go(func() error { return s.commitLoop(gctx, t, items) })
	return g.Wait()
}

func (s *Session) readLoop(ctx context.Context, t Transport, items chan<- inbound) error {
	defer close(items)

	var decoders errgroup.Group
	decoders.SetLimit(s.cfg.DecodeWorkers)
	defer decoders.Wait()

	push := func(it inbound) bool {
		select {
		case items <- it:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.Transport.IdleTimeout)
		frameType, body, err := t.Receive(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return &ClosedReasonError{Reason: ReasonTimeout,
					Err: fmt.Errorf("no frame for %s", s.cfg.Transport.IdleTimeout)}
			}
			return err
		}

		switch frameType {
		case FrameCommand:
			cmd, err := decodeCommandFrame(body)
			if err != nil {
				return err
			}
			if !push(inbound{cmd: cmd}) {
				return ctx.Err()
			}
			if cmd.Action == ActionFinish || cmd.Action == ActionClose {
				return nil
			}
		case FrameMessage:
			it := inbound{result: make(chan decoded, 1)}
			if !push(it) {
				return ctx.Err()
			}
			// Blocks while DecodeWorkers decodes are in flight.
			decoders.Go(func() error {
				rec, err := DecodeRecord(body)
				it.result <- decoded{rec: rec, err: err}
				return nil
			})
		default:
			return &IntegrityError{Reason: fmt.Sprintf("unknown frame type 0x%02x", frameType)}
		}
	}
}

func (s *Session) commitLoop(ctx context.Context, t Transport, items <-chan inbound) error {
	started := false
	seen := make(map[string]struct{})
	seq := 0

	for {
		var it inbound
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it, ok = <-items:
		}
		if !ok {
			// The reader stopped on an error it reports itself.
			return nil
		}

		if it.cmd != nil {
			done, err := s.handleCommand(ctx, t, it.cmd, started)
			if err != nil || done {
				return err
			}
			started = true
			continue
		}

		if !started {
			return &IntegrityError{Reason: "record before start"}
		}
		var res decoded
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-it.result:
		}

		seq++
		if err := s.commit(ctx, res, seq, seen); err != nil {
			return err
		}
		if err := s.advance(ctx); err != nil {
			return err
		}
	}
}

// handleCommand applies a control command. done reports the end of the
// stream.
func (s *Session) handleCommand(ctx context.Context, t Transport, cmd *Command, started bool) (done bool, err error) {
	switch cmd.Action {
	case ActionStart:
		if started {
			return false, &IntegrityError{Reason: "duplicate start"}
		}
		s.log.Info().Int("total", cmd.Total).Msg("Transfer started")
		return false, s.machine.Start(cmd.Total)
	case ActionFinish:
		if !started {
			return true, &IntegrityError{Reason: "finish before start"}
		}
		state := s.machine.State()
		if state.Total() != UnknownTotal && state.Processed() != state.Total() {
			return true, &IntegrityError{Reason: fmt.Sprintf("received %d of %d records", state.Processed(), state.Total())}
		}
		if err := s.sendCommand(ctx, t, finishCommand()); err != nil {
			return true, err
		}
		return true, s.machine.Finish()
	case ActionClose:
		return true, &ClosedReasonError{Reason: ReasonPeerAborted, Err: fmt.Errorf("peer closed: %s", cmd.Reason)}
	default:
		return true, &IntegrityError{Reason: "unexpected " + cmd.Action + " command"}
	}
}

func (s *Session) commit(ctx context.Context, res decoded, seq int, seen map[string]struct{}) error {
	if res.err != nil {
		return s.skipMalformed(res.err, seq)
	}

	switch rec := res.rec.(type) {
	case *UnknownRecord:
		s.unknown.Add(1)
		s.log.Debug().Str("tag", rec.Tag).Int("seq", seq).Msg("Received record of unknown type")
		if s.journal != nil {
			if err := s.journal.AddDeadLetter(s.id, rec.Tag, rec.Body); err != nil {
				s.log.Warn().Err(err).Msg("Failed to store dead letter")
			}
		}
		return nil
	case StorageRecord:
		return s.apply(ctx, rec, seen)
	default:
		return s.skipMalformed(&MalformedRecordError{Type: rec.Type(), Err: errors.New("control record in message frame")}, seq)
	}
}

func (s *Session) skipMalformed(err error, seq int) error {
	n := s.malformed.Add(1)
	s.log.Warn().Err(err).Int("seq", seq).Msg("Skipping malformed record")

	recordType := MessageTypeUnknown
	var mre *MalformedRecordError
	if errors.As(err, &mre) {
		recordType = mre.Type
	}
	s.journalOutcome(recordType, fmt.Sprintf("#%d", seq), OutcomeMalformed)

	if int(n) > s.cfg.MaxMalformed {
		return &ClosedReasonError{Reason: ReasonDecodeBudgetExceeded,
			Err: fmt.Errorf("%d malformed records: %w", n, err)}
	}
	return nil
}

// apply commits one record unless this session already applied it or its
// kind keeps rows that already exist.
func (s *Session) apply(ctx context.Context, rec StorageRecord, seen map[string]struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	row := rec.ToStorage()
	id := recordID(row)
	key := string(rec.Type()) + "/" + id
	if _, dup := seen[key]; dup {
		s.duplicates.Add(1)
		s.journalOutcome(rec.Type(), id, OutcomeDuplicate)
		return nil
	}
	seen[key] = struct{}{}

	if skipsExisting(rec.Type()) {
		exists, err := s.store.Exists(ctx, row)
		if err != nil {
			return storeError(ctx, err)
		}
		if exists {
			s.skipped.Add(1)
			s.journalOutcome(rec.Type(), id, OutcomeSkipped)
			return nil
		}
	}

	if err := s.store.InsertOrReplace(ctx, row); err != nil {
		return storeError(ctx, err)
	}
	s.committed.Add(1)
	s.journalOutcome(rec.Type(), id, OutcomeApplied)
	return ctx.Err()
}

func (s *Session) journalOutcome(recordType MessageType, id string, outcome Outcome) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordOutcome(s.id, recordType, id, outcome); err != nil {
		s.log.Warn().Err(err).Str("record_id", id).Msg("Failed to journal record")
	}
}

func storeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &ClosedReasonError{Reason: ReasonIntegrityFailure, Err: fmt.Errorf("store: %w", err)}
}
