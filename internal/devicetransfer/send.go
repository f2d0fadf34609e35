package devicetransfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devxfer/devxfer/internal/chat"
)

// errTableSent stops a walk once the counted rows of a table are out.
var errTableSent = errors.New("table sent")

// send streams every table of the source in dependency order, then waits
// for the receiver to acknowledge finish.
func (s *Session) send(ctx context.Context, t Transport) error {
	var source Source = s.source
	if snap, ok := s.source.(SnapshotSource); ok {
		view, release, err := snap.Snapshot(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(); err != nil {
				s.log.Debug().Err(err).Msg("Failed to release read snapshot")
			}
		}()
		source = view
	}

	total := 0
	counts := make(map[chat.Table]int, len(chat.Tables))
	for _, table := range chat.Tables {
		n, err := source.Count(ctx, table)
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
		total += n
	}

	if err := s.sendCommand(ctx, t, startCommand(total)); err != nil {
		return err
	}
	if err := s.machine.Start(total); err != nil {
		return err
	}
	s.log.Info().Int("total", total).Msg("Transfer started")

	g, gctx := errgroup.WithContext(ctx)
	acked := make(chan struct{})

	g.Go(func() error { return s.watchPeer(gctx, t, acked) })
	g.Go(func() error {
		if err := s.stream(gctx, t, source, counts); err != nil {
			return err
		}
		if err := s.sendCommand(gctx, t, finishCommand()); err != nil {
			return err
		}

		timer := time.NewTimer(s.cfg.Transport.IdleTimeout)
		defer timer.Stop()
		select {
		case <-acked:
			return s.machine.Finish()
		case <-timer.C:
			return &ClosedReasonError{Reason: ReasonTimeout, Err: errors.New("finish not acknowledged")}
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	return g.Wait()
}

// stream sends at most the counted rows of each table. Rows written after
// the count wait for a later transfer.
func (s *Session) stream(ctx context.Context, t Transport, source Source, counts map[chat.Table]int) error {
	for _, table := range chat.Tables {
		left := counts[table]
		err := source.Walk(ctx, table, func(row chat.Record) error {
			if left == 0 {
				return errTableSent
			}
			left--
			rec, err := FromStorage(row)
			if err != nil {
				return err
			}
			if err := s.sendFrame(ctx, t, FrameMessage, rec); err != nil {
				return err
			}
			s.sent.Add(1)
			return s.advance(ctx)
		})
		if errors.Is(err, errTableSent) {
			s.log.Debug().Str("table", string(table)).Msg("Table grew during send")
			err = nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.log.Debug().Str("table", string(table)).Int("sent", int(s.sent.Load())).Msg("Table sent")
	}
	return nil
}

// watchPeer reads the receiver's side of the stream: the finish
// acknowledgement or a close.
func (s *Session) watchPeer(ctx context.Context, t Transport, acked chan<- struct{}) error {
	for {
		cmd, err := s.receiveCommand(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch cmd.Action {
		case ActionFinish:
			close(acked)
			return nil
		case ActionClose:
			return &ClosedReasonError{Reason: ReasonPeerAborted, Err: fmt.Errorf("peer closed: %s", cmd.Reason)}
		default:
			return &IntegrityError{Reason: "unexpected " + cmd.Action + " from receiver"}
		}
	}
}
