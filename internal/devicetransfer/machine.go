package devicetransfer

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Machine is the transfer state machine of one session. Every accepted
// transition is handed to emit while the machine lock is held, so emit sees
// states in transition order; emit must not block.
type Machine struct {
	mu    sync.Mutex
	state TransferState
	emit  func(TransferState)
	log   zerolog.Logger
}

// NewMachine returns a machine in the preparing state.
func NewMachine(emit func(TransferState), logger zerolog.Logger) *Machine {
	if emit == nil {
		emit = func(TransferState) {}
	}
	return &Machine{state: Preparing(), emit: emit, log: logger}
}

// State returns the current state.
func (m *Machine) State() TransferState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready moves preparing to ready.
func (m *Machine) Ready() error {
	return m.transition(func(cur TransferState) (TransferState, error) {
		if cur.kind != StatePreparing {
			return cur, m.invalid(cur, "ready")
		}
		return Ready(), nil
	})
}

// Connected moves ready to connected.
func (m *Machine) Connected() error {
	return m.transition(func(cur TransferState) (TransferState, error) {
		if cur.kind != StateReady {
			return cur, m.invalid(cur, "connected")
		}
		return Connected(), nil
	})
}

// Start moves connected to transporting(0, total).
func (m *Machine) Start(total int) error {
	return m.transition(func(cur TransferState) (TransferState, error) {
		if cur.kind != StateConnected {
			return cur, m.invalid(cur, "transporting")
		}
		return NewTransporting(0, total)
	})
}

// Advance adds k committed records.
func (m *Machine) Advance(k int) error {
	return m.transition(func(cur TransferState) (TransferState, error) {
		if cur.kind != StateTransporting {
			return cur, m.invalid(cur, "transporting")
		}
		if k < 1 {
			return cur, fmt.Errorf("%w: advance by %d", ErrInvalidTransition, k)
		}
		return NewTransporting(cur.processed+k, cur.total)
	})
}

// Finish moves transporting(t, t) to finished. With an unknown total any
// processed count may finish.
func (m *Machine) Finish() error {
	return m.transition(func(cur TransferState) (TransferState, error) {
		if cur.kind != StateTransporting {
			return cur, m.invalid(cur, "finished")
		}
		if cur.total != UnknownTotal && cur.processed != cur.total {
			return cur, fmt.Errorf("%w: finish at %d of %d", ErrInvalidTransition, cur.processed, cur.total)
		}
		return Finished(), nil
	})
}

// Fail moves any non-terminal state to failed(reason).
func (m *Machine) Fail(reason ClosedReason) error {
	return m.transition(func(TransferState) (TransferState, error) {
		return Failed(reason), nil
	})
}

// Close tears the session down. It is idempotent, and a no-op once the
// session has finished or failed.
func (m *Machine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return nil
	}
	m.set(Closed())
	return nil
}

func (m *Machine) transition(next func(TransferState) (TransferState, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		m.log.Debug().Str("state", m.state.String()).Msg("Dropped transition after terminal state")
		return fmt.Errorf("%w: %s", ErrTerminalState, m.state)
	}
	s, err := next(m.state)
	if err != nil {
		return err
	}
	m.set(s)
	return nil
}

func (m *Machine) set(s TransferState) {
	m.log.Debug().Str("from", m.state.String()).Str("to", s.String()).Msg("State transition")
	m.state = s
	m.emit(s)
}

func (m *Machine) invalid(cur TransferState, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, to)
}
