package devicetransfer

import "fmt"

// StateKind enumerates the variants of TransferState.
type StateKind int

const (
	// StatePreparing is the initial state: no transport yet.
	StatePreparing StateKind = iota
	// StateReady means the local side can accept or dial a peer.
	StateReady
	// StateConnected means the transport is up and the handshake completed.
	StateConnected
	// StateTransporting means records are flowing.
	StateTransporting
	// StateFailed is terminal and carries a ClosedReason.
	StateFailed
	// StateFinished is terminal success.
	StateFinished
	// StateClosed is terminal teardown.
	StateClosed
)

// String returns a string representation of the state kind.
func (k StateKind) String() string {
	switch k {
	case StatePreparing:
		return "preparing"
	case StateReady:
		return "ready"
	case StateConnected:
		return "connected"
	case StateTransporting:
		return "transporting"
	case StateFailed:
		return "failed"
	case StateFinished:
		return "finished"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition may leave this kind.
func (k StateKind) Terminal() bool {
	return k == StateFailed || k == StateFinished || k == StateClosed
}

// ClosedReason is the cause of a failed session.
type ClosedReason int

const (
	ReasonNone ClosedReason = iota
	ReasonTimeout
	ReasonPeerRejected
	ReasonVersionMismatch
	ReasonIntegrityFailure
	ReasonTransportError
	ReasonDecodeBudgetExceeded
	ReasonPeerAborted
)

func (r ClosedReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTimeout:
		return "timeout"
	case ReasonPeerRejected:
		return "peer_rejected"
	case ReasonVersionMismatch:
		return "version_mismatch"
	case ReasonIntegrityFailure:
		return "integrity_failure"
	case ReasonTransportError:
		return "transport_error"
	case ReasonDecodeBudgetExceeded:
		return "decode_budget_exceeded"
	case ReasonPeerAborted:
		return "peer_aborted"
	default:
		return "unknown"
	}
}

// UnknownTotal marks a transporting state whose total count is not known.
const UnknownTotal = -1

// TransferState is an immutable snapshot of a session's state. Only the
// constructors below produce valid values; Processed and Total are
// meaningful for StateTransporting, Reason for StateFailed.
type TransferState struct {
	kind      StateKind
	processed int
	total     int
	reason    ClosedReason
}

func Preparing() TransferState { return TransferState{kind: StatePreparing} }
func Ready() TransferState     { return TransferState{kind: StateReady} }
func Connected() TransferState { return TransferState{kind: StateConnected} }
func Finished() TransferState  { return TransferState{kind: StateFinished} }
func Closed() TransferState    { return TransferState{kind: StateClosed} }

// Failed returns the terminal failed state for reason.
func Failed(reason ClosedReason) TransferState {
	return TransferState{kind: StateFailed, reason: reason}
}

// NewTransporting returns transporting(processed, total). It rejects negative
// counts and processed > total; a total of UnknownTotal only requires
// processed >= 0.
func NewTransporting(processed, total int) (TransferState, error) {
	if processed < 0 {
		return TransferState{}, fmt.Errorf("%w: negative processed count %d", ErrInvalidTransition, processed)
	}
	if total != UnknownTotal {
		if total < 0 {
			return TransferState{}, fmt.Errorf("%w: negative total count %d", ErrInvalidTransition, total)
		}
		if processed > total {
			return TransferState{}, fmt.Errorf("%w: processed %d exceeds total %d", ErrInvalidTransition, processed, total)
		}
	}
	return TransferState{kind: StateTransporting, processed: processed, total: total}, nil
}

func (s TransferState) Kind() StateKind      { return s.kind }
func (s TransferState) Processed() int       { return s.processed }
func (s TransferState) Total() int           { return s.total }
func (s TransferState) Reason() ClosedReason { return s.reason }
func (s TransferState) Terminal() bool       { return s.kind.Terminal() }

func (s TransferState) String() string {
	switch s.kind {
	case StateTransporting:
		if s.total == UnknownTotal {
			return fmt.Sprintf("transporting(%d/?)", s.processed)
		}
		return fmt.Sprintf("transporting(%d/%d)", s.processed, s.total)
	case StateFailed:
		return fmt.Sprintf("failed(%s)", s.reason)
	default:
		return s.kind.String()
	}
}
