package devicetransfer

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by the devicetransfer package.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrTerminalState     = errors.New("session already in a terminal state")
	ErrUserCancelled     = errors.New("transfer cancelled by user")
	ErrTransportClosed   = errors.New("transport closed")
	ErrUnknownCommand    = errors.New("unknown command")
)

// MalformedRecordError reports a record whose required field is missing or of
// the wrong shape. It is local to one record and never aborts a session.
type MalformedRecordError struct {
	Type  MessageType
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s record: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("malformed %s record: field %q: %v", e.Type, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// TransportError wraps an I/O failure on the channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IntegrityError reports a checksum, seal or manifest mismatch.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "integrity failure: " + e.Reason
}

// ClosedReasonError carries the reason a session failed.
type ClosedReasonError struct {
	Reason ClosedReason
	Err    error
}

func (e *ClosedReasonError) Error() string {
	if e.Err == nil {
		return "transfer failed: " + e.Reason.String()
	}
	return fmt.Sprintf("transfer failed: %s: %v", e.Reason, e.Err)
}

func (e *ClosedReasonError) Unwrap() error { return e.Err }

// reasonFor maps a session-fatal error to the failure reason it drives.
func reasonFor(err error) ClosedReason {
	var cre *ClosedReasonError
	var ie *IntegrityError
	switch {
	case errors.As(err, &cre):
		return cre.Reason
	case errors.As(err, &ie):
		return ReasonIntegrityFailure
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonTransportError
	}
}
