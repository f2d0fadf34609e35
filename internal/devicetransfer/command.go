package devicetransfer

import (
	"encoding/json"
	"fmt"
)

// Command actions.
const (
	ActionConnect = "connect"
	ActionStart   = "start"
	ActionFinish  = "finish"
	ActionClose   = "close"
)

// CloseUserCancelled is the close reason sent when the local user cancels.
const CloseUserCancelled = "user_cancelled"

// Command is a control record. Commands drive the session and are never
// persisted.
type Command struct {
	Action   string `json:"action"`
	Version  int    `json:"version,omitempty"`
	Code     string `json:"code,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	Total    int    `json:"total,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (*Command) Type() MessageType { return MessageTypeCommand }

func connectCommand(code, deviceID string) *Command {
	return &Command{Action: ActionConnect, Version: ProtocolVersion, Code: code, DeviceID: deviceID}
}

func startCommand(total int) *Command { return &Command{Action: ActionStart, Total: total} }

func finishCommand() *Command { return &Command{Action: ActionFinish} }

func closeCommand(reason string) *Command { return &Command{Action: ActionClose, Reason: reason} }

func decodeCommand(data json.RawMessage) (*Command, error) {
	var c Command
	if err := decodeFields(MessageTypeCommand, data, &c, "action"); err != nil {
		return nil, err
	}
	switch c.Action {
	case ActionConnect, ActionFinish, ActionClose:
	case ActionStart:
		if c.Total < UnknownTotal {
			return nil, &MalformedRecordError{Type: MessageTypeCommand, Field: "total",
				Err: fmt.Errorf("invalid total %d", c.Total)}
		}
	default:
		return nil, &MalformedRecordError{Type: MessageTypeCommand, Field: "action",
			Err: fmt.Errorf("%w: %q", ErrUnknownCommand, c.Action)}
	}
	return &c, nil
}

// peerClosedReason maps the reason a peer gave in a close command.
func peerClosedReason(reason string) ClosedReason {
	switch reason {
	case ReasonVersionMismatch.String():
		return ReasonVersionMismatch
	case ReasonPeerRejected.String():
		return ReasonPeerRejected
	default:
		return ReasonPeerAborted
	}
}
