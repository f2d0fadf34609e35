package devicetransfer

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memFrame struct {
	frameType byte
	body      []byte
}

// memTransport is one end of an in-memory, buffered frame pipe.
type memTransport struct {
	in         <-chan memFrame
	out        chan<- memFrame
	closed     chan struct{}
	peerClosed <-chan struct{}
	once       sync.Once
	name       string
}

func newPipe(buffer int) (*memTransport, *memTransport) {
	ab := make(chan memFrame, buffer)
	ba := make(chan memFrame, buffer)
	aClosed := make(chan struct{})
	bClosed := make(chan struct{})
	a := &memTransport{in: ba, out: ab, closed: aClosed, peerClosed: bClosed, name: "pipe-a"}
	b := &memTransport{in: ab, out: ba, closed: bClosed, peerClosed: aClosed, name: "pipe-b"}
	return a, b
}

func (m *memTransport) Send(ctx context.Context, frameType byte, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-m.closed:
		return &TransportError{Op: "send", Err: ErrTransportClosed}
	case <-m.peerClosed:
		return &TransportError{Op: "send", Err: io.ErrClosedPipe}
	default:
	}
	f := memFrame{frameType: frameType, body: append([]byte(nil), body...)}
	select {
	case m.out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		return &TransportError{Op: "send", Err: ErrTransportClosed}
	case <-m.peerClosed:
		return &TransportError{Op: "send", Err: io.ErrClosedPipe}
	}
}

func (m *memTransport) Receive(ctx context.Context) (byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	select {
	case f := <-m.in:
		return f.frameType, f.body, nil
	default:
	}
	select {
	case f := <-m.in:
		return f.frameType, f.body, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-m.closed:
		return 0, nil, &TransportError{Op: "receive", Err: ErrTransportClosed}
	case <-m.peerClosed:
		select {
		case f := <-m.in:
			return f.frameType, f.body, nil
		default:
			return 0, nil, &TransportError{Op: "receive", Err: io.EOF}
		}
	}
}

func (m *memTransport) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *memTransport) RemoteAddr() string { return m.name }

// peer drives the far end of a pipe from the test goroutine.
type peer struct {
	t  *testing.T
	tr Transport
}

func (p peer) send(frameType byte, rec WireRecord) {
	p.t.Helper()
	body, err := Encode(rec)
	require.NoError(p.t, err)
	p.sendRaw(frameType, body)
}

func (p peer) sendRaw(frameType byte, body []byte) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(p.t, p.tr.Send(ctx, frameType, body))
}

func (p peer) sendEnvelope(tag string, data any) {
	p.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(p.t, err)
	body, err := json.Marshal(struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}{tag, raw})
	require.NoError(p.t, err)
	p.sendRaw(FrameMessage, body)
}

func (p peer) command(cmd *Command) {
	p.t.Helper()
	p.send(FrameCommand, cmd)
}

func (p peer) expectCommand(action string) *Command {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frameType, body, err := p.tr.Receive(ctx)
	require.NoError(p.t, err)
	require.Equal(p.t, FrameCommand, frameType)
	cmd, err := decodeCommandFrame(body)
	require.NoError(p.t, err)
	require.Equal(p.t, action, cmd.Action, "reason %q", cmd.Reason)
	return cmd
}

// connect performs the initiator side of the handshake against a responder.
func (p peer) connect(code string) {
	p.t.Helper()
	p.command(connectCommand(code, "peer-device"))
	p.expectCommand(ActionConnect)
}
