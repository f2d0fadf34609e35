package devicetransfer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"sync"
	"time"
)

// Transport carries typed frames between the two devices. Send and Receive
// may be called from different goroutines; concurrent Sends are serialized.
type Transport interface {
	// Send writes one frame.
	Send(ctx context.Context, frameType byte, body []byte) error
	// Receive reads the next frame.
	Receive(ctx context.Context) (frameType byte, body []byte, err error)
	// Close releases the connection. It unblocks pending calls.
	Close() error
	// RemoteAddr returns the remote address.
	RemoteAddr() string
}

// Listener accepts the single peer of a session.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Addr() string
	Close() error
}

// Dialer opens a transport to a peer.
type Dialer func(ctx context.Context) (Transport, error)

const (
	frameHeaderSize  = 5
	frameTrailerSize = 4
)

// TCPTransport frames messages over a stream connection as
// type(1) | length(4, big endian) | body | crc32(4, big endian).
type TCPTransport struct {
	conn         net.Conn
	maxFrameSize int

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// NewTCPTransport wraps an established connection.
func NewTCPTransport(conn net.Conn, config TransportConfig) *TCPTransport {
	if tcpConn, ok := conn.(*net.TCPConn); ok && config.KeepAliveInterval > 0 {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(config.KeepAliveInterval)
	}
	limit := config.MaxFrameSize
	if limit <= 0 {
		limit = DefaultTransportConfig().MaxFrameSize
	}
	return &TCPTransport{conn: conn, maxFrameSize: limit}
}

// DialTCP returns a Dialer connecting to addr.
func DialTCP(addr string, config TransportConfig) Dialer {
	return func(ctx context.Context) (Transport, error) {
		dialer := &net.Dialer{Timeout: config.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &TransportError{Op: "dial", Err: err}
		}
		return NewTCPTransport(conn, config), nil
	}
}

// Send writes one frame.
func (t *TCPTransport) Send(ctx context.Context, frameType byte, body []byte) error {
	if len(body) > t.maxFrameSize {
		return &TransportError{Op: "send", Err: fmt.Errorf("frame of %d bytes exceeds limit %d", len(body), t.maxFrameSize)}
	}

	frame := make([]byte, frameHeaderSize+len(body)+frameTrailerSize)
	frame[0] = frameType
	binary.BigEndian.PutUint32(frame[1:frameHeaderSize], uint32(len(body)))
	copy(frame[frameHeaderSize:], body)
	binary.BigEndian.PutUint32(frame[frameHeaderSize+len(body):], crc32.ChecksumIEEE(body))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	stop := watchDeadline(ctx, t.conn.SetWriteDeadline)
	defer stop()

	if _, err := t.conn.Write(frame); err != nil {
		return t.wrap(ctx, "send", err)
	}
	return nil
}

// Receive reads the next frame and verifies its checksum.
func (t *TCPTransport) Receive(ctx context.Context) (byte, []byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	stop := watchDeadline(ctx, t.conn.SetReadDeadline)
	defer stop()

	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(t.conn, header); err != nil {
		return 0, nil, t.wrap(ctx, "receive", err)
	}

	frameType := header[0]
	bodyLen := binary.BigEndian.Uint32(header[1:])
	if int64(bodyLen) > int64(t.maxFrameSize) {
		return 0, nil, &IntegrityError{Reason: fmt.Sprintf("frame length %d exceeds limit %d", bodyLen, t.maxFrameSize)}
	}

	buf := make([]byte, int(bodyLen)+frameTrailerSize)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return 0, nil, t.wrap(ctx, "receive", err)
	}
	body := buf[:bodyLen]
	if sum := binary.BigEndian.Uint32(buf[bodyLen:]); sum != crc32.ChecksumIEEE(body) {
		return 0, nil, &IntegrityError{Reason: "frame checksum mismatch"}
	}
	return frameType, body, nil
}

// Close closes the connection.
func (t *TCPTransport) Close() error {
	if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}
	return nil
}

// RemoteAddr returns the remote address.
func (t *TCPTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// watchDeadline applies ctx's deadline to a connection and interrupts the
// pending I/O when ctx is cancelled. The returned func must be called once
// the I/O completes.
func watchDeadline(ctx context.Context, setDeadline func(time.Time) error) func() {
	if deadline, ok := ctx.Deadline(); ok {
		setDeadline(deadline)
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		select {
		case <-ctx.Done():
			setDeadline(time.Now())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-finished
		setDeadline(time.Time{})
	}
}

func (t *TCPTransport) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		err = io.EOF
	case errors.Is(err, net.ErrClosed):
		err = ErrTransportClosed
	}
	return &TransportError{Op: op, Err: err}
}

// TCPListener accepts framed TCP peers.
type TCPListener struct {
	ln     net.Listener
	config TransportConfig
}

// ListenTCP listens on addr; use ":0" for an ephemeral port.
func ListenTCP(addr string, config TransportConfig) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}
	return &TCPListener{ln: ln, config: config}, nil
}

// Accept waits for one peer or for ctx to end.
func (l *TCPListener) Accept(ctx context.Context) (Transport, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, &TransportError{Op: "accept", Err: r.err}
		}
		return NewTCPTransport(r.conn, l.config), nil
	case <-ctx.Done():
		l.ln.Close()
		if r := <-ch; r.conn != nil {
			r.conn.Close()
		}
		return nil, ctx.Err()
	}
}

func (l *TCPListener) Addr() string { return l.ln.Addr().String() }

func (l *TCPListener) Port() int {
	if addr, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (l *TCPListener) Close() error {
	if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
