package devicetransfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSPath is the HTTP path a WSListener upgrades.
const WSPath = "/transfer"

// WSTransport carries one frame per binary WebSocket message as
// type(1) | body. The WebSocket layer provides length and integrity.
type WSTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// NewWSTransport wraps an upgraded connection.
func NewWSTransport(conn *websocket.Conn, config TransportConfig) *WSTransport {
	if config.MaxFrameSize > 0 {
		conn.SetReadLimit(int64(config.MaxFrameSize) + 1)
	}
	return &WSTransport{conn: conn}
}

// DialWS returns a Dialer for a ws:// URL.
func DialWS(url string, config TransportConfig) Dialer {
	return func(ctx context.Context) (Transport, error) {
		dialer := websocket.Dialer{HandshakeTimeout: config.ConnectTimeout}
		conn, resp, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				body, _ := io.ReadAll(resp.Body)
				_ = resp.Body.Close()
				return nil, &TransportError{Op: "dial", Err: fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, body)}
			}
			return nil, &TransportError{Op: "dial", Err: err}
		}
		return NewWSTransport(conn, config), nil
	}
}

func (t *WSTransport) Send(ctx context.Context, frameType byte, body []byte) error {
	msg := make([]byte, 1+len(body))
	msg[0] = frameType
	copy(msg[1:], body)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	stop := watchDeadline(ctx, t.conn.SetWriteDeadline)
	defer stop()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return wsError(ctx, "send", err)
	}
	return nil
}

func (t *WSTransport) Receive(ctx context.Context) (byte, []byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	stop := watchDeadline(ctx, t.conn.SetReadDeadline)
	defer stop()
	for {
		messageType, msg, err := t.conn.ReadMessage()
		if err != nil {
			return 0, nil, wsError(ctx, "receive", err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 {
			return 0, nil, &IntegrityError{Reason: "empty websocket frame"}
		}
		return msg[0], msg[1:], nil
	}
}

func (t *WSTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close websocket: %w", err)
	}
	return nil
}

func (t *WSTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func wsError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		err = io.EOF
	case errors.Is(err, net.ErrClosed):
		err = ErrTransportClosed
	}
	return &TransportError{Op: op, Err: err}
}

// WSListener upgrades the first request on WSPath into a session transport.
// It is an http.Handler so it can be mounted on any server.
type WSListener struct {
	config   TransportConfig
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
	ln       net.Listener
	srv      *http.Server
}

// NewWSListener returns a handler-only listener.
func NewWSListener(config TransportConfig) *WSListener {
	return &WSListener{
		config: config,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: config.HandshakeTimeout,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		conns: make(chan *websocket.Conn, 1),
	}
}

// ListenWS serves a WSListener on addr.
func ListenWS(addr string, config TransportConfig) (*WSListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}
	l := NewWSListener(config)
	l.ln = ln
	l.srv = &http.Server{Handler: l, ReadHeaderTimeout: config.HandshakeTimeout}
	go l.srv.Serve(ln)
	return l, nil
}

func (l *WSListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != WSPath {
		http.NotFound(w, r)
		return
	}
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	select {
	case l.conns <- conn:
	default:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "busy"), time.Now().Add(time.Second))
		conn.Close()
	}
}

func (l *WSListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case conn := <-l.conns:
		return NewWSTransport(conn, l.config), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *WSListener) Addr() string {
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

func (l *WSListener) Port() int {
	if l.ln == nil {
		return 0
	}
	if addr, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (l *WSListener) Close() error {
	if l.srv == nil {
		return nil
	}
	if err := l.srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
