package devicetransfer

import "time"

// TransportConfig contains configuration options for the transport layer.
type TransportConfig struct {
	// ConnectTimeout is the timeout for establishing a connection.
	ConnectTimeout time.Duration
	// HandshakeTimeout is the timeout for completing the handshake.
	HandshakeTimeout time.Duration
	// IdleTimeout fails a session whose peer stays silent this long.
	IdleTimeout time.Duration
	// KeepAliveInterval is the TCP keep-alive period.
	KeepAliveInterval time.Duration
	// MaxFrameSize bounds the body of one frame.
	MaxFrameSize int
}

// DefaultTransportConfig returns the default transport configuration.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout:    30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		KeepAliveInterval: 30 * time.Second,
		MaxFrameSize:      16 * 1024 * 1024, // 16 MB
	}
}

// Config contains configuration options for a transfer session.
type Config struct {
	// Transport contains transport-specific configuration.
	Transport TransportConfig
	// DecodeWorkers bounds concurrent record decoding on the receiver.
	DecodeWorkers int
	// QueueDepth is the number of received frames buffered ahead of the
	// commit stage.
	QueueDepth int
	// MaxMalformed is the number of malformed records tolerated before the
	// session fails.
	MaxMalformed int
	// CancelGrace bounds the close notification sent on cancel.
	CancelGrace time.Duration
	// Code is the pairing code both sides must present.
	Code string
	// DeviceID identifies the local device in the handshake.
	DeviceID string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Transport:     DefaultTransportConfig(),
		DecodeWorkers: 4,
		QueueDepth:    256,
		MaxMalformed:  100,
		CancelGrace:   2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Transport.ConnectTimeout <= 0 {
		c.Transport.ConnectTimeout = d.Transport.ConnectTimeout
	}
	if c.Transport.HandshakeTimeout <= 0 {
		c.Transport.HandshakeTimeout = d.Transport.HandshakeTimeout
	}
	if c.Transport.IdleTimeout <= 0 {
		c.Transport.IdleTimeout = d.Transport.IdleTimeout
	}
	if c.Transport.MaxFrameSize <= 0 {
		c.Transport.MaxFrameSize = d.Transport.MaxFrameSize
	}
	if c.DecodeWorkers <= 0 {
		c.DecodeWorkers = d.DecodeWorkers
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.MaxMalformed < 0 {
		c.MaxMalformed = 0
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = d.CancelGrace
	}
	return c
}
