package devicetransfer

import (
	"context"
	"errors"

	"github.com/devxfer/devxfer/internal/crypto"
)

// SealedTransport encrypts every frame body of an inner transport with
// AES-GCM. The frame type byte is authenticated as additional data.
type SealedTransport struct {
	Transport
	key []byte
}

// NewSealedTransport derives the frame key from secret and wraps t.
func NewSealedTransport(t Transport, secret []byte) (*SealedTransport, error) {
	key, err := crypto.DeriveFrameKey(secret, nil)
	if err != nil {
		return nil, err
	}
	return &SealedTransport{Transport: t, key: key}, nil
}

// SealDialer wraps every transport d opens.
func SealDialer(d Dialer, secret []byte) Dialer {
	return func(ctx context.Context) (Transport, error) {
		t, err := d(ctx)
		if err != nil {
			return nil, err
		}
		st, err := NewSealedTransport(t, secret)
		if err != nil {
			t.Close()
			return nil, err
		}
		return st, nil
	}
}

// SealListener wraps every transport ln accepts.
func SealListener(ln Listener, secret []byte) Listener {
	return &sealedListener{Listener: ln, secret: secret}
}

type sealedListener struct {
	Listener
	secret []byte
}

func (l *sealedListener) Accept(ctx context.Context) (Transport, error) {
	t, err := l.Listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	st, err := NewSealedTransport(t, l.secret)
	if err != nil {
		t.Close()
		return nil, err
	}
	return st, nil
}

func (t *SealedTransport) Send(ctx context.Context, frameType byte, body []byte) error {
	sealed, err := crypto.Seal(t.key, body, []byte{frameType})
	if err != nil {
		return err
	}
	return t.Transport.Send(ctx, frameType, sealed)
}

func (t *SealedTransport) Receive(ctx context.Context) (byte, []byte, error) {
	frameType, sealed, err := t.Transport.Receive(ctx)
	if err != nil {
		return 0, nil, err
	}
	body, err := crypto.Open(t.key, sealed, []byte{frameType})
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidData) {
			return 0, nil, &IntegrityError{Reason: "frame authentication failed"}
		}
		return 0, nil, err
	}
	return frameType, body, nil
}
