package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const frameKeyInfo = "devxfer frame key"

// Generate returns n random bytes.
func Generate(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	return buf, err
}

// DeriveFrameKey expands the shared transfer secret into the AES key used to
// seal frames. salt may be nil.
func DeriveFrameKey(secret, salt []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty transfer secret")
	}
	r := hkdf.New(sha256.New, secret, salt, []byte(frameKeyInfo))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("failed to derive frame key: %w", err)
	}
	return out, nil
}

// EncodeSecret renders a secret for display or a QR payload.
func EncodeSecret(secret []byte) string {
	return base64.RawURLEncoding.EncodeToString(secret)
}

// DecodeSecret parses a secret produced by EncodeSecret.
func DecodeSecret(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid transfer secret: %w", err)
	}
	return b, nil
}
