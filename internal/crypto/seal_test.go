package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := Generate(KeySize)
	require.NoError(t, err)

	testCases := []struct {
		name      string
		plaintext []byte
	}{
		{name: "Empty frame", plaintext: []byte{}},
		{name: "Command frame", plaintext: []byte(`{"action":"start","total":3}`)},
		{name: "Large frame", plaintext: bytes.Repeat([]byte("0123456789"), 10000)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			aad := []byte{0x02}
			sealed, err := Seal(key, tc.plaintext, aad)
			require.NoError(t, err)
			if len(tc.plaintext) > 0 {
				assert.NotContains(t, string(sealed), string(tc.plaintext))
			}

			opened, err := Open(key, sealed, aad)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, opened)
		})
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	key, err := Generate(KeySize)
	require.NoError(t, err)
	other, err := Generate(KeySize)
	require.NoError(t, err)

	sealed, err := Seal(key, []byte("participant"), []byte{0x02})
	require.NoError(t, err)

	_, err = Open(other, sealed, []byte{0x02})
	assert.ErrorIs(t, err, ErrInvalidData, "wrong key")

	_, err = Open(key, sealed, []byte{0x01})
	assert.ErrorIs(t, err, ErrInvalidData, "frame type swapped")

	flipped := append([]byte(nil), sealed...)
	flipped[len(flipped)-1] ^= 0xff
	_, err = Open(key, flipped, []byte{0x02})
	assert.ErrorIs(t, err, ErrInvalidData, "flipped bit")

	_, err = Open(key, sealed[:5], []byte{0x02})
	assert.ErrorIs(t, err, ErrInvalidData, "truncated")
}

func TestDeriveFrameKey(t *testing.T) {
	secret := []byte("shared transfer secret")

	k1, err := DeriveFrameKey(secret, nil)
	require.NoError(t, err)
	require.Len(t, k1, KeySize)

	k2, err := DeriveFrameKey(secret, nil)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "derivation must be deterministic")

	k3, err := DeriveFrameKey(secret, []byte("salt"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	_, err = DeriveFrameKey(nil, nil)
	assert.Error(t, err)
}

func TestSecretEncoding(t *testing.T) {
	secret, err := Generate(KeySize)
	require.NoError(t, err)

	decoded, err := DecodeSecret(EncodeSecret(secret))
	require.NoError(t, err)
	assert.Equal(t, secret, decoded)

	_, err = DecodeSecret("not base64!")
	assert.Error(t, err)
}
