package secretstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	s := NewMemory()
	const name = "devxfer_session_1"
	secret := []byte("hunter2")

	require.NoError(t, s.Put(name, secret))
	secret[0] = 'X' // callers may reuse their buffer

	got, err := s.Get(name)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(got))

	require.NoError(t, s.Delete(name))
	_, err = s.Get(name)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(name), "deleting twice is fine")
}
