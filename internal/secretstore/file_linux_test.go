//go:build linux

package secretstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "secrets")
	s := NewFileStore(dir)

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put("devxfer_session_1", []byte("secret")))

	info, err := os.Stat(filepath.Join(dir, "devxfer_session_1"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := s.Get("devxfer_session_1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)

	require.NoError(t, s.Delete("devxfer_session_1"))
	require.NoError(t, s.Delete("devxfer_session_1"))
}
