package deviceid

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devxfer/devxfer/internal/migrations"
)

func TestNew(t *testing.T) {
	id1 := New()
	id2 := New()

	assert.NotEqual(t, id1, id2)
	assert.Len(t, id1, 36)
	assert.True(t, Valid(id1))
	assert.False(t, Valid("not-a-uuid"))
}

func TestSecretName(t *testing.T) {
	assert.Equal(t, "devxfer_pair_12345678-1234-1234-1234-123456789012",
		SecretName("12345678-1234-1234-1234-123456789012"))
}

func TestEnsure(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.BootstrapChat(db))

	_, err = Get(db)
	assert.ErrorIs(t, err, ErrNoDeviceID)

	id1, err := Ensure(db)
	require.NoError(t, err)
	assert.True(t, Valid(id1))

	id2, err := Ensure(db)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "device id must be stable")

	got, err := Get(db)
	require.NoError(t, err)
	assert.Equal(t, id1, got)
}
