package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // Import SQLite driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), name))
	require.NoError(t, err, "Opening database failed")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunnerAppliesInVersionOrder(t *testing.T) {
	db := openTestDB(t, "runner.db")

	runner := NewRunner(db)
	// Registered out of order on purpose: 2 depends on 1.
	runner.AddMigration(2, "Add column", `ALTER TABLE items ADD COLUMN note TEXT`)
	runner.AddMigration(1, "Create items", `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)

	require.NoError(t, runner.Run())

	version, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.Exec("INSERT INTO items (id, name, note) VALUES (1, 'a', 'b')")
	require.NoError(t, err)

	// Rerun is a no-op.
	require.NoError(t, runner.Run())
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count))
	assert.Equal(t, 2, count)

	runner.AddMigration(3, "Add index", `CREATE INDEX idx_items_name ON items(name)`)
	require.NoError(t, runner.Run())
	version, err = runner.Version()
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestRunnerRollsBackFailedMigration(t *testing.T) {
	db := openTestDB(t, "broken.db")

	runner := NewRunner(db)
	runner.AddMigration(1, "Create items", `CREATE TABLE items (id INTEGER PRIMARY KEY)`)
	runner.AddMigration(2, "Broken", `ALTER TABLE nope ADD COLUMN x TEXT`)

	err := runner.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")

	version, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestFreshDatabaseVersion(t *testing.T) {
	db := openTestDB(t, "fresh.db")
	version, err := NewRunner(db).Version()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestBootstrapChat(t *testing.T) {
	db := openTestDB(t, "chat.db")

	require.NoError(t, BootstrapChat(db))
	require.NoError(t, BootstrapChat(db), "Bootstrapping twice should be a no-op")

	for _, table := range []string{
		"conversations", "participants", "users", "assets", "snapshots", "stickers",
		"pin_messages", "transcript_messages", "messages", "expired_messages", "metadata",
	} {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		require.NoError(t, err, "table %s", table)
		assert.Equal(t, 0, count, "table %s", table)
	}

	// Stickers get a creation timestamp from the database.
	_, err := db.Exec(`INSERT INTO stickers (sticker_id, name, asset_url, asset_type, asset_width, asset_height)
		VALUES ('s1', 'wave', 'https://example.com/s1.webp', 'webp', 128, 128)`)
	require.NoError(t, err)
	var createdAt string
	require.NoError(t, db.QueryRow("SELECT created_at FROM stickers WHERE sticker_id = 's1'").Scan(&createdAt))
	assert.NotEmpty(t, createdAt)
}

func TestBootstrapJournal(t *testing.T) {
	db := openTestDB(t, "journal.db")
	require.NoError(t, BootstrapJournal(db))

	_, err := db.Exec("INSERT INTO sessions (id, direction, state) VALUES ('s', 'receive', 'preparing')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO records (session_id, record_type, record_id, outcome) VALUES ('s', 'participant', 'c:u', 'applied')")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM records WHERE session_id = 's'").Scan(&count))
	assert.Equal(t, 1, count)
}
