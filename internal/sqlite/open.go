package sqlite

import (
	"database/sql"
	"fmt"

	// Ensure the driver is imported. The name "_" means we only want its side effects (registering the driver).
	_ "github.com/mattn/go-sqlite3"
)

// Open returns a handle to a potentially non-existent SQLite database file.
// Creates the file if it does not exist. The database runs in WAL journal mode
// so a transfer session can write while the sender side walks tables.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL",
		path,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open failed: %w", err)
	}

	// Ping to verify the connection is alive immediately after opening.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping failed after open: %w", err)
	}

	return db, nil
}
