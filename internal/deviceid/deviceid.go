// Package deviceid identifies this installation in device transfer handshakes
// and names transfer sessions.
package deviceid

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// MetadataTableName is the chat database table holding installation metadata.
	MetadataTableName = "metadata"

	// DeviceIDKey is the metadata key of the device UUID.
	DeviceIDKey = "device_id"

	// SecretNamePrefix prefixes secret store entries holding transfer secrets.
	SecretNamePrefix = "devxfer_pair_"
)

// ErrNoDeviceID is returned when the metadata table has no device id yet.
var ErrNoDeviceID = errors.New("device id not found")

// New returns a random UUID string.
func New() string {
	return uuid.New().String()
}

// Valid reports whether s is a well-formed UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// SecretName formats the secret store entry name of the transfer secret
// paired with a device.
func SecretName(deviceID string) string {
	return SecretNamePrefix + deviceID
}

// Get reads the device id from the metadata table.
func Get(db *sql.DB) (string, error) {
	var id string
	err := db.QueryRow("SELECT value FROM "+MetadataTableName+" WHERE key = ?", DeviceIDKey).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoDeviceID
		}
		return "", fmt.Errorf("failed to query device id: %w", err)
	}
	return id, nil
}

// Ensure returns the stored device id, generating and storing one on first use.
// The metadata table must exist (see migrations.BootstrapChat).
func Ensure(db *sql.DB) (string, error) {
	id, err := Get(db)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNoDeviceID) {
		return "", err
	}

	id = New()
	_, err = db.Exec("INSERT OR IGNORE INTO "+MetadataTableName+" (key, value) VALUES (?, ?)", DeviceIDKey, id)
	if err != nil {
		return "", fmt.Errorf("failed to store device id: %w", err)
	}
	// Another writer may have won the race; read back the stored value.
	return Get(db)
}
