package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devxfer/devxfer/internal/crypto"
	"github.com/devxfer/devxfer/internal/deviceid"
	"github.com/devxfer/devxfer/internal/devicetransfer"
	"github.com/devxfer/devxfer/internal/secretstore"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local/share/devxfer/chat.db"), expandPath(DefaultDBPath))
	assert.Equal(t, "/tmp/chat.db", expandPath("/tmp/chat.db"))
	assert.Equal(t, "", expandPath(""))
}

func TestOpenChatAssignsDeviceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat.db")
	db, err := openChat(path)
	require.NoError(t, err)

	id, err := deviceid.Ensure(db)
	require.NoError(t, err)
	assert.True(t, deviceid.Valid(id))
	require.NoError(t, db.Close())

	db, err = openChat(path)
	require.NoError(t, err)
	defer db.Close()
	again, err := deviceid.Get(db)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://10.0.0.2:7420/transfer", wsURL("10.0.0.2:7420"))
	assert.Equal(t, "wss://example.com/x", wsURL("wss://example.com/x"))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, "3/10", progress(devicetransfer.SessionInfo{Processed: 3, Total: 10}))
	assert.Equal(t, "3/?", progress(devicetransfer.SessionInfo{Processed: 3, Total: devicetransfer.UnknownTotal}))
}

func TestPairingSecret(t *testing.T) {
	store := secretstore.NewMemory()
	id := deviceid.New()

	first, err := pairingSecret(store, id, "", false)
	require.NoError(t, err)
	assert.Len(t, first, crypto.KeySize)

	again, err := pairingSecret(store, id, "", false)
	require.NoError(t, err)
	assert.Equal(t, first, again, "stored secret must be reused")

	rotated, err := pairingSecret(store, id, "", true)
	require.NoError(t, err)
	assert.NotEqual(t, first, rotated)

	given, err := crypto.Generate(crypto.KeySize)
	require.NoError(t, err)
	got, err := pairingSecret(store, id, crypto.EncodeSecret(given), false)
	require.NoError(t, err)
	assert.Equal(t, given, got)

	stored, err := store.Get(deviceid.SecretName(id))
	require.NoError(t, err)
	assert.Equal(t, given, stored)
}

func TestPeerSecret(t *testing.T) {
	store := secretstore.NewMemory()
	peer := deviceid.New()

	_, err := peerSecret(store, peer, "")
	assert.Error(t, err)
	_, err = peerSecret(store, "", "")
	assert.Error(t, err)

	secret, err := crypto.Generate(crypto.KeySize)
	require.NoError(t, err)
	got, err := peerSecret(store, peer, crypto.EncodeSecret(secret))
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	remembered, err := peerSecret(store, peer, "")
	require.NoError(t, err)
	assert.Equal(t, secret, remembered)

	_, err = peerSecret(store, "", "not base64!")
	assert.Error(t, err)
}
