// Package secretstore keeps transfer secrets out of the chat database.
// A sending device keeps one secret, shows it to the user (QR code or text)
// and reuses it until rotated. A receiving device remembers the secret of
// each peer device it was given.
package secretstore

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when no secret exists under the name.
var ErrNotFound = errors.New("secret not found")

type Store interface {
	Put(name string, data []byte) error
	Get(name string) ([]byte, error)
	Delete(name string) error
}

var Default Store = NewMemory() // replaced in init of each platform file

type memoryStore struct {
	mu      sync.Mutex
	secrets map[string][]byte
}

// NewMemory returns a process-local store.
func NewMemory() Store {
	return &memoryStore{secrets: make(map[string][]byte)}
}

func (m *memoryStore) Put(n string, d []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[n] = append([]byte(nil), d...)
	return nil
}

func (m *memoryStore) Get(n string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.secrets[n]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (m *memoryStore) Delete(n string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, n)
	return nil
}
