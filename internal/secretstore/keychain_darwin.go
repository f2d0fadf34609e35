//go:build darwin

package secretstore

import (
	"errors"

	"github.com/zalando/go-keyring"
)

func init() { Default = keyringStore("devxfer") }

type keyringStore string

func (k keyringStore) Put(n string, d []byte) error { return keyring.Set(string(k), n, string(d)) }

func (k keyringStore) Get(n string) ([]byte, error) {
	s, err := keyring.Get(string(k), n)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	return []byte(s), err
}

func (k keyringStore) Delete(n string) error {
	err := keyring.Delete(string(k), n)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
