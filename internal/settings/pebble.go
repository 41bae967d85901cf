package settings

import (
	"context"
	"errors"
	"os"

	"github.com/cockroachdb/pebble"
)

type pebbleBackend struct {
	db *pebble.DB
}

func OpenPebble(dir string) (Backend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &pebbleBackend{db: db}, nil
}

func (b *pebbleBackend) Get(_ context.Context, key string) (string, error) {
	value, closer, err := b.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	defer closer.Close()

	// value is only valid until closer is closed
	return string(value), nil
}

func (b *pebbleBackend) Set(_ context.Context, key string, value string) error {
	return b.db.Set([]byte(key), []byte(value), pebble.Sync)
}

func (b *pebbleBackend) Delete(_ context.Context, key string) error {
	return b.db.Delete([]byte(key), pebble.Sync)
}

func (b *pebbleBackend) Close() error {
	return b.db.Close()
}
