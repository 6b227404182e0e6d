// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleSlot stores values in a Pebble database directory. Every write is
// synced before returning.
type PebbleSlot struct {
	db *pebble.DB
}

// OpenPebbleSlot opens (or creates) the Pebble database at dir.
func OpenPebbleSlot(dir string) (*PebbleSlot, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}
	return &PebbleSlot{db: db}, nil
}

// Get reads the value for key.
func (s *PebbleSlot) Get(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot %s: %w", key, err)
	}
	// v is only valid until closer.Close
	out := append([]byte(nil), v...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// Put writes the value.
func (s *PebbleSlot) Put(key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write slot %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *PebbleSlot) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", key, err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *PebbleSlot) Close() error {
	return s.db.Close()
}
