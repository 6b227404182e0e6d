// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrNotFound is returned by Slot.Get when the key holds no value.
var ErrNotFound = errors.New("slot value not found")

// ErrInvalidKey is returned for keys that are empty or contain characters
// outside [A-Za-z0-9._-].
var ErrInvalidKey = errors.New("invalid slot key")

// Slot is a minimal durable key-value store. Values are opaque bytes and a
// Put replaces the previous value in full.
type Slot interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Backend names a Slot implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendPebble Backend = "pebble"
)

// Backends lists every supported backend name.
var Backends = []Backend{BackendFile, BackendSQLite, BackendPebble}

// ParseBackend converts a config string to a Backend. Empty means file.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendFile, nil
	case BackendFile, BackendSQLite, BackendPebble:
		return b, nil
	default:
		return "", fmt.Errorf("unknown storage backend %q", s)
	}
}

// Open creates the slot for a backend rooted at dir. The directory is
// created if needed.
func Open(backend Backend, dir string) (Slot, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	switch backend {
	case BackendFile, "":
		return NewFileSlot(dir)
	case BackendSQLite:
		return OpenSQLiteSlot(filepath.Join(dir, "history.db"))
	case BackendPebble:
		return OpenPebbleSlot(filepath.Join(dir, "pebble"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// DefaultDir returns ~/.aidchat/history.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".aidchat", "history")
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// SECURITY: keys become file names for the file backend
func checkKey(key string) error {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
