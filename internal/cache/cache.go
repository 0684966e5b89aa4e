package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Key names one persisted JSON blob.
type Key string

const (
	KeyOrders          Key = "orders"
	KeyAnimationConfig Key = "animation_config"
)

// Store keeps one JSON document per key under a directory on local disk.
// Reads never fail loudly: a missing or unreadable blob is reported as absent.
type Store struct {
	dir    string
	logger *log.Logger

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

func NewStore(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %q: %w", abs, err)
	}
	logger.Printf("Cache directory: %v", abs)

	return &Store{
		dir:    abs,
		logger: logger,
		locks:  make(map[Key]*sync.Mutex),
	}, nil
}

// Dir returns the resolved on-disk location.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key Key) string {
	return filepath.Join(s.dir, string(key)+".json")
}

// Lock acquires the single-writer lock for key and returns its release func.
// Every read-modify-write cycle on a key must run under it.
func (s *Store) Lock(key Key) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Exists reports whether a blob was ever written for key.
func (s *Store) Exists(key Key) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Load returns the raw stored document for key, or false when there is none
// or it cannot be read.
func (s *Store) Load(key Key) (json.RawMessage, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Printf("Failed to read cache %v: %v", key, err)
		}
		return nil, false
	}
	if !json.Valid(data) {
		s.logger.Printf("Cache %v holds invalid JSON, treating as absent", key)
		return nil, false
	}
	return json.RawMessage(data), true
}

// LoadInto decodes the stored document for key into v.
func (s *Store) LoadInto(key Key, v any) bool {
	raw, ok := s.Load(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Printf("Failed to decode cache %v: %v", key, err)
		return false
	}
	return true
}

// Save replaces the blob for key with value. An empty order list is only
// written when a blob for it already exists; otherwise the call is a no-op.
func (s *Store) Save(key Key, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache %v: %w", key, err)
	}

	if key == KeyOrders && isEmptyCollection(data) {
		if !s.Exists(key) {
			s.logger.Printf("Skipping write of empty %v cache: no prior cache file", key)
			return nil
		}
		data = []byte("[]")
	}

	if err := s.writeFile(s.path(key), data); err != nil {
		return fmt.Errorf("write cache %v: %w", key, err)
	}
	return nil
}

// writeFile replaces path atomically: readers see the old or the new content.
func (s *Store) writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func isEmptyCollection(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return false
	}
	return len(bytes.TrimSpace(trimmed[1:len(trimmed)-1])) == 0
}
