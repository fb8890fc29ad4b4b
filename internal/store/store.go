// Package store persists one JSON document per key. Every mutation is a
// whole-document replace; there are no field-level updates, so callers
// serialize concurrent writers to the same key themselves.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by Read when no document exists under the key.
var ErrNotFound = errors.New("document not found")

// Store is the document storage contract shared by all backends.
type Store interface {
	// Read unmarshals the document stored under key into dest.
	// Returns ErrNotFound for a missing document; a corrupt document
	// returns a wrapped parse error. Callers substitute their default.
	Read(ctx context.Context, key string, dest any) error
	// Write replaces the document under key. Readers never observe a
	// partial write.
	Write(ctx context.Context, key string, v any) error
}

// File stores each document as a pretty-printed JSON file under a directory.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates the data directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Read loads and unmarshals the document file.
func (f *File) Read(_ context.Context, key string, dest any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

// Write keeps a .backup copy of the previous content, then writes a temp
// file and renames it over the document so readers never see a torn write.
func (f *File) Write(_ context.Context, key string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	path := f.path(key)
	if _, err := os.Stat(path); err == nil {
		_ = copyFile(path, path+".backup")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// Memory is a map-backed store for tests and dev.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

// Read unmarshals the stored document into dest.
func (m *Memory) Read(_ context.Context, key string, dest any) error {
	m.mu.RLock()
	data, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

// Write replaces the stored document.
func (m *Memory) Write(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.docs[key] = data
	m.mu.Unlock()
	return nil
}
