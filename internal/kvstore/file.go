package kvstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const fileExt = ".rec"

// File is a backend that keeps one file per key under a directory.
// Writes go to a temporary file which is synced and renamed into place, so a crash never
// leaves a half-written record behind.
type File struct {
	dir      string
	capacity int64

	mu     sync.Mutex
	sizes  map[string]int64 // key -> record size
	used   int64
	closed bool
}

// OpenFile opens (creating if needed) a file backend rooted at dir.
// A capacity <= 0 means unlimited.
func OpenFile(dir string, capacity int64) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	f := &File{
		dir:      dir,
		capacity: capacity,
		sizes:    make(map[string]int64),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key, err := decodeFileName(name)
		if err != nil {
			// Not ours
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		size := int64(len(key)) + info.Size()
		f.sizes[key] = size
		f.used += size
	}
	return f, nil
}

func encodeFileName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + fileExt
}

func decodeFileName(name string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, encodeFileName(key))
}

// Get reads the record stored under key.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return data, nil
}

// Put atomically replaces the record stored under key.
func (f *File) Put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	size := recordSize(key, value)
	used := f.used - f.sizes[key] + size
	if f.capacity > 0 && used > f.capacity {
		return ErrQuotaExceeded
	}

	target := f.path(key)
	tmpPath := target + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create record file: %w", err)
	}
	if _, err := file.Write(value); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close record file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}

	f.sizes[key] = size
	f.used = used
	return nil
}

// Delete removes the record stored under key.
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove record: %w", err)
	}
	f.used -= f.sizes[key]
	delete(f.sizes, key)
	return nil
}

// Keys lists keys with the given prefix in lexical order.
func (f *File) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(f.sizes))
	for k := range f.sizes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close marks the backend closed. Files stay on disk.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
