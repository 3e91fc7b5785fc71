package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/onnwee/blogcache/internal/kvstore"
	"github.com/onnwee/blogcache/internal/logger"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.EnablePersistence = false
	return cfg
}

func newTestManager(t *testing.T, cfg Config, clk *clock.Mock, opts ...Option) *Manager[[]byte] {
	t.Helper()
	base := []Option{
		WithSerializer[[]byte](BytesSerializer{}),
		WithClock(clk),
		WithLogger(logger.Discard()),
	}
	m := New[[]byte](cfg, append(base, opts...)...)
	t.Cleanup(m.Destroy)
	return m
}

func newTestStore(maxSize int64, clk clock.Clock) *store[[]byte] {
	cfg := testConfig()
	cfg.MaxTotalSize = maxSize
	return newStore[[]byte](cfg, DefaultCodec, BytesSerializer{}, clk, newStatsTracker("test"), logger.Discard())
}

func payload(n int) []byte {
	return []byte(strings.Repeat("x", n))
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// faultyBackend wraps a backend and fails writes on demand.
type faultyBackend struct {
	kvstore.Backend

	mu       sync.Mutex
	failPuts int   // number of upcoming Puts to fail; < 0 fails all
	err      error // returned by failed Puts
	puts     int

	failDeletes int // number of upcoming Deletes to fail
}

func (f *faultyBackend) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.puts++
	fail := f.failPuts != 0
	if f.failPuts > 0 {
		f.failPuts--
	}
	err := f.err
	f.mu.Unlock()

	if fail {
		if err == nil {
			err = errors.New("backend unavailable")
		}
		return err
	}
	return f.Backend.Put(ctx, key, value)
}

func (f *faultyBackend) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := f.failDeletes > 0
	if fail {
		f.failDeletes--
	}
	f.mu.Unlock()

	if fail {
		return errors.New("backend unavailable")
	}
	return f.Backend.Delete(ctx, key)
}

func (f *faultyBackend) setFailures(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPuts = n
	f.err = err
}
