package cache

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/onnwee/blogcache/internal/logger"
)

func TestStore_SetAndGet(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(1000, clk)

	if _, err := s.set("k", []byte("value"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, ok := s.get("k")
	if !ok {
		t.Fatal("Expected to find k")
	}
	if string(got) != "value" {
		t.Errorf("Expected value, got %s", got)
	}

	e := s.entries["k"]
	if e.AccessCount != 1 {
		t.Errorf("Expected access count 1, got %d", e.AccessCount)
	}
	if e.Size != 5 {
		t.Errorf("Expected size 5, got %d", e.Size)
	}
}

func TestStore_TTL(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		want    bool
	}{
		{"before expiry", 59 * time.Second, true},
		{"at expiry instant", time.Minute, false},
		{"after expiry", 2 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewMock()
			s := newTestStore(1000, clk)
			if _, err := s.set("k", []byte("v"), time.Minute); err != nil {
				t.Fatalf("set failed: %v", err)
			}

			clk.Add(tt.advance)
			_, ok := s.get("k")
			if ok != tt.want {
				t.Errorf("get() found = %v, want %v", ok, tt.want)
			}
			if !tt.want {
				if _, still := s.entries["k"]; still {
					t.Error("Expected expired entry to be removed on read")
				}
				if s.totalSize != 0 {
					t.Errorf("Expected total size 0, got %d", s.totalSize)
				}
			}
		})
	}
}

func TestStore_DefaultTTL(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(1000, clk)

	e, err := s.set("k", []byte("v"), 0)
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if e.TTL != 5*time.Minute {
		t.Errorf("Expected default TTL 5m, got %v", e.TTL)
	}
}

func TestStore_ReplaceAdjustsSize(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(1000, clk)

	s.set("k", payload(300), time.Minute)
	s.set("k", payload(100), time.Minute)

	if s.totalSize != 100 {
		t.Errorf("Expected total size 100, got %d", s.totalSize)
	}
	if len(s.entries) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(s.entries))
	}
	if s.stats.entries != 1 || s.stats.size != 100 {
		t.Errorf("Expected stats 1 entry/100 bytes, got %d/%d", s.stats.entries, s.stats.size)
	}
}

func TestStore_OversizedEntryRejected(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(100, clk)

	s.set("k", payload(50), time.Minute)
	_, err := s.set("k", payload(101), time.Minute)
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("Expected ErrEntryTooLarge, got %v", err)
	}
	if _, ok := s.get("k"); ok {
		t.Error("Expected previous value to be gone after a rejected replace")
	}
	if s.totalSize != 0 {
		t.Errorf("Expected total size 0, got %d", s.totalSize)
	}
}

func TestStore_Compression(t *testing.T) {
	clk := clock.NewMock()
	cfg := testConfig()
	cfg.CompressionThreshold = 100
	s := newStore[[]byte](cfg, DefaultCodec, BytesSerializer{}, clk, newStatsTracker("test"), logger.Discard())

	big := payload(5000)
	e, err := s.set("big", big, time.Minute)
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if !e.Compressed {
		t.Fatal("Expected payload above threshold to be compressed")
	}
	if e.Size != 5000 {
		t.Errorf("Expected size to be the uncompressed length 5000, got %d", e.Size)
	}
	if len(e.Data) >= 5000 {
		t.Errorf("Expected compressed data to be smaller, got %d bytes", len(e.Data))
	}

	got, ok := s.get("big")
	if !ok || string(got) != string(big) {
		t.Error("Expected compressed entry to round-trip")
	}

	small, _ := s.set("small", payload(100), time.Minute)
	if small.Compressed {
		t.Error("Expected payload at the threshold to stay uncompressed")
	}
}

func TestStore_CorruptPayloadIsMiss(t *testing.T) {
	clk := clock.NewMock()
	cfg := testConfig()
	cfg.CompressionThreshold = 10
	s := newStore[[]byte](cfg, DefaultCodec, BytesSerializer{}, clk, newStatsTracker("test"), logger.Discard())

	s.set("k", payload(500), time.Minute)
	s.entries["k"].Data = []byte{}

	var dropped []string
	s.onDrop = func(key string) { dropped = append(dropped, key) }

	if _, ok := s.get("k"); ok {
		t.Fatal("Expected corrupt entry to read as a miss")
	}
	if _, still := s.entries["k"]; still {
		t.Error("Expected corrupt entry to be dropped")
	}
	if s.stats.corrupt != 1 || s.stats.misses != 1 {
		t.Errorf("Expected 1 corrupt and 1 miss, got %d and %d", s.stats.corrupt, s.stats.misses)
	}
	if len(dropped) != 1 || dropped[0] != "k" {
		t.Errorf("Expected onDrop for k, got %v", dropped)
	}
}

func TestStore_ExampleScenario(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(1000, clk)

	for _, key := range []string{"a", "b", "c", "d"} {
		if _, err := s.set(key, payload(400), time.Minute); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}

	if s.has("a") {
		t.Error("Expected a to be evicted")
	}
	for _, key := range []string{"b", "c", "d"} {
		if !s.has(key) {
			t.Errorf("Expected %s to be present", key)
		}
	}
	if s.totalSize > 1000 {
		t.Errorf("Size invariant violated: %d", s.totalSize)
	}
}

func TestStore_EvictionOrder(t *testing.T) {
	tests := []struct {
		name     string
		newSize  int
		evicted  []string
		retained []string
	}{
		{"expired entry covers the need", 400, []string{"A"}, []string{"B", "C"}},
		{"falls through to least recently used", 700, []string{"A", "B"}, []string{"C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewMock()
			s := newTestStore(1000, clk)

			// A expires at t0+1s. B is read at t1, C at t2.
			s.set("A", payload(300), time.Second)
			s.set("C", payload(300), time.Hour)
			s.set("B", payload(300), time.Hour)
			clk.Add(2 * time.Second)
			s.entries["B"].LastAccessedAt = clk.Now()
			clk.Add(time.Second)
			s.get("C")

			if _, err := s.set("new", payload(tt.newSize), time.Hour); err != nil {
				t.Fatalf("set failed: %v", err)
			}

			for _, key := range tt.evicted {
				if _, ok := s.entries[key]; ok {
					t.Errorf("Expected %s to be evicted", key)
				}
			}
			for _, key := range tt.retained {
				if _, ok := s.entries[key]; !ok {
					t.Errorf("Expected %s to be retained", key)
				}
			}
			if got := s.stats.evictions; got != int64(len(tt.evicted)) {
				t.Errorf("Expected %d evictions, got %d", len(tt.evicted), got)
			}
		})
	}
}

func TestStore_EvictionTieBreaksOnInsertionOrder(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(600, clk)

	s.set("first", payload(200), time.Hour)
	s.set("second", payload(200), time.Hour)
	s.set("third", payload(200), time.Hour)
	s.set("fourth", payload(200), time.Hour)

	if s.has("first") {
		t.Error("Expected the earliest inserted entry to go first on equal recency")
	}
	if !s.has("second") {
		t.Error("Expected second to be retained")
	}
}

func TestStore_EvictsAllExpiredFirst(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(1000, clk)

	s.set("old1", payload(100), time.Second)
	s.set("old2", payload(100), time.Second)
	s.set("live", payload(700), time.Hour)
	clk.Add(2 * time.Second)

	// Needs 50 bytes; both expired entries still go.
	s.set("new", payload(150), time.Hour)

	if len(s.entries) != 2 {
		t.Errorf("Expected live and new to remain, got %d entries", len(s.entries))
	}
	if s.stats.evictions != 2 {
		t.Errorf("Expected 2 evictions, got %d", s.stats.evictions)
	}
}

func TestStore_EvictsExpiredBeforeOlderLive(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(1000, clk)

	s.set("a", payload(300), time.Hour)
	s.set("b", payload(300), time.Hour)
	s.set("recent", payload(300), 2*time.Second)
	clk.Add(time.Second)
	if _, ok := s.get("recent"); !ok {
		t.Fatal("Expected recent to be readable before it expires")
	}
	clk.Add(2 * time.Second)

	// recent has the newest access time but is expired, so it goes instead of a.
	if _, err := s.set("new", payload(400), time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if _, ok := s.entries["recent"]; ok {
		t.Error("Expected expired recent to be evicted")
	}
	for _, key := range []string{"a", "b", "new"} {
		if _, ok := s.entries[key]; !ok {
			t.Errorf("Expected %s to be retained", key)
		}
	}
	if s.stats.evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", s.stats.evictions)
	}
}

func TestStore_SweepExpired(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(1000, clk)

	s.set("short", payload(10), time.Second)
	s.set("long", payload(10), time.Hour)
	clk.Add(time.Second)

	var dropped []string
	s.onDrop = func(key string) { dropped = append(dropped, key) }

	if n := s.sweepExpired(); n != 1 {
		t.Errorf("Expected 1 swept entry, got %d", n)
	}
	if s.stats.expired != 1 {
		t.Errorf("Expected expired count 1, got %d", s.stats.expired)
	}
	if s.stats.evictions != 0 {
		t.Errorf("Expected sweeps not to count as evictions, got %d", s.stats.evictions)
	}
	if len(dropped) != 1 || dropped[0] != "short" {
		t.Errorf("Expected short to be dropped, got %v", dropped)
	}
	if got := s.keys(); len(got) != 1 || got[0] != "long" {
		t.Errorf("Expected keys [long], got %v", got)
	}
}

func TestStore_SizeInvariant(t *testing.T) {
	clk := clock.NewMock()
	const maxSize = 2000
	s := newTestStore(maxSize, clk)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		key := string(rune('a' + rng.Intn(20)))
		switch rng.Intn(5) {
		case 0:
			s.delete(key)
		case 1:
			s.sweepExpired()
		default:
			s.set(key, payload(rng.Intn(900)+1), time.Duration(rng.Intn(10)+1)*time.Second)
		}
		clk.Add(time.Duration(rng.Intn(500)) * time.Millisecond)

		var sum int64
		for _, e := range s.entries {
			sum += e.Size
		}
		if sum != s.totalSize {
			t.Fatalf("step %d: tracked size %d, actual %d", i, s.totalSize, sum)
		}
		if sum > maxSize {
			t.Fatalf("step %d: size %d exceeds %d", i, sum, maxSize)
		}
		if s.stats.size != sum || s.stats.entries != int64(len(s.entries)) {
			t.Fatalf("step %d: stats %d/%d, actual %d/%d", i, s.stats.entries, s.stats.size, len(s.entries), sum)
		}
	}
}

func TestStore_Clear(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(1000, clk)

	s.set("a", payload(10), time.Minute)
	s.get("a")
	s.get("missing")
	s.clear()

	snap := s.stats.snapshot()
	if snap.TotalEntries != 0 || snap.TotalSizeBytes != 0 {
		t.Errorf("Expected empty occupancy, got %+v", snap)
	}
	if snap.HitCount != 1 || snap.MissCount != 1 {
		t.Errorf("Expected cumulative counters to survive clear, got %+v", snap)
	}
}
