package cache

import (
	"math"
	"testing"
)

func TestHitRate(t *testing.T) {
	tests := []struct {
		name   string
		hits   int
		misses int
		want   float64
	}{
		{"no accesses", 0, 0, 0},
		{"all hits", 4, 0, 1},
		{"all misses", 0, 3, 0},
		{"mixed", 3, 1, 0.75},
		{"thirds", 1, 2, 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStatsTracker("test-hitrate")
			for i := 0; i < tt.hits; i++ {
				s.hit()
			}
			for i := 0; i < tt.misses; i++ {
				s.miss()
			}
			got := s.snapshot().HitRate
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("HitRate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatsTracker_Restore(t *testing.T) {
	s := newStatsTracker("test-restore")
	s.hit()
	s.added(10)
	s.restore(Stats{HitCount: 5, MissCount: 2, EvictionCount: 1, TotalEntries: 99, TotalSizeBytes: 999})

	snap := s.snapshot()
	if snap.HitCount != 6 || snap.MissCount != 2 || snap.EvictionCount != 1 {
		t.Errorf("Expected cumulative counters restored, got %+v", snap)
	}
	if snap.TotalEntries != 1 || snap.TotalSizeBytes != 10 {
		t.Errorf("Expected occupancy to come from live entries only, got %+v", snap)
	}
}
