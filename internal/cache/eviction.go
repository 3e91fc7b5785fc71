package cache

import "sort"

// evict frees at least need bytes, or empties the store trying.
//
// Expired entries always go first, all of them, since they are logically absent already.
// Only then are live entries removed, least recently accessed first with insertion order
// breaking ties. Every removal here counts as an eviction.
func (s *store[T]) evict(need int64) int64 {
	now := s.clock.Now()
	var freed int64

	var live []string
	for _, key := range s.orderedKeys() {
		e := s.entries[key]
		if e.Expired(now) {
			freed += e.Size
			s.drop(key, e)
			s.stats.eviction()
			continue
		}
		live = append(live, key)
	}
	if freed >= need {
		return freed
	}

	sort.SliceStable(live, func(i, j int) bool {
		a, b := s.entries[live[i]], s.entries[live[j]]
		if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		}
		return a.seq < b.seq
	})

	for _, key := range live {
		if freed >= need {
			break
		}
		e := s.entries[key]
		freed += e.Size
		s.drop(key, e)
		s.stats.eviction()
	}

	if freed < need {
		s.log.Debug("Eviction could not free requested space", "need", need, "freed", freed)
	}
	return freed
}
