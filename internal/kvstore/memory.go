package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is a process-local backend with a byte capacity.
//
// Every Memory value is a session: a handle with its own identity onto shared data.
// Session returns a second handle onto the same data, which lets two cache managers in one
// process observe each other's writes the way two execution contexts sharing a durable
// store would.
type Memory struct {
	shared *memoryData
	id     uint64
	closed bool
	mu     sync.Mutex
}

type memoryData struct {
	mu       sync.Mutex
	data     map[string][]byte
	used     int64
	capacity int64
	nextID   uint64
	watchers map[*memoryWatcher]struct{}
}

// NewMemory creates an empty in-memory backend. A capacity <= 0 means unlimited.
func NewMemory(capacity int64) *Memory {
	shared := &memoryData{
		data:     make(map[string][]byte),
		capacity: capacity,
		nextID:   1,
		watchers: make(map[*memoryWatcher]struct{}),
	}
	return &Memory{shared: shared, id: 1}
}

// Session returns a new handle onto the same data with a distinct identity.
func (m *Memory) Session() *Memory {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.shared.nextID++
	return &Memory{shared: m.shared, id: m.shared.nextID}
}

func (m *Memory) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Get returns a copy of the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	s := m.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), val...), nil
}

// Put stores a copy of value under key and notifies the other sessions.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	if m.isClosed() {
		return ErrClosed
	}
	s := m.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used + recordSize(key, value)
	if old, ok := s.data[key]; ok {
		used -= recordSize(key, old)
	}
	if s.capacity > 0 && used > s.capacity {
		return ErrQuotaExceeded
	}

	stored := append([]byte(nil), value...)
	s.data[key] = stored
	s.used = used
	s.notify(m.id, Change{Key: key, Value: stored})
	return nil
}

// Delete removes key and notifies the other sessions if it existed.
func (m *Memory) Delete(_ context.Context, key string) error {
	if m.isClosed() {
		return ErrClosed
	}
	s := m.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.data[key]
	if !ok {
		return nil
	}
	delete(s.data, key)
	s.used -= recordSize(key, old)
	s.notify(m.id, Change{Key: key, Deleted: true})
	return nil
}

// Keys lists keys with the given prefix in lexical order.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	s := m.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Used returns the number of bytes currently stored.
func (m *Memory) Used() int64 {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	return m.shared.used
}

// Watch delivers changes made through other sessions.
func (m *Memory) Watch(ctx context.Context) (<-chan Change, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	w := newMemoryWatcher(m.id)

	s := m.shared
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-w.done:
		}
		s.mu.Lock()
		delete(s.watchers, w)
		s.mu.Unlock()
		w.stop()
	}()
	return w.out, nil
}

// Close detaches the session. The shared data stays available to other sessions.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	s := m.shared
	s.mu.Lock()
	for w := range s.watchers {
		if w.origin == m.id {
			delete(s.watchers, w)
			w.stop()
		}
	}
	s.mu.Unlock()
	return nil
}

// notify must be called with s.mu held.
func (s *memoryData) notify(origin uint64, c Change) {
	for w := range s.watchers {
		if w.origin != origin {
			w.push(c)
		}
	}
}

// memoryWatcher queues changes without bounding the queue so a slow consumer never
// blocks writers holding the shared lock.
type memoryWatcher struct {
	origin uint64
	out    chan Change
	signal chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	queue   []Change
	stopped bool
}

func newMemoryWatcher(origin uint64) *memoryWatcher {
	w := &memoryWatcher{
		origin: origin,
		out:    make(chan Change),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.pump()
	return w
}

func (w *memoryWatcher) push(c Change) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, c)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *memoryWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.done)
}

func (w *memoryWatcher) pump() {
	defer close(w.out)
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			select {
			case <-w.signal:
				continue
			case <-w.done:
				return
			}
		}
		next := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		select {
		case w.out <- next:
		case <-w.done:
			return
		}
	}
}
