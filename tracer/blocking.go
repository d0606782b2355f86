package tracer

import (
	"sync"
	"time"
)

// defaultBlockedTraceTTL and defaultSweepInterval match spec §3's defaults.
const (
	defaultBlockedTraceTTL = 10 * time.Minute
	defaultSweepInterval   = 2 * time.Minute
)

// BlockingManager is the blocked-trace registry (spec §3, §4.1). It owns
// the blocked set and insertion timestamps; all mutation goes through its
// methods. It is safe for concurrent use, the Go-native rendering of the
// single-threaded-by-construction registry described in spec §5 — Go
// instrumentations run on goroutines, not a single event loop, so the
// registry needs a real mutex where the source needed none.
type BlockingManager struct {
	mu      sync.Mutex
	blocked map[TraceID]time.Time
	ttl     time.Duration
	now     func() time.Time

	sweepOnce sync.Once
	stopCh    chan struct{}
	stopped   bool
}

// NewBlockingManager constructs a registry with the default TTL. clock, if
// non-nil, overrides time.Now — the core always uses a pristine clock
// reference captured at construction time (spec §5, "original references
// to runtime primitives"), never one that could itself be instrumented.
func NewBlockingManager(clock func() time.Time) *BlockingManager {
	if clock == nil {
		clock = time.Now
	}
	return &BlockingManager{
		blocked: make(map[TraceID]time.Time),
		ttl:     defaultBlockedTraceTTL,
		now:     clock,
		stopCh:  make(chan struct{}),
	}
}

// IsBlocked reports whether trace id is currently blocked. O(1).
func (m *BlockingManager) IsBlocked(id TraceID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[id]
	return ok
}

// Block adds trace id to the registry.
func (m *BlockingManager) Block(id TraceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[id] = m.now()
}

// Unblock removes trace id from the registry.
func (m *BlockingManager) Unblock(id TraceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocked, id)
}

// Count returns the number of currently blocked traces.
func (m *BlockingManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocked)
}

// ClearAll empties the registry; used by reset-for-testing hooks.
func (m *BlockingManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked = make(map[TraceID]time.Time)
}

// sweep evicts entries older than the TTL.
func (m *BlockingManager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.ttl)
	for id, t := range m.blocked {
		if t.Before(cutoff) {
			delete(m.blocked, id)
		}
	}
}

// StartSweeper launches the background eviction loop on its own
// goroutine. It runs every defaultSweepInterval until Stop is called. The
// sweeper goroutine exits on Stop so it never keeps the process alive
// past shutdown (spec §4.1).
func (m *BlockingManager) StartSweeper() {
	m.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(defaultSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.sweep()
				case <-m.stopCh:
					return
				}
			}
		}()
	})
}

// Stop terminates the sweeper goroutine. Safe to call multiple times.
func (m *BlockingManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
}
