package tracer

import (
	"context"
	"sync"
)

// MemoryAdapter is an in-process adapter used both as a production
// capability (spec §3: "a polymorphic sink ... used for in-memory and
// testing sinks") and as the primary test fixture throughout this module,
// matching the teacher's mocktracer pattern of a first-class testing
// adapter rather than a mock framework (SPEC_FULL.md §10.4).
type MemoryAdapter struct {
	name string

	mu    sync.Mutex
	spans []*Span
}

// NewMemoryAdapter constructs a MemoryAdapter registered under name.
func NewMemoryAdapter(name string) *MemoryAdapter {
	if name == "" {
		name = "memory"
	}
	return &MemoryAdapter{name: name}
}

func (m *MemoryAdapter) Name() string { return m.name }

func (m *MemoryAdapter) CollectSpan(span *Span) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, span)
}

func (m *MemoryAdapter) ExportSpans(_ context.Context, batch []*Span) ExportResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, batch...)
	return ExportResult{Code: ExportSuccess}
}

func (m *MemoryAdapter) Shutdown(context.Context) error { return nil }

// Spans returns a snapshot of every span collected so far.
func (m *MemoryAdapter) Spans() []*Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Span, len(m.spans))
	copy(out, m.spans)
	return out
}

// Reset clears the collected spans; used by reset-for-testing hooks.
func (m *MemoryAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = nil
}
