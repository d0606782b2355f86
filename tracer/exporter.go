package tracer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/replaytrace/core/internal/log"
)

// Default batch policy (spec §4.1).
const (
	defaultBatchMaxSpans = 512
	defaultBatchWindow   = 2000 * time.Millisecond
)

// Exporter is the singleton-shaped (but explicitly constructed, per spec
// §9) pipeline fronting the registered Adapters. It owns the pending
// batch and applies the size/blocking policy before spans ever reach an
// adapter.
type Exporter struct {
	mu       sync.Mutex
	adapters map[string]Adapter

	batch      []*Span
	batchFirst time.Time
	maxSpans   int
	window     time.Duration

	blocking *BlockingManager
	sizes    *SizeAccountant

	flushTimer *time.Timer
	stopCh     chan struct{}
	stopped    bool
}

// NewExporter constructs an Exporter wired to the given blocking registry
// and size accountant (both owned by the caller, per spec §9's "explicitly
// constructed services passed by reference").
func NewExporter(blocking *BlockingManager, sizes *SizeAccountant) *Exporter {
	return &Exporter{
		adapters: make(map[string]Adapter),
		maxSpans: defaultBatchMaxSpans,
		window:   defaultBatchWindow,
		blocking: blocking,
		sizes:    sizes,
		stopCh:   make(chan struct{}),
	}
}

// AddAdapter registers an adapter under its own name, replacing any
// adapter already registered with that name. Registration is expected
// outside of hot paths (spec §5).
func (e *Exporter) AddAdapter(a Adapter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adapters[a.Name()] = a
}

// RemoveAdapter unregisters the named adapter.
func (e *Exporter) RemoveAdapter(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.adapters, name)
}

// CollectSpan is called by the tracing core once a span ends. It applies
// the trace-blocking and per-trace size ceiling policy (spec §4.1) before
// ever calling an adapter, then queues the span for the next batch flush.
func (e *Exporter) CollectSpan(span *Span) {
	if span == nil {
		return
	}
	if e.blocking.IsBlocked(span.TraceID()) {
		log.Debug("dropping span %s: trace %s is blocked", span.SpanID(), span.TraceID())
		return
	}

	size := wireSize(span)
	if e.sizes.Add(span.TraceID(), size) {
		e.blocking.Block(span.TraceID())
		log.Warn("trace %s exceeded its size ceiling; blocking and dropping queued spans", span.TraceID())
		e.dropTrace(span.TraceID())
		return
	}

	e.mu.Lock()
	if len(e.batch) == 0 {
		e.batchFirst = time.Now()
	}
	e.batch = append(e.batch, span)
	shouldFlush := len(e.batch) >= e.maxSpans
	var toFlush []*Span
	if shouldFlush {
		toFlush = e.batch
		e.batch = nil
	}
	e.mu.Unlock()

	e.ensureTimer()

	if shouldFlush {
		e.flush(toFlush)
	}
}

// dropTrace removes every currently-queued span belonging to id from the
// pending batch (spec §4.1: "ALL queued spans for that trace are dropped
// from the batch").
func (e *Exporter) dropTrace(id TraceID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.batch[:0]
	for _, s := range e.batch {
		if s.TraceID() != id {
			kept = append(kept, s)
		}
	}
	e.batch = kept
}

func (e *Exporter) ensureTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flushTimer != nil {
		return
	}
	e.flushTimer = time.AfterFunc(e.window, e.flushOnTimer)
}

func (e *Exporter) flushOnTimer() {
	e.mu.Lock()
	toFlush := e.batch
	e.batch = nil
	e.flushTimer = nil
	e.mu.Unlock()
	if len(toFlush) > 0 {
		e.flush(toFlush)
	}
}

// Flush forces the current pending batch out immediately.
func (e *Exporter) Flush(ctx context.Context) {
	e.mu.Lock()
	toFlush := e.batch
	e.batch = nil
	if e.flushTimer != nil {
		e.flushTimer.Stop()
		e.flushTimer = nil
	}
	e.mu.Unlock()
	if len(toFlush) > 0 {
		e.flushWithContext(ctx, toFlush)
	}
}

func (e *Exporter) flush(batch []*Span) { e.flushWithContext(context.Background(), batch) }

// flushWithContext fans the batch out to every registered adapter
// concurrently via errgroup (spec §11 domain stack: golang.org/x/sync),
// joining their results. A failed export is logged and the pipeline
// continues; spec §4.1 explicitly forbids default retries.
func (e *Exporter) flushWithContext(ctx context.Context, batch []*Span) {
	adapters := e.snapshotAdapters()
	if len(adapters) == 0 {
		return
	}
	var g errgroup.Group
	for _, a := range adapters {
		a := a
		g.Go(func() error {
			res := a.ExportSpans(ctx, batch)
			if res.Code != ExportSuccess {
				log.Error("adapter %q export failed: %v", a.Name(), res.Error)
			}
			return nil // never fail the group; each adapter's result is independent
		})
	}
	_ = g.Wait()
}

func (e *Exporter) snapshotAdapters() []Adapter {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Adapter, 0, len(e.adapters))
	for _, a := range e.adapters {
		out = append(out, a)
	}
	return out
}

// Shutdown flushes any pending batch then shuts down every adapter,
// matching spec §5's resource-scoping: "shutdown releases ... on all
// exit routes".
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	e.Flush(ctx)

	var firstErr error
	for _, a := range e.snapshotAdapters() {
		if err := a.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// wireSize measures a span's serialized size, used to enforce the
// per-trace ceiling (spec §4.1: "Per-span size is measured after
// serialization").
func wireSize(span *Span) int {
	b, err := json.Marshal(span.ToWire())
	if err != nil {
		return 0
	}
	return len(b)
}
