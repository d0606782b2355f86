package tracer

import "context"

// ExportCode is the result of a bulk export (spec §4.1).
type ExportCode int

const (
	ExportSuccess ExportCode = iota
	ExportFailed
)

// ExportResult is returned by an adapter's ExportSpans method.
type ExportResult struct {
	Code  ExportCode
	Error error
}

// Adapter is the polymorphic export sink from spec §3/§4.1. An adapter
// may support per-span collection, bulk export, or both; Shutdown is
// always required so resource release is symmetric with acquisition
// (spec §5).
type Adapter interface {
	Name() string
	// CollectSpan pushes a single span, used for in-memory and testing
	// sinks.
	CollectSpan(span *Span)
	// ExportSpans bulk-pushes a batch, used for remote adapters.
	ExportSpans(ctx context.Context, batch []*Span) ExportResult
	// Shutdown releases any resources the adapter holds.
	Shutdown(ctx context.Context) error
}
