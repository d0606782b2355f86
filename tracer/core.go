package tracer

import (
	"context"
	"time"

	"github.com/replaytrace/core/canon"
	"github.com/replaytrace/core/internal/log"
)

// Mode mirrors spec §4.2's process-wide mode, duplicated here (rather
// than imported from internal/driftconfig) so the tracing core has no
// dependency on the host configuration package — only drift.go, the
// top-level wiring point, needs to know both vocabularies.
type Mode int

const (
	ModeDisabled Mode = iota
	ModeRecord
	ModeReplay
)

// RequestOrigin classifies the ambient call context (spec §4.2).
type RequestOrigin int

const (
	OriginUser RequestOrigin = iota
	OriginInternal
	OriginIgnored
)

// SpanOptions carries everything create-and-execute needs to construct a
// span (spec §4.1).
type SpanOptions struct {
	Name                string
	Kind                Kind
	Submodule           string
	PackageName         string
	PackageType         string
	InstrumentationName string
	InputValue          any
	IsPreAppStart       bool
	// RequestOrigin is consulted only to decide whether a root span under
	// RECORD mode must be executed without being exported (spec §4.1,
	// the "parent is a non-traced context and the request origin is
	// ignored" case). It is classified by the dispatcher, not this
	// package.
	RequestOrigin RequestOrigin
}

// TransformFunc is the hook the transform engine registers with the core
// (spec dependency order: canonicalization -> tracing core -> transform
// engine, so the core cannot import the transform package directly).
type TransformFunc func(span *Span)

// Core owns span lifecycle, export, and the size/blocking policy. It is
// the tracing core of spec §4.1, explicitly constructed and passed by
// reference per spec §9 rather than a package-level singleton.
type Core struct {
	blocking *BlockingManager
	sizes    *SizeAccountant
	exporter *Exporter
	now      func() time.Time

	transform TransformFunc
}

// NewCore wires a Core to the given services.
func NewCore(blocking *BlockingManager, sizes *SizeAccountant, exporter *Exporter) *Core {
	return &Core{blocking: blocking, sizes: sizes, exporter: exporter, now: time.Now}
}

// SetTransformPipeline installs the hook end-span calls before handing a
// span to the exporter (spec §4.3, applied at end time per §4.1).
func (c *Core) SetTransformPipeline(fn TransformFunc) { c.transform = fn }

// CreateAndExecute creates a span as a child of the current context,
// activates the new context for the duration of fn, and returns its
// result (spec §4.1). It never propagates a panic originating from its
// own bookkeeping into the caller; panics from fn itself (the real
// operation / application code) are never recovered here, per spec §7's
// propagation policy ("exceptions from the application's callbacks pass
// through unchanged").
func CreateAndExecute[T any](ctx context.Context, c *Core, mode Mode, opts SpanOptions, fn func(ctx context.Context, span *Span) (T, error)) (T, error) {
	span := c.newSpan(ctx, mode, opts)
	childCtx := ContextWithSpan(ctx, span)

	result, err := fn(childCtx, span)

	c.finalizeAfterExecute(span, err)
	return result, err
}

// newSpan builds the child span without ever panicking into the caller;
// a bookkeeping failure degrades to a sentinel span (tracing disabled for
// that call only), per spec §4.1/§7.
func (c *Core) newSpan(ctx context.Context, mode Mode, opts SpanOptions) (span *Span) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic constructing span %q: %v", opts.Name, r)
			span = c.sentinelSpan(opts)
		}
	}()

	parent := SpanFromContext(ctx)
	s := &Span{
		spanID:              newSpanID(),
		name:                opts.Name,
		kind:                opts.Kind,
		packageName:         opts.PackageName,
		packageType:         opts.PackageType,
		submoduleName:       opts.Submodule,
		instrumentationName: opts.InstrumentationName,
		isPreAppStart:       opts.IsPreAppStart,
		start:               c.now(),
	}
	if opts.InputValue != nil {
		s.inputValue = canon.Canonicalize(opts.InputValue)
	}
	if parent != nil {
		s.traceID = parent.TraceID()
		s.parentID = parent.SpanID()
		s.hasParent = true
		s.isRootSpan = false
	} else {
		s.traceID = newTraceID()
		s.isRootSpan = true
	}

	s.exported = c.shouldExport(mode, s, parent, opts.RequestOrigin)
	return s
}

// shouldExport implements the suppression rule from spec §4.1: under
// RECORD, a blocked trace or an ignored-origin root call still executes
// but is never exported.
func (c *Core) shouldExport(mode Mode, span *Span, parent *Span, origin RequestOrigin) bool {
	if mode != ModeRecord {
		// REPLAY spans are exported normally once recorded via the match
		// service's own export path; DISABLED spans are never created in
		// practice but default to "export" so tests constructing spans
		// directly behave predictably.
		if mode == ModeDisabled {
			return true
		}
	}
	if mode == ModeRecord && c.blocking.IsBlocked(span.TraceID()) {
		return false
	}
	if mode == ModeRecord && parent == nil && origin == OriginIgnored {
		return false
	}
	return true
}

// sentinelSpan returns a span disconnected from any trace, used only when
// span construction itself panicked; it keeps the caller's in-span-fn
// bookkeeping symmetric without ever reaching the exporter.
func (c *Core) sentinelSpan(opts SpanOptions) *Span {
	return &Span{
		spanID:     newSpanID(),
		traceID:    newTraceID(),
		name:       opts.Name,
		kind:       opts.Kind,
		isRootSpan: true,
		start:      c.now(),
		exported:   false,
	}
}

// finalizeAfterExecute stamps the outcome of fn onto span's status (if the
// instrumentation did not already call SetStatus) and ends the span.
func (c *Core) finalizeAfterExecute(span *Span, err error) {
	span.mu.Lock()
	unset := span.status.Code == StatusUnset
	span.mu.Unlock()
	if unset {
		if err != nil {
			span.SetStatus(StatusError, err.Error())
		} else {
			span.SetStatus(StatusOK, "")
		}
	}
	c.End(span, nil)
}

// End finalizes duration, computes the output schema/hash, applies the
// transform pipeline, and hands the span to the exporter — unless it was
// marked non-exported at creation time. End is idempotent: a second call
// is a no-op with a debug log (spec §4.1).
func (c *Core) End(span *Span, status *Status) {
	if span == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic ending span %s: %v", span.SpanID(), r)
		}
	}()

	span.mu.Lock()
	if span.ended {
		span.mu.Unlock()
		log.Debug("end-span called twice for span %s; ignoring", span.spanID)
		return
	}
	span.ended = true
	if status != nil {
		span.status = *status
	}
	elapsed := c.now().Sub(span.start)
	span.duration = Duration{
		Seconds: int64(elapsed / time.Second),
		Nanos:   int32(elapsed % time.Second),
	}
	if span.outputValue != nil {
		span.outputSchema = canon.Schema(span.outputValue)
		span.outputSchemaHash = canon.Hash(span.outputSchema)
		span.outputValueHash = canon.Hash(span.outputValue)
	}
	if span.inputValue != nil {
		span.inputSchema = canon.Schema(span.inputValue)
		span.inputSchemaHash = canon.Hash(span.inputSchema)
		span.inputValueHash = canon.Hash(span.inputValue)
	}
	exported := span.exported
	span.mu.Unlock()

	if c.transform != nil {
		c.transform(span)
	}

	if exported {
		c.exporter.CollectSpan(span)
	}
}

// Shutdown releases the exporter and stops the blocking-registry sweeper,
// in that order (spec §5: "initialization acquires, shutdown releases ...
// on all exit routes"; SPEC_FULL.md §12).
func (c *Core) Shutdown(ctx context.Context) error {
	err := c.exporter.Shutdown(ctx)
	c.blocking.Stop()
	return err
}
