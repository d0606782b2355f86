package tracer

import "context"

// ctxKey is an unexported type so this package's context keys never
// collide with another package's.
type ctxKey int

const (
	spanKey ctxKey = iota
	replayTraceKey
)

// ContextWithSpan returns a new context.Context carrying span as the
// active span. This is the Go-native rendering of the spec's async-local
// TraceContext (see SPEC_FULL.md §10.5): the host runtime has no implicit
// continuation-local storage, so the obligation to propagate the active
// span across suspension points falls on whoever passes ctx onward,
// exactly as it already does for cancellation and deadlines.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext returns the active span, or nil if none is set.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey).(*Span)
	return span
}

// CurrentSpanInfo is the return shape of GetCurrentSpanInfo (spec §4.1).
type CurrentSpanInfo struct {
	TraceID TraceID
	SpanID  SpanID
}

// GetCurrentSpanInfo returns the active span's identity, or nil if there
// is no active span on ctx.
func GetCurrentSpanInfo(ctx context.Context) *CurrentSpanInfo {
	span := SpanFromContext(ctx)
	if span == nil {
		return nil
	}
	return &CurrentSpanInfo{TraceID: span.TraceID(), SpanID: span.SpanID()}
}

// WithReplayTraceID binds a logical replay-trace id to ctx so that child
// recorded/replayed calls can be correlated across mode boundaries (spec
// §4.1, set-current-replay-trace-id).
func WithReplayTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, replayTraceKey, id)
}

// ReplayTraceIDFromContext returns the bound replay-trace id, if any.
func ReplayTraceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(replayTraceKey).(string)
	return id, ok
}

// GetTraceInfo renders a human-readable trace description for logs only
// (spec §4.1, get-trace-info).
func GetTraceInfo(ctx context.Context) string {
	info := GetCurrentSpanInfo(ctx)
	if info == nil {
		return "trace=none"
	}
	return "trace=" + info.TraceID.String() + " span=" + info.SpanID.String()
}
