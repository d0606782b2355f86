package tracer

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/replaytrace/core/internal/log"
)

// LogAdapter writes each span as a JSON line to w, mirroring the
// teacher's logTraceWriter: a low-ceremony sink useful when no collector
// is reachable (local development, CI) but the operator still wants a
// durable record of what was traced.
type LogAdapter struct {
	name string
	mu   sync.Mutex
	w    io.Writer
}

// NewLogAdapter constructs a LogAdapter writing to w.
func NewLogAdapter(name string, w io.Writer) *LogAdapter {
	if name == "" {
		name = "log"
	}
	return &LogAdapter{name: name, w: w}
}

func (l *LogAdapter) Name() string { return l.name }

func (l *LogAdapter) CollectSpan(span *Span) {
	l.writeOne(span)
}

func (l *LogAdapter) ExportSpans(_ context.Context, batch []*Span) ExportResult {
	for _, s := range batch {
		l.writeOne(s)
	}
	return ExportResult{Code: ExportSuccess}
}

func (l *LogAdapter) writeOne(span *Span) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := json.Marshal(span.ToWire())
	if err != nil {
		log.Warn("log adapter: failed to encode span: %v", err)
		return
	}
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		log.Warn("log adapter: write failed: %v", err)
	}
}

func (l *LogAdapter) Shutdown(context.Context) error { return nil }
