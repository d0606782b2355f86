package match

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/replaytrace/core/tracer"
)

// Connection is the capability set a connection-like mock (a pool client
// or a pooled connection) must implement (spec §4.4). Methods that do not
// depend on a prior recording — Escape, Format, Release, Pause, Resume —
// are implemented locally; everything else delegates to the match
// service via the replay call that constructed this Connection.
type Connection interface {
	// Query and Execute drive all three of spec §4.4's result shapes at
	// once: cb, if non-nil, is invoked asynchronously with the aggregate
	// result (the callback leg); the returned *ResultStream independently
	// emits fields/row/end and supports AsFuture/AsRowIterator (the
	// emitter and promise legs) — all three replay the same recorded
	// sequence rather than racing to consume it.
	Query(ctx context.Context, sql string, cb QueryCallback, args ...any) *ResultStream
	Execute(ctx context.Context, sql string, cb QueryCallback, args ...any) *ResultStream
	Release()
	End(ctx context.Context) error
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	BeginTransaction(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ChangeUser(ctx context.Context, user string) error
	Pause()
	Resume()
	Escape(identifier string) string
	Format(sql string, values []any) string
}

// replayConnection is the Connection returned by the mock constructors in
// REPLAY mode. Every method that depends on a prior recording issues its
// own replay fingerprint through client, reusing the ambient span
// identity captured at construction time.
type replayConnection struct {
	client *Client
	name   string // not set or read; delegated calls carry the per-method name passed to delegate
	fp     fingerprintBase

	// released/ended mirror the mock's local bookkeeping for no-delegation
	// methods; they never touch the match service.
	released bool
	ended    bool
}

// fingerprintBase carries the span identity and static descriptors a
// Connection's delegated calls stamp onto every MockRequest they issue.
type fingerprintBase struct {
	traceID             string
	spanID              string
	packageName         string
	instrumentationName string
	submoduleName       string
	kind                string
}

// NewReplayConnection constructs a Connection backed by client, fingerprinting
// delegated calls with the identity of span (spec §4.4's "connection-like
// objects ... delegate to the match service").
func NewReplayConnection(client *Client, span *tracer.Span, packageName, instrumentationName, submoduleName string) Connection {
	return &replayConnection{
		client: client,
		fp: fingerprintBase{
			traceID:             span.TraceID().String(),
			spanID:              span.SpanID().String(),
			packageName:         packageName,
			instrumentationName: instrumentationName,
			submoduleName:       submoduleName,
			kind:                tracer.KindClient.String(),
		},
	}
}

func (c *replayConnection) delegate(ctx context.Context, name string, input any) *ResultStream {
	req := MockRequest{
		TraceID:             c.fp.traceID,
		SpanID:              c.fp.spanID,
		Name:                name,
		InputValue:          canonicalizeInput(input),
		PackageName:         c.fp.packageName,
		InstrumentationName: c.fp.instrumentationName,
		SubmoduleName:       c.fp.submoduleName,
		Kind:                c.fp.kind,
		StackTrace:          CaptureStackTrace(DefaultFramePrefixFilter),
	}
	return Replay(ctx, c.client, req)
}

func (c *replayConnection) delegateErr(ctx context.Context, name string, input any) error {
	stream := c.delegate(ctx, name, input)
	_, err := stream.AsFuture().Await(ctx)
	return err
}

func (c *replayConnection) Query(ctx context.Context, sql string, cb QueryCallback, args ...any) *ResultStream {
	stream := c.delegate(ctx, "query", map[string]any{"sql": sql, "args": args})
	if cb != nil {
		stream.AsCallback(cb)
	}
	return stream
}

func (c *replayConnection) Execute(ctx context.Context, sql string, cb QueryCallback, args ...any) *ResultStream {
	stream := c.delegate(ctx, "execute", map[string]any{"sql": sql, "args": args})
	if cb != nil {
		stream.AsCallback(cb)
	}
	return stream
}

// Release is a no-op on a pool mock that emits end, per spec §4.4: "A
// release on a pool mock is a no-op that emits end." "Emits" is read here
// as the local released bookkeeping flag, not a second delegated call to
// the match service — a pool release never carried its own recording in
// the first place, so there is nothing for the match service to look up
// (see DESIGN.md).
func (c *replayConnection) Release() {
	c.released = true
}

func (c *replayConnection) End(ctx context.Context) error {
	c.ended = true
	return c.delegateErr(ctx, "end", nil)
}

func (c *replayConnection) Connect(ctx context.Context) error {
	return c.delegateErr(ctx, "connect", nil)
}

func (c *replayConnection) Ping(ctx context.Context) error {
	return c.delegateErr(ctx, "ping", nil)
}

func (c *replayConnection) BeginTransaction(ctx context.Context) error {
	return c.delegateErr(ctx, "beginTransaction", nil)
}

func (c *replayConnection) Commit(ctx context.Context) error {
	return c.delegateErr(ctx, "commit", nil)
}

func (c *replayConnection) Rollback(ctx context.Context) error {
	return c.delegateErr(ctx, "rollback", nil)
}

func (c *replayConnection) ChangeUser(ctx context.Context, user string) error {
	return c.delegateErr(ctx, "changeUser", map[string]any{"user": user})
}

func (c *replayConnection) Pause()  {}
func (c *replayConnection) Resume() {}

// Escape quotes identifier the way a MySQL-family driver backtick-escapes
// a column/table name; it never depends on a recording (spec §4.4).
func (c *replayConnection) Escape(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// Format substitutes '?' placeholders in sql with values, quoting strings
// and rendering other values with their natural literal form. Like
// Escape, this never depends on a recording.
func (c *replayConnection) Format(sql string, values []any) string {
	var b strings.Builder
	vi := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' && vi < len(values) {
			b.WriteString(formatValue(values[vi]))
			vi++
			continue
		}
		b.WriteByte(sql[i])
	}
	return b.String()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(t), "'", "''") + "'"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return "NULL"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(t), "'", "''") + "'"
	}
}
