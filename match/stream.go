package match

import (
	"context"
	"sync"
)

// Row is one row of a reconstructed result set.
type Row = map[string]any

// frame is one unit of a ResultStream: either the fields header, a data
// row, a terminal error, or end-of-stream.
type frame struct {
	fields map[string]any
	row    Row
	err    error
	end    bool
}

// ResultStream is the single internal representation the callback/
// promise/emitter trichotomy of spec §4.4/§9 is reduced to: a materialized,
// append-only sequence of (fields, row, err) frames, matching "fields
// once, then one result per row, then end" (spec §4.4). Every frame that
// is ever emitted is retained, so AsFuture, AsCallback, and AsRowIterator
// are independent replays of the same sequence rather than competing
// drains of one channel — spec §4.4 requires a query call to
// simultaneously drive a callback, an emitted event sequence, and an
// awaitable promise over the same data (worked example in spec §8
// scenario 4), so no projection may consume a frame the others still
// need.
type ResultStream struct {
	mu      sync.Mutex
	frames  []frame
	closed  bool
	waiters []chan struct{}
}

// newResultStream allocates an empty, open stream.
func newResultStream() *ResultStream {
	return &ResultStream{}
}

// append records fr and wakes every reader currently blocked waiting for
// it, then clears the waiter list — each waiter is a one-shot channel
// registered by a single call to wait.
func (s *ResultStream) append(fr frame) {
	s.mu.Lock()
	s.frames = append(s.frames, fr)
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

func (s *ResultStream) emitFields(fields map[string]any) { s.append(frame{fields: fields}) }
func (s *ResultStream) emitRow(row Row)                  { s.append(frame{row: row}) }
func (s *ResultStream) emitError(err error)              { s.append(frame{err: err}) }

// close marks the stream complete. No further frames are ever appended.
func (s *ResultStream) close() {
	s.mu.Lock()
	s.closed = true
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// at reports the frame at idx if it has been materialized yet, and
// whether the stream has closed without ever reaching idx.
func (s *ResultStream) at(idx int) (fr frame, ok bool, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < len(s.frames) {
		return s.frames[idx], true, false
	}
	return frame{}, false, s.closed
}

// wait blocks until frame idx is materialized, the stream closes, or ctx
// is done, registering a fresh one-shot waiter channel each call so any
// number of independent readers can wait on the same index concurrently.
func (s *ResultStream) wait(ctx context.Context, idx int) error {
	s.mu.Lock()
	if idx < len(s.frames) || s.closed {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// next returns the frame at idx (blocking until it exists), the cursor
// advanced past it, and any cancellation error. At a clean end it returns
// a synthetic end frame without advancing further.
func (s *ResultStream) next(ctx context.Context, idx int) (frame, int, error) {
	for {
		if fr, ok, closed := s.at(idx); ok {
			return fr, idx + 1, nil
		} else if closed {
			return frame{end: true}, idx, nil
		}
		if err := s.wait(ctx, idx); err != nil {
			return frame{}, idx, err
		}
	}
}

// singleResultStream builds a stream that emits one fields frame (if
// fields is non-nil) followed by the rows, then end — the no-op-replay
// and simple-match shapes described in spec §4.4.
func singleResultStream(fields map[string]any, rows []Row, err error) *ResultStream {
	s := newResultStream()
	go func() {
		if err != nil {
			s.emitError(err)
			s.close()
			return
		}
		if fields != nil {
			s.emitFields(fields)
		}
		for _, r := range rows {
			s.emitRow(r)
		}
		s.close()
	}()
	return s
}

// QueryResult is the aggregate shape AsFuture resolves to: every row
// collected plus the fields header, matching what a query call that is
// awaited (rather than streamed) returns natively.
type QueryResult struct {
	Fields map[string]any
	Rows   []Row
}

// QueryCallback is the callback-style leg of a query/execute call (spec
// §4.4, §8 scenario 4: `cb(null, [{id:1},{id:2}], fields)` on match, or
// `cb(error)` on miss). A nil QueryCallback means the caller did not
// supply one — the emitter/promise legs still run either way.
type QueryCallback func(err error, rows []Row, fields map[string]any)

// Future is the generic promise-equivalent described in SPEC_FULL.md
// §10.5: a value that becomes available after a blocking Await.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// NewFuture constructs a Future whose value/err is supplied by calling
// resolve exactly once, on its own goroutine.
func NewFuture[T any](resolve func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		f.value, f.err = resolve()
		close(f.done)
	}()
	return f
}

// Await blocks until the Future resolves or ctx is done, whichever comes
// first (spec §5: suspension points respect cancellation/timeout).
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// collect replays s from the beginning into a QueryResult, independent of
// any other reader replaying the same stream concurrently.
func collect(ctx context.Context, s *ResultStream) (QueryResult, error) {
	var out QueryResult
	idx := 0
	for {
		fr, next, err := s.next(ctx, idx)
		if err != nil {
			return out, err
		}
		idx = next
		switch {
		case fr.err != nil:
			return out, fr.err
		case fr.fields != nil:
			out.Fields = fr.fields
		case fr.end:
			return out, nil
		default:
			out.Rows = append(out.Rows, fr.row)
		}
	}
}

// AsFuture returns a Future that replays s independently of any other
// projection and resolves to the aggregate QueryResult — the
// promise-style rendering of spec §4.4. Calling AsFuture any number of
// times, including alongside AsCallback/AsRowIterator on the same stream,
// always replays the full sequence from the start.
func (s *ResultStream) AsFuture() *Future[QueryResult] {
	return NewFuture(func() (QueryResult, error) {
		return collect(context.Background(), s)
	})
}

// AsCallback invokes cb exactly once, on its own goroutine, after
// replaying s independently of any concurrent AsFuture/AsRowIterator
// reader — the Go rendering of "invoke the provided callback
// asynchronously" (spec §4.4). err is non-nil on a match miss or a
// mid-stream error; otherwise rows/fields carry the aggregate result.
func (s *ResultStream) AsCallback(cb QueryCallback) {
	go func() {
		out, err := collect(context.Background(), s)
		if err != nil {
			cb(err, nil, nil)
			return
		}
		cb(nil, out.Rows, out.Fields)
	}()
}

// RowIterator is the emitter/stream-style projection (spec §4.4: "emits
// fields once, then one result per row, then end"). Next is a pull
// analog of that push sequence, the idiomatic Go rendering named in
// SPEC_FULL.md §10.5. Each RowIterator keeps its own cursor into the
// underlying ResultStream, so it never competes with another RowIterator,
// an AsFuture, or an AsCallback reading the same stream.
type RowIterator struct {
	s      *ResultStream
	idx    int
	fields map[string]any
	done   bool
}

// AsRowIterator returns an independent pull-iterator projection of s.
func (s *ResultStream) AsRowIterator() *RowIterator {
	return &RowIterator{s: s}
}

// Fields returns the fields header once Next has advanced past it (nil
// until then).
func (it *RowIterator) Fields() map[string]any { return it.fields }

// Next blocks until the next row, an error, or end-of-stream. It returns
// (row, true, nil) for a data row, (nil, false, nil) at a clean end, and
// (nil, false, err) on a mid-stream error or ctx cancellation.
func (it *RowIterator) Next(ctx context.Context) (Row, bool, error) {
	if it.done {
		return nil, false, nil
	}
	for {
		fr, next, err := it.s.next(ctx, it.idx)
		if err != nil {
			return nil, false, err
		}
		it.idx = next
		switch {
		case fr.err != nil:
			it.done = true
			return nil, false, fr.err
		case fr.fields != nil:
			it.fields = fr.fields
			continue
		case fr.end:
			it.done = true
			return nil, false, nil
		default:
			return fr.row, true, nil
		}
	}
}
