package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsFutureCollectsAllRows(t *testing.T) {
	s := singleResultStream(map[string]any{"id": "id"}, []Row{{"id": 1}, {"id": 2}}, nil)
	res, err := s.AsFuture().Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "id"}, res.Fields)
	assert.Len(t, res.Rows, 2)
}

func TestAsFuturePropagatesError(t *testing.T) {
	want := errors.New("boom")
	s := singleResultStream(nil, nil, want)
	_, err := s.AsFuture().Await(context.Background())
	assert.Equal(t, want, err)
}

func TestAsFutureRespectsContextCancellation(t *testing.T) {
	s := newResultStream() // never closed
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := s.AsFuture().Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsCallbackInvokedAsynchronously(t *testing.T) {
	s := singleResultStream(map[string]any{"a": "a"}, []Row{{"a": 1}}, nil)
	done := make(chan struct{})
	var gotErr error
	var gotRows []Row
	s.AsCallback(func(err error, rows []Row, fields map[string]any) {
		gotErr = err
		gotRows = rows
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
	}
	require.NoError(t, gotErr)
	assert.Len(t, gotRows, 1)
}

func TestAsRowIteratorYieldsFieldsThenRowsThenEnd(t *testing.T) {
	s := singleResultStream(map[string]any{"a": "a"}, []Row{{"a": 1}, {"a": 2}}, nil)
	it := s.AsRowIterator()

	ctx := context.Background()
	row, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Row{"a": 1}, row)
	assert.Equal(t, map[string]any{"a": "a"}, it.Fields())

	row, ok, err = it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Row{"a": 2}, row)

	_, ok, err = it.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Next is safe to call again past end.
	_, ok, err = it.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAsRowIteratorSurfacesMidStreamError(t *testing.T) {
	want := errors.New("mid-stream failure")
	s := singleResultStream(nil, nil, want)
	it := s.AsRowIterator()
	_, ok, err := it.Next(context.Background())
	assert.False(t, ok)
	assert.Equal(t, want, err)
}

// TestProjectionsAreIndependentReplays exercises spec §8 scenario 4: a
// single query result must simultaneously drive a callback, an emitted
// event sequence, and an awaitable promise, all over the same rows.
// Calling all three projections on one ResultStream must not let any one
// of them starve the others of frames.
func TestProjectionsAreIndependentReplays(t *testing.T) {
	s := singleResultStream(map[string]any{"id": "id"}, []Row{{"id": 1}, {"id": 2}}, nil)

	it := s.AsRowIterator()

	var wg sync.WaitGroup
	wg.Add(1)
	var cbErr error
	var cbRows []Row
	var cbFields map[string]any
	s.AsCallback(func(err error, rows []Row, fields map[string]any) {
		cbErr = err
		cbRows = rows
		cbFields = fields
		wg.Done()
	})

	future := s.AsFuture()

	// Drive the iterator concurrently with the callback and future
	// resolving over the same underlying stream.
	var iterRows []Row
	for {
		row, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		iterRows = append(iterRows, row)
	}
	assert.Equal(t, []Row{{"id": 1}, {"id": 2}}, iterRows)
	assert.Equal(t, map[string]any{"id": "id"}, it.Fields())

	futureRes, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.Len(t, futureRes.Rows, 2)

	wg.Wait()
	require.NoError(t, cbErr)
	assert.Len(t, cbRows, 2)
	assert.Equal(t, map[string]any{"id": "id"}, cbFields)
}
