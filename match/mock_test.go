package match

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/replaytrace/core/canon"
	"github.com/replaytrace/core/errs"
)

func TestReplayNoAmbientSpanReturnsEmptySuccessfulResult(t *testing.T) {
	stream := Replay(context.Background(), nil, MockRequest{})
	res, err := stream.AsFuture().Await(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Nil(t, res.Fields)
}

func TestReplayWithNoClientConfiguredIsMatchMiss(t *testing.T) {
	ResetForTest()
	stream := Replay(context.Background(), nil, MockRequest{TraceID: "t", SpanID: "s"})
	_, err := stream.AsFuture().Await(context.Background())
	assert.True(t, errs.Is(err, errs.KindMatchMiss))
}

func TestReplayReconstructsListOfObjectsAsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list, err := structpb.NewList([]any{
			map[string]any{"id": float64(1), "name": "alice"},
			map[string]any{"id": float64(2), "name": "bob"},
		})
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(wireRecord{Found: true, Result: structpb.NewListValue(list), MatchLevel: "FUZZY"})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})
	stream := Replay(context.Background(), c, MockRequest{TraceID: "t", SpanID: "s", Name: "query"})
	res, err := stream.AsFuture().Await(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "alice", res.Rows[0]["name"])
	assert.Contains(t, res.Fields, "name")
}

func TestReplayReconstructsSingleObjectAsOneRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := structpb.NewStruct(map[string]any{"insertId": float64(42)})
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(wireRecord{Found: true, Result: structpb.NewStructValue(st), MatchLevel: "INPUT_VALUE_HASH"})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})
	stream := Replay(context.Background(), c, MockRequest{TraceID: "t", SpanID: "s", Name: "execute"})
	res, err := stream.AsFuture().Await(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, float64(42), res.Rows[0]["insertId"])
}

func TestReplayMissSurfacesAsMatchMissError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wireRecord{Found: false})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})
	stream := Replay(context.Background(), c, MockRequest{TraceID: "t", SpanID: "s"})
	_, err := stream.AsFuture().Await(context.Background())
	assert.True(t, errs.Is(err, errs.KindMatchMiss))
}

func TestReplayRestoresBufferValuedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := structpb.NewStruct(map[string]any{
			"id": float64(1),
		})
		require.NoError(t, err)
		// Nest a Buffer-convention payload manually, as it would arrive
		// from the match service's wire representation.
		st.Fields["blob"] = canon.BufferValue([]byte{9, 8, 7})
		_ = json.NewEncoder(w).Encode(wireRecord{Found: true, Result: structpb.NewStructValue(st), MatchLevel: "FUZZY"})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})
	stream := Replay(context.Background(), c, MockRequest{TraceID: "t", SpanID: "s"})
	res, err := stream.AsFuture().Await(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []byte{9, 8, 7}, res.Rows[0]["blob"])
}
