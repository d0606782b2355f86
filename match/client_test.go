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

	"github.com/replaytrace/core/errs"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "test-key", Timeout: 2 * time.Second})
	return c, srv.Close
}

func TestFetchReturnsRecordOnMatch(t *testing.T) {
	c, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "true", r.Header.Get("x-td-skip-instrumentation"))
		var req wireMockRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "trace-1", req.TraceID)

		resp := wireRecord{
			Found:      true,
			Result:     structpb.NewStringValue("ok"),
			MatchLevel: "INPUT_VALUE_HASH",
			MatchScope: "SPAN",
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer closeSrv()

	rec, err := c.Fetch(context.Background(), MockRequest{TraceID: "trace-1", SpanID: "span-1", Name: "query"})
	require.NoError(t, err)
	assert.Equal(t, "ok", rec.Result.GetStringValue())
	assert.Equal(t, MatchInputValueHash, rec.MatchLevel)
	assert.Equal(t, ScopeSpan, rec.MatchScope)
}

func TestFetchReturnsMatchMissWhenNotFound(t *testing.T) {
	c, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wireRecord{Found: false})
	})
	defer closeSrv()

	_, err := c.Fetch(context.Background(), MockRequest{TraceID: "t", SpanID: "s"})
	assert.True(t, errs.Is(err, errs.KindMatchMiss))
}

func TestFetchSurfacesNon2xxAsMatchMiss(t *testing.T) {
	c, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer closeSrv()

	_, err := c.Fetch(context.Background(), MockRequest{TraceID: "t", SpanID: "s"})
	assert.True(t, errs.Is(err, errs.KindMatchMiss))
}

func TestFetchSurfacesTimeoutAsReplayTimeout(t *testing.T) {
	c, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(wireRecord{Found: true, Result: structpb.NewStringValue("late")})
	})
	defer closeSrv()
	c.timeout = 5 * time.Millisecond

	_, err := c.Fetch(context.Background(), MockRequest{TraceID: "t", SpanID: "s"})
	assert.True(t, errs.Is(err, errs.KindReplayTimeout))
}

func TestDefaultClientResetForTest(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://example.invalid"})
	SetDefaultClient(c)
	assert.Same(t, c, DefaultClient())
	ResetForTest()
	assert.Nil(t, DefaultClient())
}
