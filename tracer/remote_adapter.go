package tracer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/twitchtv/twirp"

	"github.com/replaytrace/core/internal/globalinstance"
	"github.com/replaytrace/core/internal/log"
)

// defaultExportTimeout is the remote adapter's own RPC timeout (spec §5).
const defaultExportTimeout = 10 * time.Second

// SkipInstrumentationHeader marks traffic the runtime generates about
// itself so the dispatcher classifies it as "ignored" (spec §4.2/§6) and
// never recursively traces its own export calls.
const SkipInstrumentationHeader = "x-td-skip-instrumentation"

// APIKeyHeader carries the collector API key (spec §6).
const APIKeyHeader = "x-api-key"

// RemoteAdapter exports batches to an external collector over a
// Twirp-style RPC: POST <baseURL>/api/drift/<ServiceName>/<Method> (spec
// §6). A non-2xx response becomes a typed twirp.NewError whose ErrorCode
// twirpErrorCode picks from the HTTP status, instead of ad hoc string
// matching (SPEC_FULL.md §11).
type RemoteAdapter struct {
	name                string
	baseURL             string
	apiKey              string
	environment         string
	observableServiceID string
	client              *http.Client
}

// RemoteAdapterConfig configures a RemoteAdapter.
type RemoteAdapterConfig struct {
	Name                string
	BaseURL             string
	APIKey              string
	Environment         string
	ObservableServiceID string
	HTTPClient          *http.Client
}

// NewRemoteAdapter constructs a RemoteAdapter.
func NewRemoteAdapter(cfg RemoteAdapterConfig) *RemoteAdapter {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultExportTimeout}
	}
	name := cfg.Name
	if name == "" {
		name = "remote"
	}
	return &RemoteAdapter{
		name:                name,
		baseURL:             cfg.BaseURL,
		apiKey:              cfg.APIKey,
		environment:         cfg.Environment,
		observableServiceID: cfg.ObservableServiceID,
		client:              client,
	}
}

func (r *RemoteAdapter) Name() string { return r.name }

// CollectSpan is a no-op for the remote adapter: it only supports bulk
// export (spec §3: "used for remote adapters").
func (r *RemoteAdapter) CollectSpan(*Span) {}

func (r *RemoteAdapter) ExportSpans(ctx context.Context, batch []*Span) ExportResult {
	ctx, cancel := context.WithTimeout(ctx, defaultExportTimeout)
	defer cancel()

	req := &ExportSpansRequest{
		ObservableServiceID: r.observableServiceID,
		Environment:         r.environment,
		SDKVersion:          globalinstance.SDKVersion,
		SDKInstanceID:       globalinstance.InstanceID(),
	}
	for _, s := range batch {
		req.Spans = append(req.Spans, s.ToWire())
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ExportResult{Code: ExportFailed, Error: err}
	}

	url := fmt.Sprintf("%s/api/drift/TraceCollector/ExportSpans", r.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ExportResult{Code: ExportFailed, Error: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(APIKeyHeader, r.apiKey)
	httpReq.Header.Set(SkipInstrumentationHeader, "true")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		log.Warn("export RPC failed: %v", err)
		return ExportResult{Code: ExportFailed, Error: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		twerr := twirp.NewError(twirpErrorCode(resp.StatusCode), "export rejected by collector")
		return ExportResult{Code: ExportFailed, Error: twerr}
	}

	var out ExportSpansResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ExportResult{Code: ExportFailed, Error: err}
	}
	if !out.Success {
		return ExportResult{Code: ExportFailed, Error: fmt.Errorf("%s", out.Message)}
	}
	return ExportResult{Code: ExportSuccess}
}

// Shutdown releases the underlying HTTP transport's idle connections.
func (r *RemoteAdapter) Shutdown(context.Context) error {
	r.client.CloseIdleConnections()
	return nil
}

func twirpErrorCode(status int) twirp.ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return twirp.Unauthenticated
	case status == http.StatusForbidden:
		return twirp.PermissionDenied
	case status == http.StatusNotFound:
		return twirp.NotFound
	case status == http.StatusTooManyRequests:
		return twirp.ResourceExhausted
	case status >= 500:
		return twirp.Internal
	default:
		return twirp.Unknown
	}
}
