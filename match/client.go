package match

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/twitchtv/twirp"

	"github.com/replaytrace/core/errs"
	"github.com/replaytrace/core/internal/log"
	"github.com/replaytrace/core/tracer"
)

// defaultMatchTimeout is the match-service RPC's own timeout, measured
// from dispatch (spec §5).
const defaultMatchTimeout = 30 * time.Second

// Client talks to the out-of-process replay matcher over the same
// Twirp-style convention the remote export adapter uses (spec §6,
// SPEC_FULL.md §11): POST <baseURL>/api/drift/<ServiceName>/<Method>.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient constructs a match service Client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultMatchTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, timeout: timeout, client: httpClient}
}

// Fetch sends req to the match service and returns the retrieved Record,
// or an *errs.Error of KindMatchMiss / KindReplayTimeout on a miss,
// timeout, or cancellation (spec §4.4, §5, §7 — both are surfaced
// identically to the caller).
func (c *Client) Fetch(ctx context.Context, req MockRequest) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	wireReq := wireMockRequest{
		TraceID:             req.TraceID,
		SpanID:              req.SpanID,
		Name:                req.Name,
		InputValue:          req.InputValue,
		PackageName:         req.PackageName,
		InstrumentationName: req.InstrumentationName,
		SubmoduleName:       req.SubmoduleName,
		Kind:                req.Kind,
		StackTrace:          req.StackTrace,
	}
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, errs.Wrap(errs.KindMatchMiss, "failed to encode match request", err)
	}

	url := fmt.Sprintf("%s/api/drift/ReplayMatcher/Match", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindMatchMiss, "failed to build match request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(tracer.APIKeyHeader, c.apiKey)
	// Every RPC this runtime makes about itself is classified "ignored"
	// by the dispatcher (spec §4.2/§6) so the matcher's own traffic is
	// never itself recorded or replayed.
	httpReq.Header.Set(tracer.SkipInstrumentationHeader, "true")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("match RPC timed out/cancelled: %v", err)
			return nil, errs.Wrap(errs.KindReplayTimeout, "replay match request timed out", err)
		}
		log.Warn("match RPC failed: %v", err)
		return nil, errs.Wrap(errs.KindMatchMiss, "match RPC failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		twerr := twirp.NewError(twirpErrorCodeForStatus(resp.StatusCode), "match request rejected")
		return nil, errs.Wrap(errs.KindMatchMiss, "match service rejected request", twerr)
	}

	var out wireRecord
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.KindMatchMiss, "failed to decode match response", err)
	}
	if !out.Found {
		log.Warn("no matching record for span %s/%s", req.TraceID, req.SpanID)
		return nil, errs.ErrMatchMiss
	}

	rec := &Record{
		Result:           out.Result,
		MatchLevel:       matchLevelFromWire(out.MatchLevel),
		MatchDescription: out.MatchDescription,
		MatchScope:       matchScopeFromWire(out.MatchScope),
		SimilarityScore:  out.SimilarityScore,
	}
	for _, cand := range out.TopCandidates {
		rec.TopCandidates = append(rec.TopCandidates, Candidate{
			Description:     cand.Description,
			SimilarityScore: cand.SimilarityScore,
			MatchLevel:      matchLevelFromWire(cand.MatchLevel),
		})
	}
	return rec, nil
}

// Shutdown releases the client's idle HTTP connections.
func (c *Client) Shutdown() {
	c.client.CloseIdleConnections()
}

func twirpErrorCodeForStatus(status int) twirp.ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return twirp.Unauthenticated
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
