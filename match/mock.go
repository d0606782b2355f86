package match

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/replaytrace/core/canon"
	"github.com/replaytrace/core/errs"
	"github.com/replaytrace/core/internal/log"
	"github.com/replaytrace/core/tracer"
)

// canonicalizeInput is the thin seam over canon.Canonicalize used
// throughout this package, kept as its own function so call sites read as
// "canonicalize this call's input" rather than reaching into canon
// directly everywhere.
func canonicalizeInput(v any) *structpb.Value {
	if v == nil {
		return nil
	}
	return canon.Canonicalize(v)
}

// Replay issues a fingerprinted replay request and reconstructs the
// native result shape from the retrieved Record (spec §4.4). If ctx
// carries no ambient span and req carries neither a TraceID nor a SpanID,
// this is the "no-op replay" case: background work with no recorded call
// site returns an empty successful result rather than attempting a match
// (spec §4.4).
func Replay(ctx context.Context, client *Client, req MockRequest) *ResultStream {
	span := tracer.SpanFromContext(ctx)
	if span == nil && req.TraceID == "" && req.SpanID == "" {
		log.Debug("replay call %q has no ambient span context; returning empty result", req.Name)
		return singleResultStream(nil, nil, nil)
	}

	if client == nil {
		client = DefaultClient()
	}
	if client == nil {
		return singleResultStream(nil, nil, errs.New(errs.KindMatchMiss, "no match client configured"))
	}

	rec, err := client.Fetch(ctx, req)
	if err != nil {
		if span != nil {
			span.SetStatus(tracer.StatusError, err.Error())
		}
		return singleResultStream(nil, nil, err)
	}

	fields, rows := reconstructRows(rec.Result)
	return singleResultStream(fields, rows, nil)
}

// reconstructRows converts a Record's canonical Result into the
// (fields, rows) shape ResultStream's projections expect, restoring
// Buffer-convention byte sequences along the way (spec §4.4, "Buffer
// restoration"). A list of objects becomes one row per element with
// fields taken from the first row's keys; a bare object becomes a single
// row; any other shape becomes a single row under the key "value" so
// scalar-returning calls (e.g. a single INSERT id) still fit the uniform
// fields/rows projection.
func reconstructRows(result *structpb.Value) (map[string]any, []Row) {
	if result == nil {
		return nil, nil
	}
	native := canon.ToNative(result)
	switch v := native.(type) {
	case []any:
		rows := make([]Row, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			} else {
				rows = append(rows, Row{"value": item})
			}
		}
		var fields map[string]any
		if len(rows) > 0 {
			fields = fieldsOf(rows[0])
		}
		return fields, rows
	case map[string]any:
		return fieldsOf(v), []Row{v}
	default:
		row := Row{"value": v}
		return fieldsOf(row), []Row{row}
	}
}

// fieldsOf derives a minimal fields header from row's keys. Real field
// packets carry type metadata the canonical record does not preserve, so
// this stands in with the column name, which is enough for callers that
// only consult fields for column presence/order.
func fieldsOf(row Row) map[string]any {
	out := make(map[string]any, len(row))
	for k := range row {
		out[k] = k
	}
	return out
}
