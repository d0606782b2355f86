package transform

import (
	"net/url"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/replaytrace/core/tracer"
)

// urlFieldKeys returns, in priority order, the input_value field names
// that may hold the URL string for a query-param/urlPath target: inbound
// spans may use either "url" or "target" (spec §4.3: "must work on both
// url and target fields for inbound spans"); outbound spans use "path".
func urlFieldKeys(kind tracer.Kind) []string {
	if kind == tracer.KindServer {
		return []string{"url", "target"}
	}
	return []string{"path"}
}

func applyQueryParam(span *tracer.Span, m *Matcher, action *Action) (string, bool) {
	in := structValueOf(span.InputValue())
	for _, key := range urlFieldKeys(m.matchKind()) {
		raw, ok := stringField(in, key)
		if !ok {
			continue
		}
		updated, matched := setQueryParam(raw, m.queryParam, action)
		if !matched {
			continue
		}
		fields := fieldsCopy(in)
		fields[key] = structpb.NewStringValue(updated)
		span.SetInputValue(structpb.NewStructValue(&structpb.Struct{Fields: fields}))
		return "query:" + m.queryParam, true
	}
	return "", false
}

func setQueryParam(raw, param string, action *Action) (string, bool) {
	base, query := splitQuery(raw)
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", false
	}
	old := values.Get(param)
	if _, present := values[param]; !present {
		return "", false
	}
	values.Set(param, action.apply(old))
	return base + "?" + values.Encode(), true
}

func splitQuery(raw string) (base, query string) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '?' {
			return raw[:i], raw[i+1:]
		}
	}
	return raw, ""
}

func applyURLPath(span *tracer.Span, view *spanView, m *Matcher, action *Action) (string, bool) {
	in := structValueOf(span.InputValue())
	for _, key := range urlFieldKeys(view.kind) {
		old, ok := stringField(in, key)
		if !ok {
			continue
		}
		fields := fieldsCopy(in)
		fields[key] = structpb.NewStringValue(action.apply(old))
		span.SetInputValue(structpb.NewStructValue(&structpb.Struct{Fields: fields}))
		return "urlPath", true
	}
	return "", false
}

// matchKind exposes which span kind this matcher targets, used to resolve
// direction-dependent field names without re-deriving it from Direction.
func (m *Matcher) matchKind() tracer.Kind {
	if m.Direction == DirectionInbound {
		return tracer.KindServer
	}
	return tracer.KindClient
}
