package transform

import (
	"net/url"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/replaytrace/core/tracer"
)

// spanView is the read side of a *tracer.Span the matcher pipeline
// evaluates against. Field sourcing follows spec §4.3: inbound spans
// describe the incoming request in input_value, outbound spans describe
// the library's own outgoing request in input_value and the remote
// response in output_value.
type spanView struct {
	kind   tracer.Kind
	method string
	path   string // inbound: url; outbound: path
	host   string // inbound: parsed from url; outbound: hostname
}

func newSpanView(span *tracer.Span) *spanView {
	v := &spanView{kind: span.Kind()}
	in := structValueOf(span.InputValue())
	if in == nil {
		return v
	}
	v.method, _ = stringField(in, "method")
	if span.Kind() == tracer.KindServer {
		raw, _ := stringField(in, "url")
		v.path = raw
		v.host = hostFromURL(raw)
	} else {
		v.path, _ = stringField(in, "path")
		v.host, _ = stringField(in, "hostname")
	}
	return v
}

func hostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// spec §4.3: "extracted from url parsed relative to a dummy base"
		u, err = url.Parse("http://dummy.invalid" + raw)
		if err != nil {
			return ""
		}
	}
	return u.Hostname()
}

func structValueOf(v *structpb.Value) *structpb.Struct {
	if v == nil {
		return nil
	}
	return v.GetStructValue()
}

func stringField(s *structpb.Struct, key string) (string, bool) {
	if s == nil {
		return "", false
	}
	f, ok := s.Fields[key]
	if !ok {
		return "", false
	}
	return f.GetStringValue(), true
}

// fieldsCopy returns a shallow copy of s's field map, or an empty map if s
// is nil, so callers can mutate without aliasing the original struct.
func fieldsCopy(s *structpb.Struct) map[string]*structpb.Value {
	out := map[string]*structpb.Value{}
	if s == nil {
		return out
	}
	for k, v := range s.Fields {
		out[k] = v
	}
	return out
}

func lookupHeaderKey(headers *structpb.Struct, name string) (string, bool) {
	if headers == nil {
		return "", false
	}
	for k := range headers.Fields {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}
