package transform

import (
	"encoding/base64"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/replaytrace/core/internal/driftconfig"
	"github.com/replaytrace/core/internal/log"
	"github.com/replaytrace/core/tracer"
)

type compiledTransform struct {
	matcher *Matcher
	action  *Action
}

// Pipeline is a compiled (matcher, action) pipeline applied to spans prior
// to export (spec §4.3).
type Pipeline struct {
	transforms []compiledTransform
}

// Compile compiles every transform-family entry from config into a single
// ordered pipeline. Compile-time errors (bad regex, multi-target matcher,
// unknown action type) are returned, not swallowed, per spec §7's
// "Configuration error ... fatal at compile time".
func Compile(families map[string][]driftconfig.TransformEntry) (*Pipeline, error) {
	p := &Pipeline{}
	// Iterate families in a stable order so pipeline ordering is
	// reproducible across runs with the same config, even though the
	// families themselves are independent package namespaces (http,
	// fetch, ...).
	for _, name := range sortedKeys(families) {
		for i, entry := range families[name] {
			m, err := CompileMatcher(entry.Matcher)
			if err != nil {
				return nil, fmt.Errorf("transforms.%s[%d]: %w", name, i, err)
			}
			a, err := CompileAction(entry.Action)
			if err != nil {
				return nil, fmt.Errorf("transforms.%s[%d]: %w", name, i, err)
			}
			p.transforms = append(p.transforms, compiledTransform{matcher: m, action: a})
		}
	}
	return p, nil
}

func sortedKeys(m map[string][]driftconfig.TransformEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Apply runs every compiled transform against span, in configuration
// order, mutating its input/output values and appending to
// transform_metadata on every successful application (spec §4.3). A
// transform that cannot be applied (non-matching, decode/parse failure) is
// silently skipped; a transform that panics is logged and skipped so the
// rest of the pipeline proceeds (spec §7).
func (p *Pipeline) Apply(span *tracer.Span) {
	for _, ct := range p.transforms {
		applyOne(span, ct)
	}
}

func applyOne(span *tracer.Span, ct compiledTransform) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("transform panicked, skipping: %v", r)
		}
	}()

	view := newSpanView(span)
	if !ct.matcher.matches(view) {
		return
	}

	if ct.action.kind == actionDrop {
		applyDrop(span, ct.action)
		return
	}

	var field string
	var ok bool
	switch ct.matcher.target {
	case targetJSONPath:
		field, ok = applyJSONPath(span, view, ct.matcher, ct.action)
	case targetQueryParam:
		field, ok = applyQueryParam(span, ct.matcher, ct.action)
	case targetHeaderName:
		field, ok = applyHeader(span, ct.matcher, ct.action)
	case targetURLPath:
		field, ok = applyURLPath(span, view, ct.matcher, ct.action)
	case targetFullBody:
		field, ok = applyFullBody(span, view, ct.action)
	}
	if !ok {
		return
	}
	span.AppendTransformAction(tracer.TransformAction{
		Type: ct.action.typeName(), Field: field, Reason: "transforms",
	})
}

// applyDrop replaces input_value and output_value with an empty struct,
// whatever the span kind (spec §4.3, scenario 3).
func applyDrop(span *tracer.Span, action *Action) {
	empty := structpb.NewStructValue(&structpb.Struct{})
	span.SetInputValue(empty)
	span.SetOutputValue(empty)
	span.AppendTransformAction(tracer.TransformAction{
		Type: action.typeName(), Field: "entire_span", Reason: "transforms",
	})
}

// bodyTarget resolves which span value the body lives on for
// jsonPath/fullBody targets. Both worked examples in spec §8 (redacting a
// password, dropping a payment body) transform the body of an OUTBOUND
// span's own request, so "the request (inbound) or response (outbound)
// body" is read here as: input_value always holds the body being sent —
// the request the instrumented service received (inbound) or the request
// it is making (outbound) — which is what every worked scenario exercises
// (see DESIGN.md).
func bodyTarget(span *tracer.Span, _ *spanView) (get func() *structpb.Value, set func(*structpb.Value)) {
	return span.InputValue, span.SetInputValue
}

func applyJSONPath(span *tracer.Span, view *spanView, m *Matcher, action *Action) (string, bool) {
	get, set := bodyTarget(span, view)
	raw := get()
	body, ok := stringField(structValueOf(raw), "body")
	if !ok {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", false
	}
	path := toGjsonPath(m.jsonPath)
	result := gjson.GetBytes(decoded, path)
	if !result.Exists() {
		return "", false
	}
	updated, err := sjson.SetBytes(decoded, path, action.apply(result.String()))
	if err != nil {
		return "", false
	}
	writeBodyField(get, set, base64.StdEncoding.EncodeToString(updated))
	return "jsonPath:" + m.jsonPath, true
}

func applyFullBody(span *tracer.Span, view *spanView, action *Action) (string, bool) {
	get, set := bodyTarget(span, view)
	raw := get()
	body, ok := stringField(structValueOf(raw), "body")
	if !ok {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", false
	}
	updated := action.apply(string(decoded))
	writeBodyField(get, set, base64.StdEncoding.EncodeToString([]byte(updated)))
	return "fullBody", true
}

func writeBodyField(get func() *structpb.Value, set func(*structpb.Value), newBody string) {
	fields := fieldsCopy(structValueOf(get()))
	fields["body"] = structpb.NewStringValue(newBody)
	set(structpb.NewStructValue(&structpb.Struct{Fields: fields}))
}

func applyHeader(span *tracer.Span, m *Matcher, action *Action) (string, bool) {
	in := structValueOf(span.InputValue())
	headers := structValueOf(fieldOf(in, "headers"))
	key, found := lookupHeaderKey(headers, m.headerName)
	if !found {
		return "", false
	}
	old := headers.Fields[key].GetStringValue()
	newHeaders := fieldsCopy(headers)
	newHeaders[key] = structpb.NewStringValue(action.apply(old))

	fields := fieldsCopy(in)
	fields["headers"] = structpb.NewStructValue(&structpb.Struct{Fields: newHeaders})
	span.SetInputValue(structpb.NewStructValue(&structpb.Struct{Fields: fields}))
	return "header:" + m.headerName, true
}

func fieldOf(s *structpb.Struct, key string) *structpb.Value {
	if s == nil {
		return nil
	}
	return s.Fields[key]
}
