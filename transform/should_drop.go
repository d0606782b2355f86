package transform

import (
	"encoding/base64"

	"github.com/replaytrace/core/tracer"
)

// ShouldDropInbound implements spec §4.3's should-drop-inbound predicate:
// construct a synthetic SERVER-kind span from the call's raw shape, run
// the compiled pipeline against it, and report whether any transform
// produced a drop action. The synthetic span is never exported and is
// discarded after evaluation, so no real span is ever mutated.
func (p *Pipeline) ShouldDropInbound(method, rawURL string, headers map[string]string, body []byte) bool {
	headerFields := make(map[string]any, len(headers))
	for k, v := range headers {
		headerFields[k] = v
	}
	input := map[string]any{
		"method":  method,
		"url":     rawURL,
		"headers": headerFields,
		"body":    base64.StdEncoding.EncodeToString(body),
	}
	span := tracer.NewSyntheticSpan(tracer.KindServer, input)
	p.Apply(span)
	for _, a := range span.TransformMetadata() {
		if a.Type == "drop" {
			return true
		}
	}
	return false
}
