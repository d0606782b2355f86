package tracer

import (
	"google.golang.org/protobuf/types/known/structpb"
)

// WireSpan is the Protocol Buffers shape of a Span for export (spec §6).
// Structured values use structpb.Value/structpb.Struct directly — that
// type IS the "Struct/Value oneof with {nullValue, boolValue, numberValue,
// stringValue, listValue, structValue}" the spec describes, not a
// hand-rolled lookalike (see SPEC_FULL.md §11).
type WireSpan struct {
	TraceID      string `json:"traceId"`
	SpanID       string `json:"spanId"`
	ParentSpanID string `json:"parentSpanId,omitempty"`

	Name                string `json:"name"`
	Kind                string `json:"kind"`
	PackageName         string `json:"packageName"`
	PackageType         string `json:"packageType"`
	SubmoduleName       string `json:"submoduleName,omitempty"`
	InstrumentationName string `json:"instrumentationName"`

	InputValue  *structpb.Value `json:"inputValue,omitempty"`
	OutputValue *structpb.Value `json:"outputValue,omitempty"`
	Metadata    *structpb.Value `json:"metadata,omitempty"`

	InputSchema      *structpb.Value `json:"inputSchema,omitempty"`
	OutputSchema     *structpb.Value `json:"outputSchema,omitempty"`
	InputSchemaHash  string          `json:"inputSchemaHash,omitempty"`
	OutputSchemaHash string          `json:"outputSchemaHash,omitempty"`
	InputValueHash   string          `json:"inputValueHash,omitempty"`
	OutputValueHash  string          `json:"outputValueHash,omitempty"`

	TimestampUnixNano int64 `json:"timestampUnixNano"`
	DurationSeconds   int64 `json:"durationSeconds"`
	DurationNanos     int32 `json:"durationNanos"`

	IsRootSpan    bool `json:"isRootSpan"`
	IsPreAppStart bool `json:"isPreAppStart"`

	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage,omitempty"`

	TransformMetadata []WireTransformAction `json:"transformMetadata,omitempty"`
}

// WireTransformAction is the wire shape of a TransformAction.
type WireTransformAction struct {
	Type        string `json:"type"`
	Field       string `json:"field"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
}

// ToWire renders s into its exportable wire shape. It is called after End
// has finalized the span, by the exporter's size check and by each
// adapter that serializes the span.
func (s *Span) ToWire() *WireSpan {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &WireSpan{
		TraceID:             s.traceID.String(),
		SpanID:              s.spanID.String(),
		Name:                s.name,
		Kind:                s.kind.String(),
		PackageName:         s.packageName,
		PackageType:         s.packageType,
		SubmoduleName:       s.submoduleName,
		InstrumentationName: s.instrumentationName,
		InputValue:          s.inputValue,
		OutputValue:         s.outputValue,
		Metadata:            s.metadata,
		InputSchema:         s.inputSchema,
		OutputSchema:        s.outputSchema,
		InputSchemaHash:     s.inputSchemaHash,
		OutputSchemaHash:    s.outputSchemaHash,
		InputValueHash:      s.inputValueHash,
		OutputValueHash:     s.outputValueHash,
		TimestampUnixNano:   s.start.UnixNano(),
		DurationSeconds:     s.duration.Seconds,
		DurationNanos:       s.duration.Nanos,
		IsRootSpan:          s.isRootSpan,
		IsPreAppStart:       s.isPreAppStart,
		StatusMessage:       s.status.Message,
	}
	if s.hasParent {
		w.ParentSpanID = s.parentID.String()
	}
	switch s.status.Code {
	case StatusOK:
		w.StatusCode = "OK"
	case StatusError:
		w.StatusCode = "ERROR"
	default:
		w.StatusCode = "UNSET"
	}
	for _, a := range s.transformMetadata {
		w.TransformMetadata = append(w.TransformMetadata, WireTransformAction{
			Type: a.Type, Field: a.Field, Reason: a.Reason, Description: a.Description,
		})
	}
	return w
}

// ExportSpansRequest is the wire envelope from spec §6.
type ExportSpansRequest struct {
	ObservableServiceID string      `json:"observableServiceId"`
	Environment         string      `json:"environment"`
	SDKVersion          string      `json:"sdkVersion"`
	SDKInstanceID       string      `json:"sdkInstanceId"`
	Spans               []*WireSpan `json:"spans"`
}

// ExportSpansResponse is the wire response from spec §6.
type ExportSpansResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
