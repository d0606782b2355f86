package tracer

import (
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/replaytrace/core/canon"
)

// Kind is the span kind enumeration from spec §3.
type Kind int

const (
	KindUnspecified Kind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "SERVER"
	case KindClient:
		return "CLIENT"
	case KindProducer:
		return "PRODUCER"
	case KindConsumer:
		return "CONSUMER"
	case KindInternal:
		return "INTERNAL"
	default:
		return "UNSPECIFIED"
	}
}

// StatusCode is the span status from spec §3/§4.1.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// Status is attached to a span via SetStatus.
type Status struct {
	Code    StatusCode
	Message string
}

// TransformAction records one applied transform (spec §4.3).
type TransformAction struct {
	Type        string
	Field       string
	Reason      string
	Description string
}

// Duration is seconds+nanos, matching the wire shape in spec §3 rather
// than a single time.Duration, so that serialization doesn't need to
// reconstruct the split representation.
type Duration struct {
	Seconds int64
	Nanos   int32
}

// Span is the tracing core's unit of observation (spec §3). Fields are
// unexported; all mutation goes through the methods below so that
// ownership stays exclusive to the tracing core per spec's lifecycle
// rule — everywhere else only the *Span handle circulates.
type Span struct {
	mu sync.Mutex

	traceID   TraceID
	spanID    SpanID
	parentID  SpanID
	hasParent bool

	name                string
	kind                Kind
	packageName         string
	packageType         string
	submoduleName       string
	instrumentationName string

	inputValue  *structpb.Value
	outputValue *structpb.Value
	metadata    *structpb.Value

	inputSchema, outputSchema         *structpb.Value
	inputSchemaHash, outputSchemaHash string
	inputValueHash, outputValueHash   string

	start    time.Time
	duration Duration

	isRootSpan    bool
	isPreAppStart bool
	status        Status

	transformMetadata []TransformAction

	ended    bool
	exported bool // whether this handle should be handed to the exporter at End
}

// NewSyntheticSpan builds a standalone span disconnected from any real
// trace and never exported, used by the transform engine's
// should-drop-inbound predicate (spec §4.3: "constructs a synthetic span
// with SERVER kind and inputs derived from its arguments... MUST NOT
// mutate any real span").
func NewSyntheticSpan(kind Kind, input any) *Span {
	return &Span{
		spanID:     newSpanID(),
		traceID:    newTraceID(),
		kind:       kind,
		isRootSpan: true,
		start:      time.Now(),
		inputValue: canon.Canonicalize(input),
	}
}

// TraceID returns the span's trace id.
func (s *Span) TraceID() TraceID {
	if s == nil {
		return TraceID{}
	}
	return s.traceID
}

// SpanID returns the span's own id.
func (s *Span) SpanID() SpanID {
	if s == nil {
		return 0
	}
	return s.spanID
}

// ParentSpanID returns the parent id and whether a parent exists.
func (s *Span) ParentSpanID() (SpanID, bool) {
	if s == nil {
		return 0, false
	}
	return s.parentID, s.hasParent
}

// Name returns the span's logical operation name.
func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Kind returns the span kind.
func (s *Span) Kind() Kind {
	if s == nil {
		return KindUnspecified
	}
	return s.kind
}

// IsRootSpan reports whether this span has no parent in its trace.
func (s *Span) IsRootSpan() bool {
	if s == nil {
		return false
	}
	return s.isRootSpan
}

// IsPreAppStart reports whether this span was recorded before the host
// signaled readiness.
func (s *Span) IsPreAppStart() bool {
	if s == nil {
		return false
	}
	return s.isPreAppStart
}

// AddAttributes merges attributes into the span. Output hashes/schemas are
// recomputed at End time, not per call, per spec §4.1.
func (s *Span) AddAttributes(attrs Attributes) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if attrs.OutputValue != nil {
		s.outputValue = canon.Canonicalize(attrs.OutputValue)
	}
	if attrs.Metadata != nil {
		s.metadata = mergeStruct(s.metadata, canon.Canonicalize(attrs.Metadata))
	}
}

// Attributes is the payload accepted by AddAttributes.
type Attributes struct {
	OutputValue any
	Metadata    any
}

func mergeStruct(base, add *structpb.Value) *structpb.Value {
	if base == nil {
		return add
	}
	if add == nil {
		return base
	}
	bs := base.GetStructValue()
	as := add.GetStructValue()
	if bs == nil || as == nil {
		return add
	}
	merged := make(map[string]*structpb.Value, len(bs.Fields)+len(as.Fields))
	for k, v := range bs.Fields {
		merged[k] = v
	}
	for k, v := range as.Fields {
		merged[k] = v
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: merged})
}

// SetStatus sets the span's completion status.
func (s *Span) SetStatus(code StatusCode, message string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{Code: code, Message: message}
}

// InputValue returns the span's canonical input value, or nil if unset.
// Exposed so the transform engine (spec §4.3) can inspect and rewrite it
// without the tracer package importing transform.
func (s *Span) InputValue() *structpb.Value {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputValue
}

// OutputValue returns the span's canonical output value, or nil if unset.
func (s *Span) OutputValue() *structpb.Value {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputValue
}

// SetInputValue overwrites the span's input value, used by the transform
// engine to apply in-place redaction/masking/replacement/drop actions.
func (s *Span) SetInputValue(v *structpb.Value) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputValue = v
}

// SetOutputValue overwrites the span's output value.
func (s *Span) SetOutputValue(v *structpb.Value) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputValue = v
}

// AppendTransformAction records one applied transform (spec §4.3:
// "transform_metadata.actions").
func (s *Span) AppendTransformAction(a TransformAction) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transformMetadata = append(s.transformMetadata, a)
}

// TransformMetadata returns a snapshot of the transform actions applied so
// far.
func (s *Span) TransformMetadata() []TransformAction {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransformAction, len(s.transformMetadata))
	copy(out, s.transformMetadata)
	return out
}

// AsMap renders the span into a generic map, used by logging and by
// instrumentations that want a cheap debug view without depending on the
// wire types. Matches the teacher's Span.AsMap convention, including the
// nil-receiver contract (nil span -> nil map value for ext.SpanName).
func (s *Span) AsMap() map[string]any {
	if s == nil {
		return map[string]any{"name": nil}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"name":         s.name,
		"trace_id":     s.traceID.String(),
		"span_id":      s.spanID.String(),
		"kind":         s.kind.String(),
		"is_root_span": s.isRootSpan,
		"status_code":  s.status.Code,
	}
}
