// Package match implements the replay match service client and the
// result-reconstruction machinery described in spec §4.4: given a span's
// input fingerprint, retrieve a recorded result from an out-of-process
// matcher and rebuild a language-level result object whose shape matches
// what the intercepted library would natively return.
package match

import (
	"google.golang.org/protobuf/types/known/structpb"
)

// MatchLevel classifies how a Record was found (spec §3).
type MatchLevel int

const (
	MatchUnspecified MatchLevel = iota
	MatchInputValueHash
	MatchInputValueHashReducedSchema
	MatchInputSchemaHash
	MatchInputSchemaHashReducedSchema
	MatchFuzzy
	MatchFallback
)

func (l MatchLevel) String() string {
	switch l {
	case MatchInputValueHash:
		return "INPUT_VALUE_HASH"
	case MatchInputValueHashReducedSchema:
		return "INPUT_VALUE_HASH_REDUCED_SCHEMA"
	case MatchInputSchemaHash:
		return "INPUT_SCHEMA_HASH"
	case MatchInputSchemaHashReducedSchema:
		return "INPUT_SCHEMA_HASH_REDUCED_SCHEMA"
	case MatchFuzzy:
		return "FUZZY"
	case MatchFallback:
		return "FALLBACK"
	default:
		return "UNSPECIFIED"
	}
}

// MatchScope is the granularity a Record was matched within (spec §3).
type MatchScope int

const (
	ScopeSpan MatchScope = iota
	ScopeTrace
	ScopeGlobal
)

func (s MatchScope) String() string {
	switch s {
	case ScopeTrace:
		return "TRACE"
	case ScopeGlobal:
		return "GLOBAL"
	default:
		return "SPAN"
	}
}

// Candidate is one entry of a Record's top_candidates (spec §3).
type Candidate struct {
	Description     string     `json:"description"`
	SimilarityScore float64    `json:"similarityScore"`
	MatchLevel      MatchLevel `json:"-"`
}

// Record is the entry retrieved by the replay match service (spec §3).
// Result is already a canonical structpb value; ToNative restores any
// Buffer-convention byte sequences within it to native []byte.
type Record struct {
	Result           *structpb.Value
	MatchLevel       MatchLevel
	MatchDescription string
	MatchScope       MatchScope
	TopCandidates    []Candidate
	SimilarityScore  *float64
}

// MockRequest is the fingerprint sent to the match service for each
// replay call (spec §4.4, §6).
type MockRequest struct {
	TraceID             string
	SpanID              string
	Name                string
	InputValue          *structpb.Value
	PackageName         string
	InstrumentationName string
	SubmoduleName       string
	Kind                string
	StackTrace          []string
}

// wireMockRequest/wireRecord are the JSON shapes exchanged with the match
// service over the Twirp-style transport (spec §6).
type wireMockRequest struct {
	TraceID             string          `json:"traceId"`
	SpanID              string          `json:"spanId"`
	Name                string          `json:"name"`
	InputValue          *structpb.Value `json:"inputValue,omitempty"`
	PackageName         string          `json:"packageName"`
	InstrumentationName string          `json:"instrumentationName"`
	SubmoduleName       string          `json:"submoduleName,omitempty"`
	Kind                string          `json:"kind"`
	StackTrace          []string        `json:"stackTrace,omitempty"`
}

type wireCandidate struct {
	Description     string  `json:"description"`
	SimilarityScore float64 `json:"similarityScore"`
	MatchLevel      string  `json:"matchLevel"`
}

type wireRecord struct {
	Found            bool            `json:"found"`
	Result           *structpb.Value `json:"result,omitempty"`
	MatchLevel       string          `json:"matchLevel"`
	MatchDescription string          `json:"matchDescription,omitempty"`
	MatchScope       string          `json:"matchScope,omitempty"`
	TopCandidates    []wireCandidate `json:"topCandidates,omitempty"`
	SimilarityScore  *float64        `json:"similarityScore,omitempty"`
}

func matchLevelFromWire(s string) MatchLevel {
	switch s {
	case "INPUT_VALUE_HASH":
		return MatchInputValueHash
	case "INPUT_VALUE_HASH_REDUCED_SCHEMA":
		return MatchInputValueHashReducedSchema
	case "INPUT_SCHEMA_HASH":
		return MatchInputSchemaHash
	case "INPUT_SCHEMA_HASH_REDUCED_SCHEMA":
		return MatchInputSchemaHashReducedSchema
	case "FUZZY":
		return MatchFuzzy
	case "FALLBACK":
		return MatchFallback
	default:
		return MatchUnspecified
	}
}

func matchScopeFromWire(s string) MatchScope {
	switch s {
	case "TRACE":
		return ScopeTrace
	case "GLOBAL":
		return ScopeGlobal
	default:
		return ScopeSpan
	}
}
