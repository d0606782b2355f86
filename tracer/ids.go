package tracer

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// TraceID is the 128-bit trace identifier (spec §3).
type TraceID [16]byte

// String renders the trace id as lowercase hex, the conventional wire
// form for a 128-bit identifier.
func (t TraceID) String() string { return hex.EncodeToString(t[:]) }

// IsZero reports whether t is the zero value (used to represent "no
// trace", e.g. on a nil Span).
func (t TraceID) IsZero() bool { return t == TraceID{} }

// SpanID is the 64-bit span identifier (spec §3).
type SpanID uint64

func (s SpanID) String() string { return hex.EncodeToString(encodeSpanID(s)) }

func encodeSpanID(s SpanID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s))
	return b
}

// newTraceID generates a new 128-bit trace id from a random (version 4)
// UUID: 122 of its bits are random and the other 6 hold the UUID version
// and variant. This reaches for google/uuid rather than hand-rolling 16
// bytes of crypto/rand (see SPEC_FULL.md §11).
func newTraceID() TraceID {
	return TraceID(uuid.New())
}

// newSpanID generates a new random, non-zero 64-bit span id.
func newSpanID() SpanID {
	for {
		var b [8]byte
		_, _ = rand.Read(b[:])
		id := SpanID(binary.BigEndian.Uint64(b[:]))
		if id != 0 {
			return id
		}
	}
}
