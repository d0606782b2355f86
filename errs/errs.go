// Package errs defines the structured error taxonomy from spec §7. Every
// error the runtime surfaces across a package boundary is one of these
// Kinds, so instrumentations and test drivers can classify failures with
// errors.Is/errors.As instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. It does not replace Go's error wrapping; it is
// carried alongside the message so callers can switch on it.
type Kind int

const (
	// KindConfiguration is a fatal, compile-time configuration problem
	// (invalid transform matcher, invalid regex, multi-target matcher).
	KindConfiguration Kind = iota
	// KindCanonicalization is a never-fatal canonicalization fallback.
	KindCanonicalization
	// KindTransformApplication is a never-fatal transform failure; the
	// transform is skipped and the rest of the pipeline proceeds.
	KindTransformApplication
	// KindExportFailure is a {SUCCESS|FAILED} export result surfaced to
	// the exporter pipeline.
	KindExportFailure
	// KindMatchMiss is a structured "no match" surfaced to the
	// instrumentation by the replay mock.
	KindMatchMiss
	// KindReplayTimeout is a match-service RPC timeout or cancellation,
	// surfaced identically to KindMatchMiss per spec §5/§7.
	KindReplayTimeout
	// KindInvariant is a core invariant violation (double end, missing
	// parent, ...). The application never observes these directly; they
	// are logged at ERROR and the operation becomes a no-op.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindCanonicalization:
		return "canonicalization"
	case KindTransformApplication:
		return "transform_application"
	case KindExportFailure:
		return "export_failure"
	case KindMatchMiss:
		return "match_miss"
	case KindReplayTimeout:
		return "replay_timeout"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is the structured error value returned across package boundaries.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a new Error of the given Kind.
func New(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

// Wrap constructs a new Error of the given Kind wrapping cause.
func Wrap(k Kind, msg string, cause error) *Error { return &Error{Kind: k, Msg: msg, Err: cause} }

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// ErrMatchMiss is a sentinel matched by errors.Is when the specific miss
// reason does not matter to the caller.
var ErrMatchMiss = New(KindMatchMiss, "no matching record found")

// ErrReplayTimeout is the sentinel for a match RPC that did not answer
// within its deadline; spec §7 treats this identically to a match miss.
var ErrReplayTimeout = New(KindReplayTimeout, "replay match request timed out")
