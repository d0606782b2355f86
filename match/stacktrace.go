package match

import (
	"runtime"
	"strconv"
)

// maxStackFrames bounds how deep CaptureStackTrace walks before giving up,
// matching the teacher's own span-stacktrace capture's depth cap.
const maxStackFrames = 64

// FramePrefixFilter is a configurable list of frame prefixes to strip from
// a captured stack trace (spec §4.4: "a configurable list of frame
// prefixes, e.g. the mock class names themselves, are removed so only
// user frames remain"). Function names are matched by prefix against
// runtime.Frame.Function, which already includes the full package path.
type FramePrefixFilter []string

// DefaultFramePrefixFilter strips the match and tracer packages' own
// frames so a captured trace starts at the instrumentation call site's
// caller, not inside the match package's own plumbing.
var DefaultFramePrefixFilter = FramePrefixFilter{
	"github.com/replaytrace/core/match.",
	"github.com/replaytrace/core/tracer.",
}

// CaptureStackTrace walks the call stack starting above its own frame,
// filtering out any frame whose function name matches a prefix in filter,
// and returns the remaining frames as "function (file:line)" strings.
func CaptureStackTrace(filter FramePrefixFilter) []string {
	pcs := make([]uintptr, maxStackFrames)
	// skip=2: runtime.Callers itself and this function's own frame.
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var out []string
	for {
		frame, more := frames.Next()
		if !matchesAnyPrefix(frame.Function, filter) {
			out = append(out, formatFrame(frame))
		}
		if !more {
			break
		}
	}
	return out
}

func matchesAnyPrefix(fn string, filter FramePrefixFilter) bool {
	for _, p := range filter {
		if len(fn) >= len(p) && fn[:len(p)] == p {
			return true
		}
	}
	return false
}

func formatFrame(f runtime.Frame) string {
	if f.File == "" {
		return f.Function
	}
	return f.Function + " (" + f.File + ":" + strconv.Itoa(f.Line) + ")"
}
