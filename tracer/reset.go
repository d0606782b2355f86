package tracer

import "github.com/replaytrace/core/internal/log"

// ResetForTest restores the package-level logging state tracer shares
// with the rest of the runtime (internal/log's level and sink) to their
// defaults. Core, Exporter, and BlockingManager are explicitly
// constructed per call site rather than package singletons (spec §9:
// "Singletons ... should be expressed as explicitly constructed
// services"), so this is the one piece of genuinely global state left in
// this package for a test suite to reset between cases (SPEC_FULL.md
// §12).
func ResetForTest() {
	log.SetLevel(log.LevelInfo)
	log.SetLogger(nil)
}
