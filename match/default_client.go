package match

import "sync"

// The mock constructors (spec §4.4) are invoked by instrumentation code
// deep inside a patched library, with no natural place to thread an
// explicit *Client through — the same shape problem the teacher's own
// package-level tracer solves with a default, swappable instance. This
// file is that seam for the replay match side.
var (
	defaultMu     sync.RWMutex
	defaultClient *Client
)

// SetDefaultClient installs c as the Client used by Replay and the mock
// constructors when no explicit Client is supplied.
func SetDefaultClient(c *Client) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultClient = c
}

// DefaultClient returns the installed default Client, or nil if none has
// been set (e.g. before drift.Initialize runs).
func DefaultClient() *Client {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClient
}

// ResetForTest clears the default Client. Per SPEC_FULL.md §12, every
// singleton-shaped service exposes a reset hook so test suites can run in
// isolation without a shared process assumption leaking between cases.
func ResetForTest() {
	SetDefaultClient(nil)
}
