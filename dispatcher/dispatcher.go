// Package dispatcher implements the record/replay gate (spec §4.2): the
// single decision point that turns (mode, app-readiness, request-origin,
// sampling) into an action for a given call.
package dispatcher

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/replaytrace/core/tracer"
)

// Action is what the dispatcher decided to do with a call.
type Action int

const (
	// ActionPassThrough means run the real operation untraced.
	ActionPassThrough Action = iota
	// ActionRecord means run the real operation under a new span.
	ActionRecord
	// ActionReplay means serve the call from the match service instead of
	// running it for real.
	ActionReplay
)

// SkipInstrumentationHeader is the side-channel header the runtime stamps
// on its own outbound traffic (export, match-service RPCs) so that it is
// never recursively instrumented (spec §4.2).
const SkipInstrumentationHeader = "x-td-skip-instrumentation"

// Origin classifies the ambient call context (spec §4.2).
type Origin int

const (
	OriginUser Origin = iota
	OriginInternal
	OriginIgnored
)

// OriginFromHeaders classifies a call by inspecting its headers, applying
// the mandatory skip-instrumentation rule before anything else.
func OriginFromHeaders(headers map[string]string, fallback Origin) Origin {
	for k, v := range headers {
		if equalFoldASCII(k, SkipInstrumentationHeader) && equalFoldASCII(v, "true") {
			return OriginIgnored
		}
	}
	return fallback
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// InboundDropFunc is the hook the transform engine registers so the
// dispatcher can consult should-drop-inbound without importing the
// transform package (dependency order: transform engine -> dispatcher,
// mirroring the tracer core's TransformFunc hook).
type InboundDropFunc func(method, url string, headers map[string]string, body []byte) bool

// Dispatcher gates every instrumented call. It is explicitly constructed
// and holds no package-level state (spec §9).
type Dispatcher struct {
	mode tracer.Mode

	appReady atomic.Bool

	samplingRate float64

	mu          sync.RWMutex
	dropInbound InboundDropFunc

	// inboundGroup collapses concurrent should-drop-inbound evaluations for
	// the same (method, url, headers, body) tuple onto a single compiled
	// pipeline run, since two requests racing in on the same hot path
	// (e.g. a health check hit by several goroutines at once) would
	// otherwise each pay the full matcher pipeline independently.
	inboundGroup singleflight.Group
}

// New constructs a Dispatcher for the given process-wide mode and
// sampling rate. samplingRate is clamped to [0,1].
func New(mode tracer.Mode, samplingRate float64) *Dispatcher {
	if samplingRate < 0 {
		samplingRate = 0
	}
	if samplingRate > 1 {
		samplingRate = 1
	}
	return &Dispatcher{mode: mode, samplingRate: samplingRate}
}

// SetInboundDropFunc installs the should-drop-inbound predicate.
func (d *Dispatcher) SetInboundDropFunc(fn InboundDropFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropInbound = fn
}

// MarkAppAsReady flips the process-wide readiness flag (spec §4.2,
// §5: "a second call to markAppAsReady is a no-op").
func (d *Dispatcher) MarkAppAsReady() { d.appReady.Store(true) }

// IsAppReady reports the current readiness flag.
func (d *Dispatcher) IsAppReady() bool { return d.appReady.Load() }

// Decide implements the outbound decision table from spec §4.2.
// isPreAppStart is true for a RECORD-mode call made before
// MarkAppAsReady. Root-call detection is the caller's responsibility,
// since only the tracer knows the current span stack.
func (d *Dispatcher) Decide(origin Origin) (action Action, isPreAppStart bool) {
	switch d.mode {
	case tracer.ModeDisabled:
		return ActionPassThrough, false

	case tracer.ModeRecord:
		if !d.appReady.Load() {
			return ActionRecord, true
		}
		switch origin {
		case OriginIgnored:
			return ActionPassThrough, false
		case OriginInternal:
			return ActionRecord, false
		default: // OriginUser
			if d.sample() {
				return ActionRecord, false
			}
			return ActionPassThrough, false
		}

	case tracer.ModeReplay:
		if origin == OriginIgnored {
			return ActionPassThrough, false
		}
		return ActionReplay, false
	}
	return ActionPassThrough, false
}

// sample draws a sampling decision with probability d.samplingRate,
// following the teacher's pattern of a single uniform draw per decision
// (grounded in dd-trace-go's rand-based rules sampler) rather than a
// deterministic hash, since outbound sampling here has no cross-process
// consistency requirement to preserve.
func (d *Dispatcher) sample() bool {
	if d.samplingRate >= 1 {
		return true
	}
	if d.samplingRate <= 0 {
		return false
	}
	return rand.Float64() < d.samplingRate
}

// ShouldDropInbound consults the transform engine's predicate, defaulting
// to "do not drop" when no predicate has been installed (spec §4.2's
// inbound consultation is additive, never a hard dependency on the
// transform package being wired).
func (d *Dispatcher) ShouldDropInbound(method, url string, headers map[string]string, body []byte) bool {
	d.mu.RLock()
	fn := d.dropInbound
	d.mu.RUnlock()
	if fn == nil {
		return false
	}

	key := inboundKey(method, url, headers, body)
	v, _, _ := d.inboundGroup.Do(key, func() (any, error) {
		return fn(method, url, headers, body), nil
	})
	return v.(bool)
}

func inboundKey(method, url string, headers map[string]string, body []byte) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(headers[k]))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
