package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replaytrace/core/tracer"
)

func TestDisabledAlwaysPassesThrough(t *testing.T) {
	d := New(tracer.ModeDisabled, 1.0)
	d.MarkAppAsReady()
	action, pre := d.Decide(OriginUser)
	assert.Equal(t, ActionPassThrough, action)
	assert.False(t, pre)
}

func TestRecordBeforeAppReadyAlwaysRecordsAsPreAppStart(t *testing.T) {
	d := New(tracer.ModeRecord, 0)
	action, pre := d.Decide(OriginUser)
	assert.Equal(t, ActionRecord, action)
	assert.True(t, pre)
}

func TestRecordAfterReadyIgnoredOriginPassesThrough(t *testing.T) {
	d := New(tracer.ModeRecord, 1.0)
	d.MarkAppAsReady()
	action, pre := d.Decide(OriginIgnored)
	assert.Equal(t, ActionPassThrough, action)
	assert.False(t, pre)
}

func TestRecordAfterReadyInternalAlwaysRecords(t *testing.T) {
	d := New(tracer.ModeRecord, 0)
	d.MarkAppAsReady()
	action, _ := d.Decide(OriginInternal)
	assert.Equal(t, ActionRecord, action)
}

func TestRecordAfterReadyUserHonorsSamplingRate(t *testing.T) {
	always := New(tracer.ModeRecord, 1.0)
	always.MarkAppAsReady()
	for i := 0; i < 50; i++ {
		action, _ := always.Decide(OriginUser)
		assert.Equal(t, ActionRecord, action)
	}

	never := New(tracer.ModeRecord, 0)
	never.MarkAppAsReady()
	for i := 0; i < 50; i++ {
		action, _ := never.Decide(OriginUser)
		assert.Equal(t, ActionPassThrough, action)
	}
}

func TestReplayIgnoredOriginPassesThrough(t *testing.T) {
	d := New(tracer.ModeReplay, 0)
	action, _ := d.Decide(OriginIgnored)
	assert.Equal(t, ActionPassThrough, action)
}

func TestReplayUserAndInternalReplay(t *testing.T) {
	d := New(tracer.ModeReplay, 0)
	action, _ := d.Decide(OriginUser)
	assert.Equal(t, ActionReplay, action)
	action, _ = d.Decide(OriginInternal)
	assert.Equal(t, ActionReplay, action)
}

func TestMarkAppAsReadyIsIdempotent(t *testing.T) {
	d := New(tracer.ModeRecord, 0)
	d.MarkAppAsReady()
	d.MarkAppAsReady()
	assert.True(t, d.IsAppReady())
}

func TestOriginFromHeadersSkipInstrumentation(t *testing.T) {
	headers := map[string]string{"X-TD-Skip-Instrumentation": "true"}
	assert.Equal(t, OriginIgnored, OriginFromHeaders(headers, OriginUser))
}

func TestOriginFromHeadersFallsBackWhenAbsent(t *testing.T) {
	headers := map[string]string{"content-type": "application/json"}
	assert.Equal(t, OriginUser, OriginFromHeaders(headers, OriginUser))
}

func TestShouldDropInboundDefaultsToFalseWithoutPredicate(t *testing.T) {
	d := New(tracer.ModeRecord, 0)
	assert.False(t, d.ShouldDropInbound("GET", "/health", nil, nil))
}

func TestShouldDropInboundDelegatesToInstalledPredicate(t *testing.T) {
	d := New(tracer.ModeRecord, 0)
	d.SetInboundDropFunc(func(method, url string, headers map[string]string, body []byte) bool {
		return url == "/health"
	})
	assert.True(t, d.ShouldDropInbound("GET", "/health", nil, nil))
	assert.False(t, d.ShouldDropInbound("GET", "/other", nil, nil))
}
