package log

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// testLogger implements a mock Logger.
type testLogger struct {
	mu    sync.RWMutex
	lines []string
}

var _ Logger = &testLogger{}

func (tp *testLogger) Log(msg string) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.lines = append(tp.lines, msg)
}

func (tp *testLogger) Lines() []string {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return tp.lines
}

func TestLogLevels(t *testing.T) {
	tl := &testLogger{}
	SetLogger(tl)
	defer SetLogger(nil)

	SetLevel(LevelWarn)
	Debug("hidden %d", 1)
	Info("hidden %d", 2)
	Warn("visible %d", 3)
	Error("visible %d", 4)

	lines := tl.Lines()
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "visible 3")
	assert.Contains(t, lines[1], "visible 4")
}

func TestErrorRateLimiting(t *testing.T) {
	tl := &testLogger{}
	SetLogger(tl)
	SetLevel(LevelError)
	defer SetLogger(nil)
	defer SetLevel(LevelInfo)

	errMu.Lock()
	oldRate := errrate
	errrate = time.Hour
	lastErrLog = time.Time{}
	suppressed = 0
	errMu.Unlock()
	defer func() {
		errMu.Lock()
		errrate = oldRate
		errMu.Unlock()
	}()

	Error("boom 1")
	Error("boom 2")
	Error("boom 3")

	lines := tl.Lines()
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "boom 1")
}

func TestOpenFileAtPath(t *testing.T) {
	t.Run("invalid", func(t *testing.T) {
		f, err := OpenFileAtPath("/proc/invalid/\x00path")
		assert.Nil(t, f)
		assert.Error(t, err)
	})
	t.Run("valid", func(t *testing.T) {
		dir, err := os.MkdirTemp("", "drift-log")
		assert.NoError(t, err)
		defer os.RemoveAll(dir)

		f, err := OpenFileAtPath(dir)
		assert.NoError(t, err)
		assert.NotNil(t, f)
		f.Log("hello")
		assert.NoError(t, f.Close())
		// second close is a no-op
		assert.NoError(t, f.Close())
	})
}
