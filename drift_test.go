package drift

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaytrace/core/internal/driftconfig"
	"github.com/replaytrace/core/match"
	"github.com/replaytrace/core/tracer"
)

func writeConfig(t *testing.T, dir, yaml string) {
	t.Helper()
	configDir := filepath.Join(dir, driftconfig.ConfigDir)
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, driftconfig.ConfigFile), []byte(yaml), 0o644))
}

func TestMain(m *testing.M) {
	code := m.Run()
	ResetForTest()
	os.Exit(code)
}

func TestInitializeDisabledByDefault(t *testing.T) {
	t.Cleanup(ResetForTest)
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: widgets\n")

	require.NoError(t, Initialize(Options{BaseDirectory: dir}))
	assert.Equal(t, tracer.ModeDisabled, Mode())
	assert.NotNil(t, Core())
	assert.NotNil(t, Dispatcher())
}

func TestInitializeReadsModeFromEnv(t *testing.T) {
	t.Cleanup(ResetForTest)
	t.Setenv(driftconfig.ModeEnvVar, string(driftconfig.ModeRecord))
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: widgets\nrecording:\n  sampling_rate: 1\n")

	require.NoError(t, Initialize(Options{BaseDirectory: dir}))
	assert.Equal(t, tracer.ModeRecord, Mode())
}

func TestMarkAppAsReadyAndIsAppReady(t *testing.T) {
	t.Cleanup(ResetForTest)
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: widgets\n")
	require.NoError(t, Initialize(Options{BaseDirectory: dir}))

	assert.False(t, IsAppReady())
	MarkAppAsReady()
	assert.True(t, IsAppReady())
}

func TestMarkAppAsReadyBeforeInitializeIsNoOp(t *testing.T) {
	t.Cleanup(ResetForTest)
	ResetForTest()
	assert.NotPanics(t, MarkAppAsReady)
	assert.False(t, IsAppReady())
}

func TestInitializeWritesLocalTraceFile(t *testing.T) {
	t.Cleanup(ResetForTest)
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: widgets\ntraces:\n  dir: .drift-traces\n")

	require.NoError(t, Initialize(Options{BaseDirectory: dir}))

	_, err := os.Stat(filepath.Join(dir, ".drift-traces", "spans.ndjson"))
	assert.NoError(t, err, "expected the trace directory to be created eagerly on Initialize")
}

func TestShutdownClearsActiveInstance(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: widgets\n")
	require.NoError(t, Initialize(Options{BaseDirectory: dir}))
	require.NotNil(t, match.DefaultClient())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, Shutdown(ctx))

	assert.Nil(t, Core())
	assert.Nil(t, Dispatcher())
}

func TestResetForTestClearsEverySingleton(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: widgets\n")
	require.NoError(t, Initialize(Options{BaseDirectory: dir}))
	MarkAppAsReady()

	ResetForTest()

	assert.Nil(t, Core())
	assert.Nil(t, match.DefaultClient())
	assert.False(t, IsAppReady())
}
