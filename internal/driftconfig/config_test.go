package driftconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	cfg, root, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
	assert.Equal(t, "", cfg.Service.Name)
}

func TestLoadParsesRecognizedKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ConfigDir), 0o755))
	contents := `
service:
  id: svc-1
  name: checkout
recording:
  sampling_rate: 0.25
  exclude_paths:
    - /healthz
transforms:
  http:
    - matcher:
        direction: outbound
        headerName: X-API-Key
      action:
        type: mask
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigDir, ConfigFile), []byte(contents), 0o644))

	cfg, root, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
	assert.Equal(t, "svc-1", cfg.Service.ID)
	assert.Equal(t, "checkout", cfg.Service.Name)
	assert.Equal(t, 0.25, cfg.Recording.SamplingRate)
	assert.Equal(t, []string{"/healthz"}, cfg.Recording.ExcludePaths)
	require.Len(t, cfg.Transforms["http"], 1)
	assert.Equal(t, "mask", cfg.Transforms["http"][0].Action["type"])
}

func TestModeFromEnvDefaultsToDisabled(t *testing.T) {
	os.Unsetenv(ModeEnvVar)
	assert.Equal(t, ModeDisabled, ModeFromEnv())

	os.Setenv(ModeEnvVar, "RECORD")
	defer os.Unsetenv(ModeEnvVar)
	assert.Equal(t, ModeRecord, ModeFromEnv())

	os.Setenv(ModeEnvVar, "garbage")
	assert.Equal(t, ModeDisabled, ModeFromEnv())
}

func TestFindProjectRootWalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ConfigDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigDir, ConfigFile), []byte("{}"), 0o644))
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	resolved, ok := findProjectRoot(nested)
	assert.True(t, ok)
	assert.Equal(t, root, resolved)
}
