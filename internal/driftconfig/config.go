// Package driftconfig loads the optional .tusk/config.yaml file (spec §6)
// and the environment variables that select process mode and API
// credentials.
package driftconfig

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Mode mirrors the three process-wide states from spec §4.2.
type Mode string

const (
	ModeDisabled Mode = "DISABLED"
	ModeRecord   Mode = "RECORD"
	ModeReplay   Mode = "REPLAY"
)

// ModeEnvVar is the environment variable that selects the process mode.
const ModeEnvVar = "TUSK_DRIFT_MODE"

// APIKeyEnvVar optionally supplies the collector API key outside of the
// host's explicit Initialize call.
const APIKeyEnvVar = "TUSK_API_KEY"

// ModeFromEnv reads TUSK_DRIFT_MODE, defaulting to DISABLED for any
// unrecognized or absent value so an unconfigured process is always
// observationally transparent.
func ModeFromEnv() Mode {
	switch Mode(os.Getenv(ModeEnvVar)) {
	case ModeRecord:
		return ModeRecord
	case ModeReplay:
		return ModeReplay
	default:
		return ModeDisabled
	}
}

// ConfigDir is the directory, relative to the project root, holding the
// config file.
const ConfigDir = ".tusk"

// ConfigFile is the config file name inside ConfigDir.
const ConfigFile = "config.yaml"

// Config mirrors the recognized keys from spec §6. Every field is
// optional; a field's Go zero value means "not set", and callers apply
// their own defaults.
type Config struct {
	Service struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Port  int    `yaml:"port"`
		Start struct {
			Command string `yaml:"command"`
		} `yaml:"start"`
		ReadinessCheck struct {
			Command  string `yaml:"command"`
			Timeout  int    `yaml:"timeout"`
			Interval int    `yaml:"interval"`
		} `yaml:"readiness_check"`
	} `yaml:"service"`

	Traces struct {
		Dir string `yaml:"dir"`
	} `yaml:"traces"`

	TuskAPI struct {
		URL string `yaml:"url"`
	} `yaml:"tusk_api"`

	TestExecution struct {
		Concurrency int `yaml:"concurrency"`
		Timeout     int `yaml:"timeout"`
	} `yaml:"test_execution"`

	Comparison struct {
		IgnoreFields []string `yaml:"ignore_fields"`
	} `yaml:"comparison"`

	Recording struct {
		SamplingRate          float64  `yaml:"sampling_rate"`
		ExportSpans           bool     `yaml:"export_spans"`
		EnableEnvVarRecording bool     `yaml:"enable_env_var_recording"`
		EnableAnalytics       bool     `yaml:"enable_analytics"`
		ExcludePaths          []string `yaml:"exclude_paths"`
	} `yaml:"recording"`

	Transforms map[string][]TransformEntry `yaml:"transforms"`
}

// TransformEntry is one {matcher, action} pair as defined in spec §4.3.
// Matcher and Action are decoded into generic maps here; the transform
// package is responsible for compiling them, keeping this package free of
// a dependency on the transform engine.
type TransformEntry struct {
	Matcher map[string]any `yaml:"matcher"`
	Action  map[string]any `yaml:"action"`
}

// Load locates the project root by walking up from dir (os.Getwd() if dir
// is empty) looking for a .tusk/config.yaml or a .git directory, then
// decodes the config file if present. A missing file is not an error: Load
// returns a zero-value Config and the resolved project root.
func Load(dir string) (*Config, string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		dir = wd
	}
	root, found := findProjectRoot(dir)
	cfg := &Config{}
	if !found {
		return cfg, root, nil
	}
	path := filepath.Join(root, ConfigDir, ConfigFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, root, nil
	}
	if err != nil {
		return nil, root, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, root, err
	}
	return cfg, root, nil
}

// findProjectRoot walks up from dir until it finds a directory containing
// .tusk/config.yaml, falling back to the first ancestor containing a .git
// directory, falling back to dir itself.
func findProjectRoot(dir string) (string, bool) {
	cur := dir
	var gitFallback string
	for {
		if fi, err := os.Stat(filepath.Join(cur, ConfigDir, ConfigFile)); err == nil && !fi.IsDir() {
			return cur, true
		}
		if gitFallback == "" {
			if fi, err := os.Stat(filepath.Join(cur, ".git")); err == nil && fi.IsDir() {
				gitFallback = cur
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	if gitFallback != "" {
		return gitFallback, false
	}
	return dir, false
}
