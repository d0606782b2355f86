// Package drift is the host-facing entry point: Initialize wires the
// tracing core, dispatcher, transform engine, and replay match client
// into one running instance, and every other exported function operates
// on that instance (spec §6, "Initialization surface").
package drift

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/replaytrace/core/dispatcher"
	"github.com/replaytrace/core/internal/driftconfig"
	"github.com/replaytrace/core/internal/globalinstance"
	"github.com/replaytrace/core/internal/log"
	"github.com/replaytrace/core/match"
	"github.com/replaytrace/core/tracer"
	"github.com/replaytrace/core/transform"
)

// Options configures Initialize (spec §6: `initialize({ apiKey, env,
// logLevel, transforms, samplingRate?, baseDirectory? })`).
type Options struct {
	APIKey   string
	Env      string
	LogLevel log.Level
	// Transforms overrides the transforms loaded from .tusk/config.yaml,
	// keyed by package family (http, fetch, ...). Nil means "load from
	// the config file".
	Transforms map[string][]driftconfig.TransformEntry
	// SamplingRate, when non-nil (zero included), overrides
	// recording.sampling_rate from the config file; nil means "use the
	// config file's value, or 1.0 if unset or zero".
	SamplingRate *float64
	// BaseDirectory overrides the working directory Load walks up from
	// when locating the project root and .tusk/config.yaml.
	BaseDirectory string
	// CollectorBaseURL is the remote collector's base URL for span export
	// and replay match RPCs. Read from TuskAPI.URL in the config file if
	// empty.
	CollectorBaseURL string
	// HTTPClient overrides the transport used by the remote adapter and
	// match client, primarily for tests.
	HTTPClient *http.Client
}

// instance holds every service Initialize wires together. It is the
// runtime's one package-level singleton, guarded by mu, matching the
// teacher's pattern of a single package-level tracer instance behind a
// mutex rather than requiring every call site to thread a handle through
// (SPEC_FULL.md §12).
type instance struct {
	mode        tracer.Mode
	core        *tracer.Core
	exporter    *tracer.Exporter
	blocking    *tracer.BlockingManager
	dispatcher  *dispatcher.Dispatcher
	pipeline    *transform.Pipeline
	matchClient *match.Client
	traceFile   *os.File
}

var (
	mu      sync.Mutex
	current *instance
)

// Initialize loads .tusk/config.yaml (spec §6), constructs the tracing
// core/exporter/dispatcher/transform pipeline/match client, and installs
// them as the active instance. The process mode is read from
// TUSK_DRIFT_MODE (spec §6); Initialize itself never changes it.
func Initialize(opts Options) error {
	log.SetLevel(opts.LogLevel)

	cfg, root, err := driftconfig.Load(opts.BaseDirectory)
	if err != nil {
		return fmt.Errorf("drift: loading config: %w", err)
	}

	mode := modeFromConfig(driftconfig.ModeFromEnv())

	samplingRate := cfg.Recording.SamplingRate
	if samplingRate == 0 {
		samplingRate = 1
	}
	if opts.SamplingRate != nil {
		samplingRate = *opts.SamplingRate
	}

	families := opts.Transforms
	if families == nil {
		families = cfg.Transforms
	}
	pipeline, err := transform.Compile(families)
	if err != nil {
		return fmt.Errorf("drift: compiling transforms: %w", err)
	}

	baseURL := opts.CollectorBaseURL
	if baseURL == "" {
		baseURL = cfg.TuskAPI.URL
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(driftconfig.APIKeyEnvVar)
	}

	blocking := tracer.NewBlockingManager(nil)
	blocking.StartSweeper()
	sizes := tracer.NewSizeAccountant()
	exporter := tracer.NewExporter(blocking, sizes)

	if cfg.Recording.ExportSpans && baseURL != "" {
		exporter.AddAdapter(tracer.NewRemoteAdapter(tracer.RemoteAdapterConfig{
			BaseURL:             baseURL,
			APIKey:              apiKey,
			Environment:         opts.Env,
			ObservableServiceID: cfg.Service.ID,
			HTTPClient:          opts.HTTPClient,
		}))
	}

	// A local trace directory, when configured, always gets a durable
	// newline-delimited record of every exported span in addition to
	// whatever remote collector is reachable — useful in local
	// development and CI where the collector may be unavailable.
	var traceFile *os.File
	if dir := cfg.Traces.Dir; dir != "" {
		traceDir := dir
		if !filepath.IsAbs(traceDir) {
			traceDir = filepath.Join(root, traceDir)
		}
		f, ferr := os.OpenFile(filepath.Join(traceDir, "spans.ndjson"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr != nil {
			if mkErr := os.MkdirAll(traceDir, 0o755); mkErr == nil {
				f, ferr = os.OpenFile(filepath.Join(traceDir, "spans.ndjson"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			}
		}
		if ferr != nil {
			log.Warn("drift: could not open trace file in %s: %v", traceDir, ferr)
		} else {
			traceFile = f
			exporter.AddAdapter(tracer.NewLogAdapter("local-trace-file", f))
		}
	}

	core := tracer.NewCore(blocking, sizes, exporter)
	core.SetTransformPipeline(pipeline.Apply)

	d := dispatcher.New(mode, samplingRate)
	d.SetInboundDropFunc(pipeline.ShouldDropInbound)

	matchClient := match.NewClient(match.ClientConfig{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: opts.HTTPClient,
	})
	match.SetDefaultClient(matchClient)

	log.Info("drift initialized: mode=%v root=%s service=%s", mode, root, cfg.Service.Name)

	mu.Lock()
	current = &instance{
		mode:        mode,
		core:        core,
		exporter:    exporter,
		blocking:    blocking,
		dispatcher:  d,
		pipeline:    pipeline,
		matchClient: matchClient,
		traceFile:   traceFile,
	}
	mu.Unlock()
	return nil
}

func modeFromConfig(m driftconfig.Mode) tracer.Mode {
	switch m {
	case driftconfig.ModeRecord:
		return tracer.ModeRecord
	case driftconfig.ModeReplay:
		return tracer.ModeReplay
	default:
		return tracer.ModeDisabled
	}
}

// current snapshot accessors. Initialize is expected once at process
// start; these are read-mostly so the lock is held only to copy the
// pointer.
func activeInstance() *instance {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// MarkAppAsReady flips the process-wide readiness flag (spec §6). A call
// before Initialize is a no-op.
func MarkAppAsReady() {
	if inst := activeInstance(); inst != nil {
		inst.dispatcher.MarkAppAsReady()
	}
}

// IsAppReady reports the current readiness flag (spec §6). Returns false
// before Initialize.
func IsAppReady() bool {
	inst := activeInstance()
	return inst != nil && inst.dispatcher.IsAppReady()
}

// Core returns the active tracing core, or nil before Initialize.
// Instrumentation packages use this to call tracer.CreateAndExecute.
func Core() *tracer.Core {
	if inst := activeInstance(); inst != nil {
		return inst.core
	}
	return nil
}

// Dispatcher returns the active dispatcher, or nil before Initialize.
func Dispatcher() *dispatcher.Dispatcher {
	if inst := activeInstance(); inst != nil {
		return inst.dispatcher
	}
	return nil
}

// Mode returns the active process mode, or tracer.ModeDisabled before
// Initialize.
func Mode() tracer.Mode {
	if inst := activeInstance(); inst != nil {
		return inst.mode
	}
	return tracer.ModeDisabled
}

// Shutdown releases every acquired resource in the order spec §5
// prescribes: flush the pending batch, stop the adapters, stop the
// blocked-trace sweeper (SPEC_FULL.md §12, "Graceful shutdown ordering").
func Shutdown(ctx context.Context) error {
	mu.Lock()
	inst := current
	current = nil
	mu.Unlock()
	if inst == nil {
		return nil
	}

	err := inst.core.Shutdown(ctx)
	if inst.matchClient != nil {
		inst.matchClient.Shutdown()
	}
	if inst.traceFile != nil {
		if cerr := inst.traceFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// ResetForTest tears down the active instance (if any) and resets every
// other package-level singleton this module carries, so test suites can
// run Initialize repeatedly in isolation (SPEC_FULL.md §12).
func ResetForTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = Shutdown(ctx)
	tracer.ResetForTest()
	match.ResetForTest()
}

// InstanceID returns this process's stable SDK instance identifier,
// exposed for diagnostics (spec §6, ExportSpansRequest.sdkInstanceId).
func InstanceID() string { return globalinstance.InstanceID() }
