package telemetry

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig configures continuous profiling to a Pyroscope server
type ProfilerConfig struct {
	Enabled bool
	// ServerAddress is the Pyroscope base URL, e.g. "http://pyroscope:4040"
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	// ProfileTypes are names accepted by ParseProfileTypes; empty means DefaultProfileTypes
	ProfileTypes []string
	// MutexProfileFraction and BlockProfileRate apply when the mutex or block
	// profile types are selected; 0 means 5
	MutexProfileFraction int
	BlockProfileRate     int
	DisableGCRuns        bool
}

// DefaultProfileTypes are collected when no types are configured
var DefaultProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}

var profileTypeNames = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

// ParseProfileTypes maps configured names to Pyroscope profile types
func ParseProfileTypes(names []string) ([]pyroscope.ProfileType, error) {
	if len(names) == 0 {
		names = DefaultProfileTypes
	}
	types := make([]pyroscope.ProfileType, 0, len(names))
	for _, name := range names {
		t, ok := profileTypeNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown profile type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

// Profiler owns a running Pyroscope session. A disabled Profiler does nothing.
type Profiler struct {
	session *pyroscope.Profiler
	logger  *zap.Logger
	mu      sync.Mutex
	stopped bool
}

// NewProfiler validates cfg and, when enabled, starts uploading profiles
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	p := &Profiler{logger: logger}
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled")
		return p, nil
	}
	if cfg.ServerAddress == "" {
		return nil, fmt.Errorf("profiler server address is required when profiling is enabled")
	}
	if cfg.ApplicationName == "" {
		return nil, fmt.Errorf("profiler application name is required when profiling is enabled")
	}
	types, err := ParseProfileTypes(cfg.ProfileTypes)
	if err != nil {
		return nil, err
	}
	applyRuntimeRates(cfg, types)

	tags := map[string]string{}
	for tag, env := range map[string]string{"hostname": "HOSTNAME", "pod": "POD_NAME"} {
		if v := os.Getenv(env); v != "" {
			tags[tag] = v
		}
	}

	session, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            pyroscopeLogger{logger.Named("pyroscope").Sugar()},
		Tags:              tags,
		ProfileTypes:      types,
		DisableGCRuns:     cfg.DisableGCRuns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	p.session = session

	logger.Info("Pyroscope profiler started",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
		zap.Int("profile_types", len(types)),
	)
	return p, nil
}

func applyRuntimeRates(cfg ProfilerConfig, types []pyroscope.ProfileType) {
	rateOr5 := func(v int) int {
		if v <= 0 {
			return 5
		}
		return v
	}
	for _, t := range types {
		switch t {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			runtime.SetMutexProfileFraction(rateOr5(cfg.MutexProfileFraction))
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			runtime.SetBlockProfileRate(rateOr5(cfg.BlockProfileRate))
		}
	}
}

// Running reports whether profiles are being uploaded
func (p *Profiler) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil && !p.stopped
}

// Stop flushes pending profiles and ends the session. Later calls return nil.
// The Pyroscope SDK takes no context here and bounds the flush itself.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.session == nil {
		p.stopped = true
		return nil
	}
	p.stopped = true
	if err := p.session.Stop(); err != nil {
		p.logger.Error("Error stopping profiler", zap.Error(err))
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	p.logger.Info("Pyroscope profiler stopped")
	return nil
}

// pyroscopeLogger routes SDK messages into zap
type pyroscopeLogger struct {
	*zap.SugaredLogger
}
