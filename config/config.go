// Package config loads runtime settings from the environment and applies
// them to the boundary packages.
package config

import (
	"math"
	"os"
	"time"

	"github.com/davidmdm/conf"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-boundary/alloc"
	"github.com/wippyai/wasm-boundary/async"
	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/linker"
	"github.com/wippyai/wasm-boundary/poll"
	"github.com/wippyai/wasm-boundary/resource"
)

// Environment variable names.
const (
	EnvLogLevel       = "WASM_BOUNDARY_LOG_LEVEL"
	EnvLogDevelopment = "WASM_BOUNDARY_LOG_DEVELOPMENT"
	EnvIdleTick       = "WASM_BOUNDARY_EXECUTOR_IDLE_TICK"
	EnvArenaLimit     = "WASM_BOUNDARY_ARENA_LIMIT"
)

// Config holds the tunables of the runtime.
type Config struct {
	LogLevel       string
	LogDevelopment bool
	IdleTick       time.Duration
	ArenaLimit     int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:   "info",
		IdleTick:   async.DefaultIdleTick,
		ArenaLimit: alloc.DefaultArenaLimit,
	}
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup. Unset variables take
// their defaults.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	def := Default()
	var cfg Config

	parser := conf.MakeParser(lookup)
	conf.Var(parser, &cfg.LogLevel, EnvLogLevel, conf.Default(def.LogLevel))
	conf.Var(parser, &cfg.LogDevelopment, EnvLogDevelopment)
	conf.Var(parser, &cfg.IdleTick, EnvIdleTick, conf.Default(def.IdleTick))
	conf.Var(parser, &cfg.ArenaLimit, EnvArenaLimit, conf.Default(def.ArenaLimit))

	if err := parser.Parse(); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parsing environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(EnvLogLevel).
			Value(c.LogLevel).
			Cause(err).
			Build()
	}
	if c.IdleTick <= 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(EnvIdleTick).
			Value(c.IdleTick).
			Detail("idle tick must be positive").
			Build()
	}
	if c.ArenaLimit <= 0 || uint64(c.ArenaLimit) > math.MaxUint32 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(EnvArenaLimit).
			Value(c.ArenaLimit).
			Detail("arena limit must be at least one byte and fit in 32 bits").
			Build()
	}
	return nil
}

// Build constructs the logger described by the configuration.
func (c *Config) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}

	zc := zap.NewProductionConfig()
	if c.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Apply installs a logger built from the configuration into every package
// and tunes the default executor. It returns the root logger.
func (c *Config) Apply() (*zap.Logger, error) {
	log, err := c.Build()
	if err != nil {
		return nil, err
	}
	Install(log)
	async.Default().SetIdleTick(c.IdleTick)
	return log, nil
}

// Install hands log to every package, each under its own name.
func Install(log *zap.Logger) {
	resource.SetLogger(log.Named("resource"))
	alloc.SetLogger(log.Named("alloc"))
	async.SetLogger(log.Named("async"))
	poll.SetLogger(log.Named("poll"))
	linker.SetLogger(log.Named("linker"))
}

// NewArena creates a host arena capped at the configured limit.
func (c *Config) NewArena() *alloc.Arena {
	return alloc.NewArena(0, uint32(c.ArenaLimit))
}
