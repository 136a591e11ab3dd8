// Package config holds the options of a simulation run and loads them from JSON
// files and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
	"github.com/justinmeimar/performative/go-sim/internal/eval"
	"github.com/justinmeimar/performative/go-sim/internal/fit"
	"github.com/justinmeimar/performative/go-sim/internal/generator"
	"github.com/justinmeimar/performative/go-sim/internal/loop"
	"github.com/justinmeimar/performative/go-sim/internal/shift"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Environment overrides.
const (
	EnvDB   = "PERF_DB"
	EnvSeed = "PERF_SEED"
)

// #region config-types
// Config is the full set of run options. Zero values are not defaults; start
// from Default() and override.
type Config struct {
	NSamplesA       int            `json:"n_samples_group_a"`
	NSamplesB       int            `json:"n_samples_group_b"`
	Sigma           float64        `json:"sigma"`
	NumIterations   int            `json:"num_iterations"`
	ShiftSchedule   shift.Schedule `json:"shift_schedule"`
	InitialTheta    float64        `json:"initial_theta"`
	OptimizerBounds [2]float64     `json:"optimizer_bounds"`
	RandomSeed      uint64         `json:"random_seed"`

	ReferenceAngle float64 `json:"reference_angle"`
	ReactiveMean   float64 `json:"reactive_mean"`
	ReactiveSpread float64 `json:"reactive_spread"`
	MaxIterations  int     `json:"max_optimizer_iterations"`

	// static scenario
	ModifyAmount    float64 `json:"modify_amount"`
	PerturbDelta    float64 `json:"perturb_delta"`
	ShiftedVariants int     `json:"shifted_variants"`
	ShiftVariation  float64 `json:"shift_variation"`

	SnapshotCodec string `json:"snapshot_codec"`
	DBPath        string `json:"db_path,omitempty"`
}

// #endregion config-types

// #region defaults
// Default returns the reference scenario: 250 fixed and 125 reactive points,
// noise 0.1, six iterations of the default schedule, seed 42.
func Default() Config {
	fc := fit.DefaultConfig()
	return Config{
		NSamplesA:       250,
		NSamplesB:       125,
		Sigma:           0.1,
		NumIterations:   6,
		ShiftSchedule:   shift.DefaultSchedule(),
		InitialTheta:    fc.InitialTheta,
		OptimizerBounds: [2]float64{fc.Lower, fc.Upper},
		RandomSeed:      42,
		ReferenceAngle:  math.Pi / 4,
		ReactiveMean:    math.Pi / 4,
		ReactiveSpread:  generator.DefaultReactiveSpread,
		MaxIterations:   fc.MaxIterations,
		ModifyAmount:    3 * math.Pi / 16,
		PerturbDelta:    math.Pi / 32,
		ShiftedVariants: 10,
		ShiftVariation:  0.5,
		SnapshotCodec:   dataset.CompressionZstd.String(),
	}
}

// #endregion defaults

// #region loader
// Load reads a JSON config file over Default(). Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a JSON config over Default(), as stored on a run record.
func Parse(data string) (Config, error) {
	cfg := Default()
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// JSON returns the config in its file form.
func (c Config) JSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// ApplyEnv overrides the database path and seed from PERF_DB and PERF_SEED.
func (c *Config) ApplyEnv() error {
	c.DBPath = envOr(EnvDB, c.DBPath)
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", EnvSeed, v, err)
		}
		c.RandomSeed = seed
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion loader

// #region validate
// Validate checks sample sizes, noise, iteration count, schedule, bounds and codec.
func (c Config) Validate() error {
	if c.NSamplesA < 0 || c.NSamplesB < 0 {
		return fmt.Errorf("%w: sample sizes %d/%d must be >= 0", ErrInvalidConfig, c.NSamplesA, c.NSamplesB)
	}
	if c.Sigma < 0 || math.IsNaN(c.Sigma) || math.IsInf(c.Sigma, 0) {
		return fmt.Errorf("%w: sigma %v must be finite and >= 0", ErrInvalidConfig, c.Sigma)
	}
	if c.ReactiveSpread < 0 || !finite(c.ReactiveSpread) {
		return fmt.Errorf("%w: reactive spread %v must be finite and >= 0", ErrInvalidConfig, c.ReactiveSpread)
	}
	if !finite(c.ReferenceAngle) || !finite(c.ReactiveMean) {
		return fmt.Errorf("%w: reference angle %v and reactive mean %v must be finite",
			ErrInvalidConfig, c.ReferenceAngle, c.ReactiveMean)
	}
	if c.ShiftedVariants < 0 {
		return fmt.Errorf("%w: shifted variants %d must be >= 0", ErrInvalidConfig, c.ShiftedVariants)
	}
	if _, err := dataset.ParseCompression(c.SnapshotCodec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.LoopConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// #endregion validate

// #region converters
// FitConfig returns the optimizer settings.
func (c Config) FitConfig() fit.Config {
	fc := fit.DefaultConfig()
	fc.InitialTheta = c.InitialTheta
	fc.Lower = c.OptimizerBounds[0]
	fc.Upper = c.OptimizerBounds[1]
	if c.MaxIterations > 0 {
		fc.MaxIterations = c.MaxIterations
	}
	return fc
}

// LoopConfig returns the feedback-loop settings.
func (c Config) LoopConfig() loop.Config {
	return loop.Config{
		Iterations:    c.NumIterations,
		Schedule:      c.ShiftSchedule,
		Fit:           c.FitConfig(),
		ReactiveGroup: dataset.GroupB,
	}
}

// EvalConfig returns post-step checks matching the optimizer bounds.
func (c Config) EvalConfig() eval.EvalConfig {
	ec := eval.DefaultEvalConfig()
	ec.Lower = c.OptimizerBounds[0]
	ec.Upper = c.OptimizerBounds[1]
	return ec
}

// Codec returns the parsed snapshot compression. Validate has already rejected
// unknown names.
func (c Config) Codec() dataset.Compression {
	comp, err := dataset.ParseCompression(c.SnapshotCodec)
	if err != nil {
		return dataset.CompressionNone
	}
	return comp
}

// #endregion converters
