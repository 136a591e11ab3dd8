package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
	"github.com/justinmeimar/performative/go-sim/internal/shift"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 250, cfg.NSamplesA)
	assert.Equal(t, 125, cfg.NSamplesB)
	assert.Equal(t, uint64(42), cfg.RandomSeed)
	assert.Equal(t, math.Pi/16, cfg.InitialTheta)
	assert.Equal(t, [2]float64{0, math.Pi / 2}, cfg.OptimizerBounds)
	assert.Equal(t, shift.DefaultSchedule(), cfg.ShiftSchedule)
	assert.Equal(t, dataset.CompressionZstd, cfg.Codec())
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "zero_shift.json"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100, cfg.NSamplesA)
	assert.Equal(t, 3, cfg.NumIterations)
	assert.Len(t, cfg.ShiftSchedule, 2)
	assert.Equal(t, 0.0, cfg.ShiftSchedule.At(1).Offset())
	assert.Equal(t, uint64(7), cfg.RandomSeed)
	assert.Equal(t, dataset.CompressionLZ4, cfg.Codec())
	// untouched keys keep their defaults
	assert.Equal(t, math.Pi/4, cfg.ReferenceAngle)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = Load(path)
	require.Error(t, err)

	cfg, err := Load(filepath.Join("testdata", "bad_codec.json"))
	require.NoError(t, err)
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestJSONRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.RandomSeed = 1234
	cfg.NumIterations = 9
	s, err := cfg.JSON()
	require.NoError(t, err)

	back, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvDB, "/tmp/perf.db")
	t.Setenv(EnvSeed, "99")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "/tmp/perf.db", cfg.DBPath)
	assert.Equal(t, uint64(99), cfg.RandomSeed)

	t.Setenv(EnvSeed, "not-a-number")
	require.Error(t, cfg.ApplyEnv())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"negative samples":  func(c *Config) { c.NSamplesB = -1 },
		"negative sigma":    func(c *Config) { c.Sigma = -0.1 },
		"nan sigma":         func(c *Config) { c.Sigma = math.NaN() },
		"negative iter":     func(c *Config) { c.NumIterations = -2 },
		"bad direction":     func(c *Config) { c.ShiftSchedule = shift.Schedule{{Angle: 1, Direction: 5}} },
		"inverted bounds":   func(c *Config) { c.OptimizerBounds = [2]float64{1, 0} },
		"start outside box": func(c *Config) { c.InitialTheta = 3 },
		"negative variants": func(c *Config) { c.ShiftedVariants = -1 },
		"infinite spread":   func(c *Config) { c.ReactiveSpread = math.Inf(1) },
		"nan spread":        func(c *Config) { c.ReactiveSpread = math.NaN() },
		"nan reference":     func(c *Config) { c.ReferenceAngle = math.NaN() },
		"infinite mean":     func(c *Config) { c.ReactiveMean = math.Inf(-1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConverters(t *testing.T) {
	cfg := Default()
	cfg.OptimizerBounds = [2]float64{0.1, 1.2}
	cfg.InitialTheta = 0.5

	fc := cfg.FitConfig()
	assert.Equal(t, 0.1, fc.Lower)
	assert.Equal(t, 1.2, fc.Upper)
	assert.Equal(t, 0.5, fc.InitialTheta)

	lc := cfg.LoopConfig()
	assert.Equal(t, cfg.NumIterations, lc.Iterations)
	assert.Equal(t, dataset.GroupB, lc.ReactiveGroup)

	ec := cfg.EvalConfig()
	assert.Equal(t, 0.1, ec.Lower)
	assert.Equal(t, 1.2, ec.Upper)
}
