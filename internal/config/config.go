// Package config loads runtime settings from a YAML file, a .env file and
// KDS_* environment variables, in that order of increasing precedence, and
// validates the result against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Numbering is the orderNo range used for new orders.
type Numbering struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Config holds everything the store and CLI need at startup.
type Config struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// WALRetain is the number of rotated WAL generations kept.
	WALRetain int `yaml:"wal_retain" json:"wal_retain"`

	// SnapshotInterval is the period of unconditional snapshot saves.
	SnapshotInterval time.Duration `yaml:"snapshot_interval" json:"snapshot_interval"`

	// RotateInterval is the minimum age of the current WAL before it is
	// rotated, right after a successful snapshot.
	RotateInterval time.Duration `yaml:"rotate_interval" json:"rotate_interval"`

	// TickInterval is the housekeeping loop period.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`

	Numbering Numbering `yaml:"numbering" json:"numbering"`
	LogLevel  string    `yaml:"log_level" json:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:          "./data",
		WALRetain:        2,
		SnapshotInterval: 5 * time.Minute,
		RotateInterval:   30 * time.Minute,
		TickInterval:     time.Second,
		Numbering:        Numbering{Min: 1, Max: 9999},
		LogLevel:         "info",
	}
}

// Load builds the configuration. path names an optional YAML file; envFile
// an optional dotenv file whose variables fill in, but never override, the
// process environment. Empty names are skipped, as are missing files.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("KDS_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("KDS_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"KDS_WAL_RETAIN", &cfg.WALRetain},
		{"KDS_NUMBERING_MIN", &cfg.Numbering.Min},
		{"KDS_NUMBERING_MAX", &cfg.Numbering.Max},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"KDS_SNAPSHOT_INTERVAL", &cfg.SnapshotInterval},
		{"KDS_ROTATE_INTERVAL", &cfg.RotateInterval},
		{"KDS_TICK_INTERVAL", &cfg.TickInterval},
	}
	for _, e := range durations {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = d
	}
	return nil
}

// Level maps LogLevel to a slog level. Unknown names map to info.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks cfg against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
