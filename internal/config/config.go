package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/swdee/go-mcmot/tracker"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding the config
// file, eg: MCMOT_LINK_THRESHOLD, MCMOT_LOG_LEVEL, MCMOT_GCN_HIDDEN
const EnvPrefix = "MCMOT"

// Config is the tracker configuration.  Values are taken from the defaults,
// then the YAML config file, then the environment.
type Config struct {
	// LinkThreshold is the cosine similarity a match must exceed
	LinkThreshold float64   `yaml:"link_threshold" envconfig:"LINK_THRESHOLD"`
	Log           LogConfig `yaml:"log"`
	GCN           GCNConfig `yaml:"gcn"`
}

// LogConfig holds logger options
type LogConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `yaml:"level"`
	// Format is the output format: "json" or "console", "text" is an alias
	// of "console"
	Format string `yaml:"format"`
}

// GCNConfig holds the shape of the graph refinement network
type GCNConfig struct {
	Hidden  int    `yaml:"hidden"`
	Classes int    `yaml:"classes"`
	Seed    uint64 `yaml:"seed"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		LinkThreshold: tracker.DefaultLinkThreshold,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		GCN: GCNConfig{
			Hidden:  1024,
			Classes: 512,
			Seed:    1,
		},
	}
}

// Load reads the config file at path, if path is not empty, applies
// environment overrides and validates the result
func Load(path string) (*Config, error) {

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)

		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads environment variables from a .env style file.  A missing
// file is not an error.
func LoadDotEnv(path string) error {

	err := godotenv.Load(path)

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading %s: %w", path, err)
	}

	return nil
}

// Validate checks all values are in range
func (c *Config) Validate() error {

	if !(c.LinkThreshold > 0 && c.LinkThreshold <= 1) {
		return fmt.Errorf("link_threshold %v: %w", c.LinkThreshold, tracker.ErrInvalidThreshold)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console", "text":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	if c.GCN.Hidden <= 0 || c.GCN.Classes <= 0 {
		return fmt.Errorf("gcn hidden and classes must be positive, got %d and %d",
			c.GCN.Hidden, c.GCN.Classes)
	}

	return nil
}
