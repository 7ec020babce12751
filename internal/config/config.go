// Package config loads and validates run configuration. Values come from
// environment variables (FXINGEST_ prefix), optionally overlaid on a YAML
// file, and are validated before the pipeline sees them. Destination
// credentials live in their own file in the working directory and are
// loaded only when the load stage is enabled.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete run configuration.
type Config struct {
	Request RequestConfig `yaml:"request" envconfig:"REQUEST"`
	Stages  StagesConfig  `yaml:"stages" envconfig:"STAGES"`
	Run     RunConfig     `yaml:"run" envconfig:"RUN"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// RequestConfig names what to ingest.
type RequestConfig struct {
	Pairs      []string `yaml:"pairs" envconfig:"PAIRS" validate:"min=1"`
	Platforms  []string `yaml:"platforms" envconfig:"PLATFORMS" validate:"min=1"`
	Timeframes []string `yaml:"timeframes" envconfig:"TIMEFRAMES" validate:"min=1"`
	Start      string   `yaml:"start" envconfig:"START" validate:"required"`
	End        string   `yaml:"end" envconfig:"END" validate:"required"`
}

// StagesConfig toggles the processing stages. A disabled stage is an
// identity transform: records pass through it unchanged.
type StagesConfig struct {
	Validate bool `yaml:"validate" envconfig:"VALIDATE"`
	Download bool `yaml:"download" envconfig:"DOWNLOAD"`
	Extract  bool `yaml:"extract" envconfig:"EXTRACT"`
	Clean    bool `yaml:"clean" envconfig:"CLEAN"`
	Load     bool `yaml:"load" envconfig:"LOAD"`
}

// Any reports whether at least one stage is enabled.
func (s StagesConfig) Any() bool {
	return s.Validate || s.Download || s.Extract || s.Clean || s.Load
}

// RunConfig tunes pipeline execution.
type RunConfig struct {
	WorkingDir     string        `yaml:"working_dir" envconfig:"WORKING_DIR" default:"data" validate:"required"`
	Workers        int           `yaml:"workers" envconfig:"WORKERS" default:"4" validate:"min=1"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" envconfig:"ATTEMPT_TIMEOUT" default:"5m"`
	MaxAttempts    int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" default:"3" validate:"min=1"`
	RetryDelay     time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY" default:"1s"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay" envconfig:"MAX_RETRY_DELAY" default:"30s"`
	RequestsPerSec float64       `yaml:"requests_per_sec" envconfig:"REQUESTS_PER_SEC" default:"2" validate:"gt=0"`
	BatchSize      int           `yaml:"batch_size" envconfig:"BATCH_SIZE" default:"5000" validate:"min=1"`
	QueueDepth     int           `yaml:"queue_depth" envconfig:"QUEUE_DEPTH" default:"20000" validate:"min=1"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/fxingest.log"`
}

// Load builds the configuration: file values first when a path is given,
// environment variables on top. Command-line flags are applied by the
// caller afterwards, which then runs Validate on the final result.
func Load(configFile string) (*Config, error) {
	var cfg Config
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file: %w", err)
		}
	}
	if err := envconfig.Process("FXINGEST", &cfg); err != nil {
		return nil, fmt.Errorf("cannot load config from env: %w", err)
	}
	return &cfg, nil
}

// Validate checks structural constraints. Deep domain validation (pair
// catalog membership, platform/timeframe compatibility) happens in the
// record set builder.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if !c.Stages.Any() {
		return fmt.Errorf("config validation failed: no stages enabled")
	}
	return nil
}
