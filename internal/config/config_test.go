package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Pairs:      []string{"eurusd"},
			Platforms:  []string{"ascii"},
			Timeframes: []string{"M1"},
			Start:      "2021-01",
			End:        "2021-02",
		},
		Stages: StagesConfig{Validate: true, Download: true},
		Run: RunConfig{
			WorkingDir:     "data",
			Workers:        4,
			MaxAttempts:    3,
			RequestsPerSec: 2,
			BatchSize:      1000,
			QueueDepth:     5000,
		},
		Logging: LoggingConfig{Level: "info", Output: "console"},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no pairs", func(c *Config) { c.Request.Pairs = nil }},
		{"no start", func(c *Config) { c.Request.Start = "" }},
		{"no stages enabled", func(c *Config) { c.Stages = StagesConfig{} }},
		{"zero workers", func(c *Config) { c.Run.Workers = 0 }},
		{"zero attempts", func(c *Config) { c.Run.MaxAttempts = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log output", func(c *Config) { c.Logging.Output = "syslog" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fxingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
request:
  pairs: [eurusd, gbpusd]
  platforms: [ascii]
  timeframes: [M1]
  start: "2021-01"
  end: "2021-03"
stages:
  validate: true
  download: true
run:
  working_dir: /tmp/fx
  workers: 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"eurusd", "gbpusd"}, cfg.Request.Pairs)
	assert.Equal(t, 8, cfg.Run.Workers)
	assert.Equal(t, "/tmp/fx", cfg.Run.WorkingDir)
	assert.True(t, cfg.Stages.Validate)
	assert.False(t, cfg.Stages.Extract)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fxingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  workers: 2\n"), 0o644))

	t.Setenv("FXINGEST_RUN_WORKERS", "16")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Run.Workers)
}

func TestLoadInflux(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, InfluxFileName), []byte(`
influxdb:
  url: http://localhost:8086
  org: fx
  bucket: candles
  token: secret
`), 0o644))

	influx, err := LoadInflux(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8086", influx.URL)
	assert.Equal(t, "fx", influx.Org)
	assert.Equal(t, "candles", influx.Bucket)
	assert.Equal(t, "secret", influx.Token)
}

func TestLoadInfluxMissingOrIncomplete(t *testing.T) {
	_, err := LoadInflux(t.TempDir())
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, InfluxFileName),
		[]byte("influxdb:\n  url: http://localhost:8086\n"), 0o644))
	_, err = LoadInflux(dir)
	assert.Error(t, err)
}
