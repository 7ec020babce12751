package main

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxingest/internal/config"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"eurusd", "gbpusd"}, splitList("eurusd,gbpusd"))
	assert.Equal(t, []string{"eurusd"}, splitList(" EURUSD "))
	assert.Equal(t, []string{"m1", "t"}, splitList("M1,,T,"))
	assert.Nil(t, splitList(""))
}

func parseAndApply(t *testing.T, cfg *config.Config, args []string) {
	t.Helper()
	flags := flag.NewFlagSet("fxingest", flag.ContinueOnError)
	pairs := flags.String("p", "", "")
	platforms := flags.String("P", "ascii", "")
	timeframes := flags.String("t", "M1", "")
	start := flags.String("s", "", "")
	end := flags.String("e", "", "")
	dataDir := flags.String("d", "", "")
	validate := flags.Bool("V", false, "")
	download := flags.Bool("D", false, "")
	extract := flags.Bool("X", false, "")
	clean := flags.Bool("C", false, "")
	load := flags.Bool("I", false, "")
	require.NoError(t, flags.Parse(args))
	applyFlags(cfg, flags, *pairs, *platforms, *timeframes, *start, *end, *dataDir,
		*validate, *download, *extract, *clean, *load)
}

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Request.Pairs = []string{"usdjpy"}
	cfg.Stages.Load = true

	parseAndApply(t, cfg, []string{
		"-p", "eurusd,gbpusd", "-s", "2021-01", "-e", "2021-02",
		"-d", "/srv/fx", "-V", "-D",
	})

	assert.Equal(t, []string{"eurusd", "gbpusd"}, cfg.Request.Pairs)
	assert.Equal(t, "2021-01", cfg.Request.Start)
	assert.Equal(t, "2021-02", cfg.Request.End)
	assert.Equal(t, "/srv/fx", cfg.Run.WorkingDir)

	// Any stage flag on the command line replaces the whole selection.
	assert.True(t, cfg.Stages.Validate)
	assert.True(t, cfg.Stages.Download)
	assert.False(t, cfg.Stages.Load)
}

func TestApplyFlagsKeepsConfigWhenUnset(t *testing.T) {
	cfg := &config.Config{}
	cfg.Request.Pairs = []string{"usdjpy"}
	cfg.Request.Platforms = []string{"metatrader"}
	cfg.Stages.Extract = true

	parseAndApply(t, cfg, nil)

	assert.Equal(t, []string{"usdjpy"}, cfg.Request.Pairs)
	assert.Equal(t, []string{"metatrader"}, cfg.Request.Platforms)
	assert.True(t, cfg.Stages.Extract)
	// Flag defaults only fill holes.
	assert.Equal(t, []string{"m1"}, cfg.Request.Timeframes)
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	out, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer out.Close()

	// No pairs and no stages: configuration is rejected before any work.
	code := run([]string{"-s", "2021-01", "-e", "2021-02"}, out)
	assert.Equal(t, exitConfig, code)
}
