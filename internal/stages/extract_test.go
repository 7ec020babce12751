package stages

import (
	"archive/zip"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxingest/internal/files"
	"fxingest/internal/market"
	"fxingest/internal/pipeline"
)

func writeArchive(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func downloadedRecord(workdir files.Workdir) pipeline.Record {
	rec := pipeline.NewRecord("eurusd", market.PlatformASCII, market.TimeframeM1,
		market.YearMonth{Year: 2021, Month: time.January})
	rec.Status = pipeline.StatusDownloaded
	zipName := market.ZipName(rec.Platform, rec.Timeframe, rec.Pair, rec.YearMonth())
	rec.ArchivePath = workdir.ArchivePath(zipName)
	return rec
}

func TestExtractStage(t *testing.T) {
	workdir := newTestWorkdir(t)
	rec := downloadedRecord(workdir)
	writeArchive(t, rec.ArchivePath, map[string]string{
		"DAT_ASCII_EURUSD_M1_202101.csv": "20210104 170000;1.2;1.3;1.1;1.2;0\n",
		"README.txt":                     "terms of use\n",
	})

	stage := NewExtractStage(workdir)
	outcome := stage.Attempt(context.Background(), rec)

	require.Equal(t, pipeline.OutcomeAdvanced, outcome.Kind)
	assert.Equal(t, pipeline.StatusExtracted, outcome.Record.Status)

	data, err := os.ReadFile(outcome.Record.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, "20210104 170000;1.2;1.3;1.1;1.2;0\n", string(data))
}

func TestExtractStageDerivesArchivePathOnResume(t *testing.T) {
	workdir := newTestWorkdir(t)
	rec := downloadedRecord(workdir)
	writeArchive(t, rec.ArchivePath, map[string]string{
		"DAT_ASCII_EURUSD_M1_202101.csv": "data\n",
	})
	// A record resumed from a checkpoint carries no artifact paths.
	rec.ArchivePath = ""

	stage := NewExtractStage(workdir)
	outcome := stage.Attempt(context.Background(), rec)

	require.Equal(t, pipeline.OutcomeAdvanced, outcome.Kind)
	assert.True(t, files.Exists(outcome.Record.CSVPath))
}

func TestExtractStageSkipsArchiveWithoutCSV(t *testing.T) {
	workdir := newTestWorkdir(t)
	rec := downloadedRecord(workdir)
	writeArchive(t, rec.ArchivePath, map[string]string{"README.txt": "nothing here\n"})

	stage := NewExtractStage(workdir)
	outcome := stage.Attempt(context.Background(), rec)

	assert.Equal(t, pipeline.OutcomeSkipped, outcome.Kind)
}

func TestExtractStageFailsOnMissingArchive(t *testing.T) {
	workdir := newTestWorkdir(t)
	rec := downloadedRecord(workdir)

	stage := NewExtractStage(workdir)
	outcome := stage.Attempt(context.Background(), rec)

	assert.Equal(t, pipeline.OutcomeFailed, outcome.Kind)
}
