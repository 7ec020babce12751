package stages

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"fxingest/internal/files"
	"fxingest/internal/market"
	"fxingest/internal/pipeline"
)

// ExtractStage unpacks the CSV out of each downloaded archive. The
// archive holds one data CSV plus a readme; only the CSV is kept, under
// a deterministic name so resumed runs find it again.
type ExtractStage struct {
	workdir files.Workdir
}

// NewExtractStage creates the extract collaborator.
func NewExtractStage(workdir files.Workdir) *ExtractStage {
	return &ExtractStage{workdir: workdir}
}

func (s *ExtractStage) ID() string              { return "extract" }
func (s *ExtractStage) Name() string            { return "Extract CSVs" }
func (s *ExtractStage) Target() pipeline.Status { return pipeline.StatusExtracted }

func (s *ExtractStage) Attempt(ctx context.Context, rec pipeline.Record) pipeline.Outcome {
	zipName := market.ZipName(rec.Platform, rec.Timeframe, rec.Pair, rec.YearMonth())
	archive := rec.ArchivePath
	if archive == "" {
		archive = s.workdir.ArchivePath(zipName)
	}
	dest := s.workdir.CSVPath(zipName)

	if files.Exists(dest) {
		rec.CSVPath = dest
		rec.Status = pipeline.StatusExtracted
		return pipeline.Advanced(rec)
	}

	reader, err := zip.OpenReader(archive)
	if err != nil {
		return pipeline.Failed(rec, fmt.Errorf("cannot open archive %s: %w", archive, err))
	}
	defer reader.Close()

	entry := csvEntry(reader)
	if entry == nil {
		return pipeline.Skipped(rec, "archive contains no CSV")
	}

	err = files.WriteAtomic(dest, func(w io.Writer) error {
		src, err := entry.Open()
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		return pipeline.Failed(rec, fmt.Errorf("cannot extract %s: %w", entry.Name, err))
	}
	if err := ctx.Err(); err != nil {
		return pipeline.Failed(rec, err)
	}

	slog.DebugContext(ctx, "csv_extracted",
		slog.String("record", rec.Key()),
		slog.String("entry", entry.Name),
		slog.String("path", dest))

	rec.CSVPath = dest
	rec.Status = pipeline.StatusExtracted
	return pipeline.Advanced(rec)
}

// csvEntry returns the data CSV inside the archive, ignoring readmes and
// status files the provider packs alongside it.
func csvEntry(reader *zip.ReadCloser) *zip.File {
	for _, f := range reader.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			return f
		}
	}
	return nil
}
