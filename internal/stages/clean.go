package stages

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"fxingest/internal/files"
	"fxingest/internal/market"
	"fxingest/internal/pipeline"
)

// est is the provider's timestamp zone: Eastern Standard Time with no
// daylight saving, a fixed UTC-5 year round.
var est = time.FixedZone("EST", -5*60*60)

// CleanStage normalizes extracted CSVs: provider timestamps (EST without
// DST) become UTC epoch milliseconds, and a header row is prefixed. The
// cleaned file is what the load stage reads.
type CleanStage struct {
	workdir files.Workdir
}

// NewCleanStage creates the clean collaborator.
func NewCleanStage(workdir files.Workdir) *CleanStage {
	return &CleanStage{workdir: workdir}
}

func (s *CleanStage) ID() string              { return "clean" }
func (s *CleanStage) Name() string            { return "Clean timestamps" }
func (s *CleanStage) Target() pipeline.Status { return pipeline.StatusCleaned }

func (s *CleanStage) Attempt(ctx context.Context, rec pipeline.Record) pipeline.Outcome {
	zipName := market.ZipName(rec.Platform, rec.Timeframe, rec.Pair, rec.YearMonth())
	src := rec.CSVPath
	if src == "" {
		src = s.workdir.CSVPath(zipName)
	}
	dest := s.workdir.CleanPath(zipName)

	in, err := os.Open(src)
	if err != nil {
		return pipeline.Failed(rec, fmt.Errorf("cannot open extracted CSV: %w", err))
	}
	defer in.Close()

	rows := 0
	err = files.WriteAtomic(dest, func(w io.Writer) error {
		out := bufio.NewWriter(w)
		fmt.Fprintln(out, header(rec.Timeframe))
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				return err
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			cleaned, err := cleanRow(line)
			if err != nil {
				return fmt.Errorf("row %d: %w", rows+1, err)
			}
			fmt.Fprintln(out, cleaned)
			rows++
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		return out.Flush()
	})
	if err != nil {
		return pipeline.Failed(rec, err)
	}

	slog.DebugContext(ctx, "csv_cleaned",
		slog.String("record", rec.Key()),
		slog.String("path", dest),
		slog.Int("rows", rows))

	rec.CSVPath = dest
	rec.Status = pipeline.StatusCleaned
	return pipeline.Advanced(rec)
}

// cleanRow rewrites one provider row, replacing the leading timestamp
// with UTC epoch milliseconds.
func cleanRow(line string) (string, error) {
	sep := ";"
	if !strings.Contains(line, sep) {
		sep = ","
	}
	fields := strings.Split(line, sep)
	if len(fields) < 2 {
		return "", fmt.Errorf("malformed row %q", line)
	}
	ms, err := parseProviderTime(fields[0])
	if err != nil {
		return "", err
	}
	fields[0] = fmt.Sprintf("%d", ms)
	return strings.Join(fields, ";"), nil
}

// parseProviderTime accepts the provider's second ("20210104 170000") and
// millisecond ("20210104 170000123") timestamp forms and returns UTC
// epoch milliseconds.
func parseProviderTime(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	millis := int64(0)
	if len(raw) == len("20060102 150405")+3 {
		var err error
		if _, err = fmt.Sscanf(raw[len(raw)-3:], "%03d", &millis); err != nil {
			return 0, fmt.Errorf("bad millisecond suffix in %q", raw)
		}
		raw = raw[:len(raw)-3]
	}
	t, err := time.ParseInLocation("20060102 150405", raw, est)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q: %w", raw, err)
	}
	return t.UTC().UnixMilli() + millis, nil
}

// header returns the column header for the cleaned file.
func header(tf market.Timeframe) string {
	if tf == market.TimeframeM1 {
		return "datetime;open;high;low;close;vol"
	}
	return "datetime;bid;ask;vol"
}
