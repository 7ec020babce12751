package stages

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"fxingest/internal/files"
	"fxingest/internal/market"
	"fxingest/internal/pipeline"
)

// LoadStage reads each cleaned CSV and feeds its rows through the batch
// sink into the destination store. A record only counts as loaded once
// the sink has flushed, which the pipeline manager enforces by flushing
// before it commits this stage's checkpoints.
type LoadStage struct {
	workdir files.Workdir
	sink    *BatchSink
}

// NewLoadStage creates the load collaborator over the given sink.
func NewLoadStage(workdir files.Workdir, sink *BatchSink) *LoadStage {
	return &LoadStage{workdir: workdir, sink: sink}
}

func (s *LoadStage) ID() string              { return "load" }
func (s *LoadStage) Name() string            { return "Load into datastore" }
func (s *LoadStage) Target() pipeline.Status { return pipeline.StatusLoaded }

// Flush drains the batch sink. Called by the manager after every record
// in the stage has been resolved, before checkpoints are committed.
func (s *LoadStage) Flush(ctx context.Context) error {
	return s.sink.Flush(ctx)
}

func (s *LoadStage) Attempt(ctx context.Context, rec pipeline.Record) pipeline.Outcome {
	zipName := market.ZipName(rec.Platform, rec.Timeframe, rec.Pair, rec.YearMonth())
	src := rec.CSVPath
	if src == "" || !files.Exists(src) {
		src = s.workdir.CleanPath(zipName)
	}

	in, err := os.Open(src)
	if err != nil {
		return pipeline.Failed(rec, fmt.Errorf("cannot open cleaned CSV: %w", err))
	}
	defer in.Close()

	rows := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "datetime") {
			continue
		}
		point, err := rowToPoint(rec, line)
		if err != nil {
			return pipeline.Failed(rec, fmt.Errorf("row %d: %w", rows+1, err))
		}
		if err := s.sink.Enqueue(ctx, point); err != nil {
			return pipeline.Failed(rec, pipeline.NewTransientError(err))
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return pipeline.Failed(rec, err)
	}

	slog.InfoContext(ctx, "record_enqueued_for_load",
		slog.String("record", rec.Key()),
		slog.Int("rows", rows))

	rec.Status = pipeline.StatusLoaded
	return pipeline.Advanced(rec)
}

// rowToPoint converts one cleaned row into a destination point. Minute
// bars carry OHLCV fields; tick rows carry bid/ask.
func rowToPoint(rec pipeline.Record, line string) (Point, error) {
	fields := strings.Split(line, ";")
	ms, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Point{}, fmt.Errorf("bad timestamp %q: %w", fields[0], err)
	}

	values := map[string]interface{}{}
	switch {
	case rec.Timeframe == market.TimeframeM1 && len(fields) >= 6:
		for i, name := range []string{"open", "high", "low", "close"} {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return Point{}, fmt.Errorf("bad %s %q: %w", name, fields[i+1], err)
			}
			values[name] = v
		}
		vol, err := strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return Point{}, fmt.Errorf("bad volume %q: %w", fields[5], err)
		}
		values["volume"] = vol
	case len(fields) >= 3:
		bid, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Point{}, fmt.Errorf("bad bid %q: %w", fields[1], err)
		}
		ask, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return Point{}, fmt.Errorf("bad ask %q: %w", fields[2], err)
		}
		values["bid"], values["ask"] = bid, ask
	default:
		return Point{}, fmt.Errorf("malformed row %q", line)
	}

	return Point{
		Measurement: rec.Pair,
		Tags: map[string]string{
			"platform":  string(rec.Platform),
			"timeframe": string(rec.Timeframe),
		},
		Fields: values,
		Time:   time.UnixMilli(ms).UTC(),
	}, nil
}

// InfluxWriter bulk-writes points through the InfluxDB v2 client.
type InfluxWriter struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxWriter connects the writer to the given org and bucket.
func NewInfluxWriter(url, token, org, bucket string) *InfluxWriter {
	client := influxdb2.NewClient(url, token)
	return &InfluxWriter{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
	}
}

// WritePoints performs one bulk write.
func (w *InfluxWriter) WritePoints(ctx context.Context, points []Point) error {
	converted := make([]*write.Point, 0, len(points))
	for _, p := range points {
		converted = append(converted, influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time))
	}
	return w.write.WritePoint(ctx, converted...)
}

// Close releases the underlying client.
func (w *InfluxWriter) Close() {
	w.client.Close()
}
