package stages

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"fxingest/internal/files"
	"fxingest/internal/market"
	"fxingest/internal/pipeline"
)

const downloadEndpoint = "https://www.histdata.com/get.php"

// DownloadStage fetches validated archives into the working directory.
// The provider gates downloads behind a one-time token scraped from the
// archive page, so every attempt re-reads the page before posting.
type DownloadStage struct {
	client   *http.Client
	limiter  *rate.Limiter
	workdir  files.Workdir
	endpoint string
}

// NewDownloadStage creates the download collaborator.
func NewDownloadStage(client *http.Client, limiter *rate.Limiter, workdir files.Workdir) *DownloadStage {
	return &DownloadStage{
		client:   client,
		limiter:  limiter,
		workdir:  workdir,
		endpoint: downloadEndpoint,
	}
}

func (s *DownloadStage) ID() string              { return "download" }
func (s *DownloadStage) Name() string            { return "Download archives" }
func (s *DownloadStage) Target() pipeline.Status { return pipeline.StatusDownloaded }

// Attempt downloads one record's archive. An archive already present on
// disk from an earlier run advances without touching the network.
func (s *DownloadStage) Attempt(ctx context.Context, rec pipeline.Record) pipeline.Outcome {
	zipName := market.ZipName(rec.Platform, rec.Timeframe, rec.Pair, rec.YearMonth())
	dest := s.workdir.ArchivePath(zipName)

	if files.Exists(dest) {
		slog.DebugContext(ctx, "archive_already_on_disk",
			slog.String("record", rec.Key()),
			slog.String("path", dest))
		rec.ArchivePath = dest
		rec.Status = pipeline.StatusDownloaded
		return pipeline.Advanced(rec)
	}

	token, err := s.fetchToken(ctx, rec)
	if err != nil {
		return pipeline.Failed(rec, err)
	}
	if token == "" {
		return pipeline.Skipped(rec, "no archive offered for this month")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return pipeline.Failed(rec, err)
	}
	form := url.Values{"tk": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return pipeline.Failed(rec, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", rec.URL)

	resp, err := s.client.Do(req)
	if err != nil {
		return pipeline.Failed(rec, pipeline.NewTransientError(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return pipeline.Failed(rec, pipeline.NewTransientError(
			fmt.Errorf("download returned status %d", resp.StatusCode)))
	}

	err = files.WriteAtomic(dest, func(w io.Writer) error {
		written, err := io.Copy(w, resp.Body)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "archive_downloaded",
			slog.String("record", rec.Key()),
			slog.String("path", dest),
			slog.Int64("bytes", written))
		return nil
	})
	if err != nil {
		return pipeline.Failed(rec, pipeline.NewTransientError(err))
	}

	rec.ArchivePath = dest
	rec.Status = pipeline.StatusDownloaded
	return pipeline.Advanced(rec)
}

// fetchToken scrapes the one-time download token from the archive page.
// Records resumed from a checkpoint have no URL yet, so it is rebuilt
// from the record identity.
func (s *DownloadStage) fetchToken(ctx context.Context, rec pipeline.Record) (string, error) {
	pageURL := rec.URL
	if pageURL == "" {
		pageURL = market.ArchivePageURL(rec.Platform, rec.Timeframe, rec.Pair, rec.YearMonth())
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", pipeline.NewTransientError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", pipeline.NewTransientError(
			fmt.Errorf("archive page returned status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", pipeline.NewTransientError(err)
	}
	match := tokenPattern.FindSubmatch(body)
	if match == nil {
		return "", nil
	}
	return string(match[1]), nil
}
