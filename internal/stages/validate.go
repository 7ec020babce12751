package stages

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"golang.org/x/time/rate"

	"fxingest/internal/market"
	"fxingest/internal/pipeline"
)

// tokenPattern finds the one-time download token embedded in an archive
// page. A page without it carries no downloadable archive.
var tokenPattern = regexp.MustCompile(`id="tk"\s+value="([^"]+)"`)

// ValidateStage probes the provider for each requested archive. Records
// whose archive the provider never published are skipped permanently;
// everything else advances carrying its resolved page URL.
type ValidateStage struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewValidateStage creates the validate collaborator. The limiter is
// shared with the download stage so the provider sees one polite client.
func NewValidateStage(client *http.Client, limiter *rate.Limiter) *ValidateStage {
	return &ValidateStage{client: client, limiter: limiter}
}

func (s *ValidateStage) ID() string              { return "validate" }
func (s *ValidateStage) Name() string            { return "Validate archive URLs" }
func (s *ValidateStage) Target() pipeline.Status { return pipeline.StatusValidated }

// Attempt resolves the record's archive page and checks that a download
// token is present.
func (s *ValidateStage) Attempt(ctx context.Context, rec pipeline.Record) pipeline.Outcome {
	if err := s.limiter.Wait(ctx); err != nil {
		return pipeline.Failed(rec, err)
	}

	url := market.ArchivePageURL(rec.Platform, rec.Timeframe, rec.Pair, rec.YearMonth())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pipeline.Failed(rec, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return pipeline.Failed(rec, pipeline.NewTransientError(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return pipeline.Skipped(rec, "archive not published for this month")
	case resp.StatusCode != http.StatusOK:
		return pipeline.Failed(rec, pipeline.NewTransientError(
			fmt.Errorf("provider returned status %d for %s", resp.StatusCode, url)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pipeline.Failed(rec, pipeline.NewTransientError(err))
	}
	if !tokenPattern.Match(body) {
		// The page exists but offers nothing to download, which is how
		// the provider presents months it has no data for.
		return pipeline.Skipped(rec, "no archive offered for this month")
	}

	slog.DebugContext(ctx, "archive_validated",
		slog.String("record", rec.Key()),
		slog.String("url", url))

	rec.URL = url
	rec.Status = pipeline.StatusValidated
	return pipeline.Advanced(rec)
}
