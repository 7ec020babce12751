// Package pipeline implements the resumable ingest pipeline: it turns a
// requested set of (pair, platform, timeframe, month) combinations into
// records, drives each record through the enabled stages with bounded
// concurrency, and checkpoints per-record progress so an interrupted run
// resumes without redoing completed work.
package pipeline

import (
	"fmt"
	"time"

	"fxingest/internal/market"
)

// Status is a record's position in the fixed stage order. A record only
// moves forward, except that a failed record may be re-attempted from its
// last completed stage until its attempt budget runs out.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidated  Status = "validated"
	StatusDownloaded Status = "downloaded"
	StatusExtracted  Status = "extracted"
	StatusCleaned    Status = "cleaned"
	StatusLoaded     Status = "loaded"

	// Terminal markers. Skipped records were permanently rejected by a
	// stage (e.g. the provider has no archive for that month); failed
	// records exhausted their attempt budget.
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// statusRank orders the forward statuses so "at or past a stage" checks
// are a comparison. Terminal markers are not ranked.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusValidated:  1,
	StatusDownloaded: 2,
	StatusExtracted:  3,
	StatusCleaned:    4,
	StatusLoaded:     5,
}

// AtLeast reports whether s has advanced to want or beyond.
func (s Status) AtLeast(want Status) bool {
	r, ok := statusRank[s]
	w, ok2 := statusRank[want]
	return ok && ok2 && r >= w
}

// Terminal reports whether the record is retired from processing.
func (s Status) Terminal() bool {
	return s == StatusSkipped || s == StatusFailed
}

// Identity names one archive to process. It is immutable once created and
// unique within a working set.
type Identity struct {
	Pair      string           `json:"pair"`
	Platform  market.Platform  `json:"platform"`
	Timeframe market.Timeframe `json:"timeframe"`
	Year      int              `json:"year"`
	Month     int              `json:"month"`
}

// Key renders the identity as a stable string used for checkpoint lookups
// and log output.
func (id Identity) Key() string {
	return fmt.Sprintf("%s/%s/%s/%04d-%02d",
		id.Pair, id.Platform, id.Timeframe, id.Year, id.Month)
}

// YearMonth returns the archive month.
func (id Identity) YearMonth() market.YearMonth {
	return market.YearMonth{Year: id.Year, Month: time.Month(id.Month)}
}

// Record is one work item. Records are passed by value between stage
// boundaries; a stage attempt receives a copy and returns the updated copy
// in its outcome, so no two goroutines ever share a mutable record.
type Record struct {
	Identity

	Status    Status `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`

	// Artifact references filled in as stages advance the record.
	URL         string `json:"url,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	CSVPath     string `json:"csv_path,omitempty"`
}

// NewRecord creates a pending record for the given identity.
func NewRecord(pair string, p market.Platform, t market.Timeframe, ym market.YearMonth) Record {
	return Record{
		Identity: Identity{
			Pair:      pair,
			Platform:  p,
			Timeframe: t,
			Year:      ym.Year,
			Month:     int(ym.Month),
		},
		Status: StatusPending,
	}
}
