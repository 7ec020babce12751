package pipeline

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RetryConfig bounds the per-record retry loop within one run.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Config controls manager execution.
type Config struct {
	// Workers bounds how many records one stage processes concurrently.
	Workers int
	// AttemptTimeout bounds a single collaborator attempt on one record.
	AttemptTimeout time.Duration
	// Retry bounds how often a failed record is re-attempted.
	Retry RetryConfig
}

// NewConfig returns the default manager configuration.
func NewConfig() Config {
	return Config{
		Workers:        4,
		AttemptTimeout: 5 * time.Minute,
		Retry:          NewRetryConfig(),
	}
}

// Failure identifies one record that ended a run in a failed state.
type Failure struct {
	Record      string `json:"record"`
	Stage       string `json:"stage"`
	Reason      string `json:"reason"`
	Interrupted bool   `json:"interrupted,omitempty"`
}

// Summary is the final run report.
type Summary struct {
	RunID       string    `json:"run_id"`
	Advanced    int       `json:"advanced"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Interrupted int       `json:"interrupted"`
	Unfinished  int       `json:"unfinished"`
	Failures    []Failure `json:"failures,omitempty"`
}

// Manager drives the enabled stages, in fixed order, over a record set.
// It owns the worker pool and is the checkpoint store's only writer.
type Manager struct {
	config Config
	store  CheckpointStore
	stages []Stage
	runID  string
}

// NewManager creates a manager over the enabled stages, which must already
// be in fixed stage order. A stage absent from the list is disabled: its
// input record set passes through unchanged.
func NewManager(store CheckpointStore, stages []Stage, config Config) *Manager {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Retry.MaxAttempts < 1 {
		config.Retry.MaxAttempts = 1
	}
	return &Manager{
		config: config,
		store:  store,
		stages: stages,
		runID:  uuid.NewString(),
	}
}

// RunID returns the identifier stamped on this run's log events.
func (m *Manager) RunID() string { return m.runID }

// Run reconciles prior checkpoint state into the freshly built record set,
// executes each enabled stage over it, and returns the final summary. The
// returned error is non-nil only for run-level failures (checkpoint I/O);
// per-record failures are reported through the summary.
func (m *Manager) Run(ctx context.Context, initial RecordSet) (*Summary, error) {
	prior, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	current := m.reconcile(ctx, initial, prior)
	summary := &Summary{RunID: m.runID}

	slog.InfoContext(ctx, "run_started",
		slog.String("run_id", m.runID),
		slog.Int("records", current.Len()),
		slog.Int("stages", len(m.stages)))

	ranAll := true
	for i, stage := range m.stages {
		if current.Len() == 0 {
			break
		}
		current, err = m.runStage(ctx, stage, current, summary)
		if err != nil {
			return summary, err
		}
		if ctx.Err() != nil {
			ranAll = i == len(m.stages)-1
			break
		}
	}

	if ranAll {
		summary.Advanced = current.Len()
	} else {
		// Shutdown left stages unexecuted; the survivors are checkpointed
		// mid-pipeline, not done.
		summary.Unfinished = current.Len()
	}
	slog.InfoContext(ctx, "run_finished",
		slog.String("run_id", m.runID),
		slog.Int("advanced", summary.Advanced),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Int("interrupted", summary.Interrupted),
		slog.Int("unfinished", summary.Unfinished))
	return summary, nil
}

// reconcile merges prior checkpoint state into the fresh record set.
// Records already retired (skipped, or failed with the attempt budget
// spent) are dropped; everything else resumes from its recorded status
// with its attempt count intact.
func (m *Manager) reconcile(ctx context.Context, initial RecordSet, prior map[string]CheckpointEntry) RecordSet {
	if len(prior) == 0 {
		return initial
	}
	kept := make([]Record, 0, initial.Len())
	for _, rec := range initial.Records() {
		entry, ok := prior[rec.Key()]
		if !ok {
			kept = append(kept, rec)
			continue
		}
		if entry.Status.Terminal() {
			slog.DebugContext(ctx, "record_retired_prior",
				slog.String("record", rec.Key()),
				slog.String("status", string(entry.Status)),
				slog.Int("attempts", entry.Attempts))
			continue
		}
		if entry.Attempts >= m.config.Retry.MaxAttempts {
			// Budget spent without reaching a terminal status; retired,
			// but loudly so the operator sees it.
			slog.WarnContext(ctx, "record_retired_budget_exhausted",
				slog.String("record", rec.Key()),
				slog.String("status", string(entry.Status)),
				slog.Int("attempts", entry.Attempts),
				slog.Int("max_attempts", m.config.Retry.MaxAttempts))
			continue
		}
		rec.Status = entry.Status
		rec.Attempts = entry.Attempts
		rec.LastError = entry.LastError
		kept = append(kept, rec)
	}
	slog.InfoContext(ctx, "checkpoint_reconciled",
		slog.Int("prior_entries", len(prior)),
		slog.Int("resumed", len(kept)),
		slog.Int("retired", initial.Len()-len(kept)))
	return NewRecordSet(kept)
}

// runStage executes one stage over the current set and returns the next
// set. All outcomes are checkpointed before this function returns, so no
// record starts the following stage without its progress on disk.
func (m *Manager) runStage(ctx context.Context, stage Stage, current RecordSet, summary *Summary) (RecordSet, error) {
	records := current.Records()
	outcomes := make([]Outcome, len(records))
	todo := 0

	slog.InfoContext(ctx, "stage_started",
		slog.String("run_id", m.runID),
		slog.String("stage", stage.ID()),
		slog.Int("records", len(records)))
	started := time.Now()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.config.Workers)
	for i, rec := range records {
		if rec.Status.AtLeast(stage.Target()) {
			// Committed in a previous run; carries through untouched.
			outcomes[i] = Advanced(rec)
			continue
		}
		todo++
		i, rec := i, rec
		group.Go(func() error {
			outcomes[i] = m.attemptWithRetry(groupCtx, stage, rec)
			return nil
		})
	}
	group.Wait()

	if flusher, ok := stage.(Flusher); ok {
		if err := flusher.Flush(ctx); err != nil {
			// Buffered output never reached the sink; records advanced
			// in memory must not be checkpointed as done.
			slog.ErrorContext(ctx, "stage_flush_failed",
				slog.String("stage", stage.ID()),
				slog.String("error", err.Error()))
			for i := range outcomes {
				o := outcomes[i]
				if o.Kind == OutcomeAdvanced && !records[i].Status.AtLeast(stage.Target()) {
					rec := records[i]
					rec.Attempts++
					rec.LastError = err.Error()
					outcomes[i] = Failed(rec, err)
				}
			}
		}
	}

	next := make([]Record, 0, len(records))
	for i, outcome := range outcomes {
		resumed := records[i].Status.AtLeast(stage.Target())
		switch outcome.Kind {
		case OutcomeAdvanced:
			next = append(next, outcome.Record)
			if resumed {
				continue // checkpoint already reflects this status
			}
			if err := m.store.Commit(outcome.Record); err != nil {
				return RecordSet{}, err
			}
		case OutcomeSkipped:
			summary.Skipped++
			rec := outcome.Record
			rec.Status = StatusSkipped
			rec.LastError = outcome.Reason
			slog.InfoContext(ctx, "record_skipped",
				slog.String("stage", stage.ID()),
				slog.String("record", rec.Key()),
				slog.String("reason", outcome.Reason))
			if err := m.store.Commit(rec); err != nil {
				return RecordSet{}, err
			}
		case OutcomeFailed:
			rec := outcome.Record
			interrupted := IsInterrupt(outcome.Err)
			if interrupted {
				// Keep the last completed status so the next run
				// re-attempts this stage; never silently dropped.
				summary.Interrupted++
			} else {
				summary.Failed++
				// Terminal only once the budget is spent or the error
				// is permanent. A failure with budget left (a flush
				// refusal, for instance) keeps its last completed
				// status so the next run re-attempts the stage.
				if !IsRetryable(outcome.Err) || rec.Attempts >= m.config.Retry.MaxAttempts {
					rec.Status = StatusFailed
				}
			}
			summary.Failures = append(summary.Failures, Failure{
				Record:      rec.Key(),
				Stage:       stage.ID(),
				Reason:      rec.LastError,
				Interrupted: interrupted,
			})
			slog.WarnContext(ctx, "record_failed",
				slog.String("stage", stage.ID()),
				slog.String("record", rec.Key()),
				slog.Int("attempts", rec.Attempts),
				slog.Bool("interrupted", interrupted),
				slog.String("error", rec.LastError))
			if err := m.store.Commit(rec); err != nil {
				return RecordSet{}, err
			}
		}
	}

	slog.InfoContext(ctx, "stage_finished",
		slog.String("run_id", m.runID),
		slog.String("stage", stage.ID()),
		slog.Int("attempted", todo),
		slog.Int("advanced", len(next)),
		slog.Duration("duration", time.Since(started)))
	return NewRecordSet(next), nil
}

// attemptWithRetry drives one record through up to MaxAttempts attempts of
// one stage, backing off between retries. The record's prior attempts
// (from the checkpoint) count against the budget.
func (m *Manager) attemptWithRetry(ctx context.Context, stage Stage, rec Record) Outcome {
	for {
		if ctx.Err() != nil {
			rec.LastError = NewInterruptError(stage.ID(), rec.Key()).Error()
			return Failed(rec, NewInterruptError(stage.ID(), rec.Key()))
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if m.config.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, m.config.AttemptTimeout)
		}
		outcome := stage.Attempt(attemptCtx, rec)
		if cancel != nil {
			cancel()
		}

		switch outcome.Kind {
		case OutcomeAdvanced, OutcomeSkipped:
			return outcome
		}

		err := outcome.Err
		if ctx.Err() != nil {
			// The run was shut down while this record was in flight. An
			// aborted attempt does not consume budget; the next run gets
			// the full remainder.
			rec.LastError = NewInterruptError(stage.ID(), rec.Key()).Error()
			return Failed(rec, NewInterruptError(stage.ID(), rec.Key()))
		}
		if attemptCtx.Err() == context.DeadlineExceeded {
			err = NewTimeoutError(stage.ID(), rec.Key())
		}

		rec.Attempts++
		rec.LastError = err.Error()
		if !IsRetryable(err) || rec.Attempts >= m.config.Retry.MaxAttempts {
			return Failed(rec, err)
		}

		delay := retryDelay(rec.Attempts, m.config.Retry)
		slog.WarnContext(ctx, "record_retry",
			slog.String("stage", stage.ID()),
			slog.String("record", rec.Key()),
			slog.Int("attempt", rec.Attempts),
			slog.Int("max_attempts", m.config.Retry.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			rec.LastError = NewInterruptError(stage.ID(), rec.Key()).Error()
			return Failed(rec, NewInterruptError(stage.ID(), rec.Key()))
		}
	}
}

// retryDelay computes the exponential backoff before the next attempt.
func retryDelay(attempt int, config RetryConfig) time.Duration {
	multiplier := config.Multiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}
