package pipeline

import "context"

// Stage is one processing phase. Implementations own all protocol, format
// and storage specific behavior; the manager only sees outcomes.
type Stage interface {
	// ID returns the stage identifier used in configuration and logs.
	ID() string

	// Name returns the human-readable stage name.
	Name() string

	// Target returns the status a record holds once this stage has
	// advanced it. Records already at or past the target pass through
	// without an attempt.
	Target() Status

	// Attempt processes one record. It is invoked exactly once per record
	// per attempt, never concurrently for the same record, and must honor
	// ctx cancellation on blocking I/O.
	Attempt(ctx context.Context, rec Record) Outcome
}

// Flusher is implemented by stages that buffer output (the load stage's
// batching sink). The manager flushes before committing the stage's
// checkpoints so durability follows the data.
type Flusher interface {
	Flush(ctx context.Context) error
}

// OutcomeKind classifies the result of one stage attempt.
type OutcomeKind int

const (
	// OutcomeAdvanced means the record moved to the stage's target status.
	OutcomeAdvanced OutcomeKind = iota
	// OutcomeSkipped means the record was permanently rejected; it is
	// dropped with a logged reason and never retried.
	OutcomeSkipped
	// OutcomeFailed means the attempt failed; the manager decides whether
	// to retry based on the error classification and the attempt budget.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of one stage attempt on one record.
type Outcome struct {
	Kind   OutcomeKind
	Record Record
	Reason string
	Err    error
}

// Advanced returns an outcome carrying the updated record.
func Advanced(rec Record) Outcome {
	return Outcome{Kind: OutcomeAdvanced, Record: rec}
}

// Skipped returns a permanent-rejection outcome.
func Skipped(rec Record, reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Record: rec, Reason: reason}
}

// Failed returns a failed outcome carrying the attempt error.
func Failed(rec Record, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Record: rec, Err: err}
}
