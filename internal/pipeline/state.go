package pipeline

import (
	"errors"
	"time"

	"github.com/kingrea/helix/internal/archive"
)

// State enumerates the lifecycle of one module on one record.
type State string

const (
	StatePending  State = "pending"
	StateSkipped  State = "skipped"
	StateCached   State = "cached"
	StateComputed State = "computed"
	StateApplied  State = "applied"
	StateFailed   State = "failed"
)

// Outcome records how a module finished on a record.
type Outcome struct {
	Module string
	// State is terminal: Skipped, Applied or Failed.
	State State
	// Source is Cached or Computed once a result exists.
	Source State
	// Miss explains why no cached payload was used when resuming.
	Miss archive.Miss
	// Fallback holds the MalformedPayload error that forced a recompute.
	Fallback error
	// Stale lists outputs on disk that no longer match the result. Only
	// Verify fills it in.
	Stale    []error
	Err      error
	Duration time.Duration
}

// RecordReport summarises one record.
type RecordReport struct {
	RecordID  string
	Outcomes  []Outcome
	WriteErrs []error
	Emitted   bool
	Cancelled bool
}

// Failed reports whether any module or write failed for the record.
func (r RecordReport) Failed() bool {
	return len(r.Errors()) > 0
}

// Errors returns module and write failures in order.
func (r RecordReport) Errors() []error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.State == StateFailed && o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return append(errs, r.WriteErrs...)
}

// Counts tallies terminal states, plus the source of every applied result.
func (r RecordReport) Counts() map[State]int {
	counts := map[State]int{}
	for _, o := range r.Outcomes {
		counts[o.State]++
		if o.State == StateApplied && o.Source != "" {
			counts[o.Source]++
		}
	}
	return counts
}

// Stale returns every stale output reported for the record.
func (r RecordReport) Stale() []error {
	var stale []error
	for _, o := range r.Outcomes {
		stale = append(stale, o.Stale...)
	}
	return stale
}

// Outcome returns the outcome for a module.
func (r RecordReport) Outcome(moduleID string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Module == moduleID {
			return o, true
		}
	}
	return Outcome{}, false
}

// Report summarises a whole run.
type Report struct {
	RunID   string
	Records []RecordReport
	// Errors holds run-level failures: readiness, options, archive IO.
	Errors      []error
	Cancelled   bool
	Aborted     bool
	ArchivePath string
	Started     time.Time
	Finished    time.Time
}

// Failures returns every error recorded during the run.
func (r Report) Failures() []error {
	errs := append([]error{}, r.Errors...)
	for _, rec := range r.Records {
		errs = append(errs, rec.Errors()...)
	}
	return errs
}

// HasFailures reports whether the run should exit non-zero.
func (r Report) HasFailures() bool {
	return r.Cancelled || r.Aborted || len(r.Failures()) > 0
}

// Err joins every failure, or returns nil.
func (r Report) Err() error {
	return errors.Join(r.Failures()...)
}

// Record looks up a record's report.
func (r Report) Record(id string) (RecordReport, bool) {
	for _, rec := range r.Records {
		if rec.RecordID == id {
			return rec, true
		}
	}
	return RecordReport{}, false
}

// Counts sums RecordReport.Counts over every record.
func (r Report) Counts() map[State]int {
	counts := map[State]int{}
	for _, rec := range r.Records {
		for state, n := range rec.Counts() {
			counts[state] += n
		}
	}
	return counts
}

// Event is published as records move through the pipeline.
type Event struct {
	Time     time.Time
	RecordID string
	// ModuleID is empty for record-level events.
	ModuleID string
	State    State
	Err      error
	// RecordDone marks the final event for a record.
	RecordDone bool
}

// Observer receives events. It is called from worker goroutines and must be
// safe for concurrent use.
type Observer func(Event)
