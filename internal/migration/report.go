package migration

import (
	"time"

	"github.com/dvloznov/finance-migrator/internal/remote"
)

// FailureKind classifies an entry of Report.Failures.
type FailureKind string

const (
	// FailureUnit: the unit record could not be written; none of its data was attempted.
	FailureUnit FailureKind = "unit"
	// FailureGroup: a whole upsert call for an entity group failed.
	FailureGroup FailureKind = "group"
	// FailureRecord: a single record was rejected inside an otherwise accepted call.
	FailureRecord FailureKind = "record"
	// FailureInvalidRecord: the record has no id and was never sent.
	FailureInvalidRecord FailureKind = "invalid_record"
	// FailureDependency: the record's parent was not written, so it was not attempted.
	FailureDependency FailureKind = "dependency"
	// FailureDuplicateUnit: the unit id was declared again; the repeat was skipped.
	FailureDuplicateUnit FailureKind = "duplicate_unit"
	// FailureProfile: the user profile could not be written.
	FailureProfile FailureKind = "profile"
)

// Failure is one thing that did not make it to the remote store.
type Failure struct {
	UnitID   string      `json:"unit_id,omitempty"`
	UnitName string      `json:"unit_name,omitempty"`
	Group    Group       `json:"group"`
	RecordID string      `json:"record_id,omitempty"`
	ParentID string      `json:"parent_id,omitempty"`
	Kind     FailureKind `json:"kind"`
	Cause    string      `json:"cause"`
	Err      error       `json:"-"`
}

// Report is the structured outcome of one migration run. A completed run may
// still carry failures; the run is best effort.
type Report struct {
	CallerID       string                    `json:"caller_id"`
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     time.Time                 `json:"finished_at"`
	NoData         bool                      `json:"no_data"`
	Completed      bool                      `json:"completed"`
	UnitsTotal     int                       `json:"units_total"`
	UnitsSkipped   int                       `json:"units_skipped"`
	ProfileWritten bool                      `json:"profile_written"`
	Written        map[remote.Collection]int `json:"written"`
	Attempted      map[remote.Collection]int `json:"attempted"`
	Failures       []Failure                 `json:"failures,omitempty"`
}

func newReport(callerID string, now time.Time) *Report {
	return &Report{
		CallerID:  callerID,
		StartedAt: now,
		Written:   make(map[remote.Collection]int),
		Attempted: make(map[remote.Collection]int),
	}
}

// HasFailures reports whether anything was not written.
func (r *Report) HasFailures() bool {
	return r != nil && len(r.Failures) > 0
}

// FailuresOf returns the failures of one kind.
func (r *Report) FailuresOf(kind FailureKind) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// TotalWritten is the number of records written across all collections.
func (r *Report) TotalWritten() int {
	n := 0
	for _, v := range r.Written {
		n += v
	}
	return n
}

// unitOutcome collects what happened to one unit. Units may run concurrently,
// each with its own outcome; they are merged into the Report in unit order.
type unitOutcome struct {
	skipped   bool
	written   map[remote.Collection]int
	attempted map[remote.Collection]int
	failures  []Failure
}

func newUnitOutcome() *unitOutcome {
	return &unitOutcome{
		written:   make(map[remote.Collection]int),
		attempted: make(map[remote.Collection]int),
	}
}

func (r *Report) merge(o *unitOutcome) {
	if o.skipped {
		r.UnitsSkipped++
	}
	for c, n := range o.written {
		r.Written[c] += n
	}
	for c, n := range o.attempted {
		r.Attempted[c] += n
	}
	r.Failures = append(r.Failures, o.failures...)
}

func failureCause(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
