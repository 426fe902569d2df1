// Package migration moves a caller's local snapshot into the remote store, one
// unit at a time, following an explicit Plan. It is best effort: every failure
// except a corrupt snapshot is recorded in the Report and the run carries on.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/finance-migrator/internal/domain"
	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/remote"
	"github.com/dvloznov/finance-migrator/internal/snapshot"
)

// ErrCorruptSnapshot is the only error a run can end with besides an unreachable source.
var ErrCorruptSnapshot = snapshot.ErrCorruptSnapshot

// ErrSnapshotUnavailable wraps failures to fetch the snapshot. Nothing was written
// and the run can be retried.
var ErrSnapshotUnavailable = errors.New("snapshot unavailable")

// SnapshotReader loads a caller's snapshot; (nil, nil) means there is none.
type SnapshotReader interface {
	Read(ctx context.Context, callerID string) (*domain.Snapshot, error)
}

// Recorder receives run metrics. metrics.MigrationMetrics implements it.
type Recorder interface {
	RunFinished(outcome string, elapsed time.Duration)
	RecordsWritten(collection remote.Collection, n int)
	RecordFailures(collection remote.Collection, kind string, n int)
	UnitSkipped()
}

// Run outcomes passed to Recorder.RunFinished.
const (
	OutcomeCompleted   = "completed"
	OutcomePartial     = "partial"
	OutcomeNoData      = "no_data"
	OutcomeCorrupt     = "corrupt"
	OutcomeUnavailable = "unavailable"
)

// Options tune a Migrator. The zero value is valid.
type Options struct {
	// UnitConcurrency is the number of units migrated at once. Steps inside a
	// unit always run in plan order. Values below 2 mean sequential.
	UnitConcurrency int
	// Plan overrides DefaultPlan.
	Plan Plan
	// Now overrides time.Now, used for the profile timestamp and the report.
	Now func() time.Time
	// Recorder receives metrics; nil disables them.
	Recorder Recorder
}

// Migrator runs migrations.
type Migrator struct {
	reader      SnapshotReader
	upserter    remote.Upserter
	plan        Plan
	concurrency int
	now         func() time.Time
	recorder    Recorder
}

// New creates a Migrator. It fails only if opts.Plan is invalid.
func New(reader SnapshotReader, upserter remote.Upserter, opts Options) (*Migrator, error) {
	plan := opts.Plan
	if plan == nil {
		plan = DefaultPlan()
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	m := &Migrator{
		reader:      reader,
		upserter:    upserter,
		plan:        plan,
		concurrency: opts.UnitConcurrency,
		now:         opts.Now,
		recorder:    opts.Recorder,
	}
	if m.concurrency < 1 {
		m.concurrency = 1
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	return m, nil
}

// Plan returns the plan the migrator follows.
func (m *Migrator) Plan() Plan {
	return m.plan
}

// Migrate moves callerID's snapshot to the remote store, reporting progress to
// onProgress. The returned error wraps ErrCorruptSnapshot or ErrSnapshotUnavailable;
// in both cases nothing was written. Every other failure lands in the Report.
func (m *Migrator) Migrate(ctx context.Context, callerID string, onProgress ProgressFunc) (*Report, error) {
	log := logger.FromContext(ctx).With().Str("caller_id", callerID).Logger()
	ctx = logger.WithContext(ctx, log)

	started := m.now()
	report := newReport(callerID, started)
	progress := newSerialProgress(onProgress)

	snap, err := m.reader.Read(ctx, callerID)
	if err != nil {
		report.FinishedAt = m.now()
		if errors.Is(err, ErrCorruptSnapshot) {
			log.Error().Err(err).Msg("Snapshot is corrupt, aborting migration")
			m.recorder.RunFinished(OutcomeCorrupt, report.FinishedAt.Sub(started))
			return report, fmt.Errorf("Migrate: %w", err)
		}
		log.Error().Err(err).Msg("Snapshot could not be fetched")
		m.recorder.RunFinished(OutcomeUnavailable, report.FinishedAt.Sub(started))
		return report, fmt.Errorf("Migrate: %w: %w", ErrSnapshotUnavailable, err)
	}

	if snap == nil {
		log.Info().Msg("No local data to migrate")
		report.NoData = true
		report.Completed = true
		report.FinishedAt = m.now()
		progress.emit(MessageNoData)
		m.recorder.RunFinished(OutcomeNoData, report.FinishedAt.Sub(started))
		return report, nil
	}

	report.UnitsTotal = len(snap.Units)
	log.Info().Int("units", len(snap.Units)).Int("concurrency", m.concurrency).Msg("Starting migration")

	for _, o := range m.migrateUnits(ctx, callerID, snap, progress) {
		report.merge(o)
	}

	m.finalizeProfile(ctx, callerID, snap, report)

	report.Completed = true
	report.FinishedAt = m.now()
	progress.emit(MessageCompleted)

	outcome := OutcomeCompleted
	if report.HasFailures() {
		outcome = OutcomePartial
	}
	m.recorder.RunFinished(outcome, report.FinishedAt.Sub(started))

	log.Info().
		Int("written", report.TotalWritten()).
		Int("failures", len(report.Failures)).
		Int("units_skipped", report.UnitsSkipped).
		Msg("Migration completed")
	return report, nil
}

// migrateUnits processes every declared unit and returns their outcomes in unit order.
func (m *Migrator) migrateUnits(ctx context.Context, callerID string, snap *domain.Snapshot, progress *serialProgress) []*unitOutcome {
	outcomes := make([]*unitOutcome, len(snap.Units))
	repeated := repeatedUnits(snap.Units)

	if m.concurrency == 1 {
		for i, unit := range snap.Units {
			if repeated[i] {
				outcomes[i] = m.skipRepeatedUnit(ctx, unit)
				continue
			}
			outcomes[i] = m.migrateUnit(ctx, callerID, unit, snap.Bundle(unit.ID), progress)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, unit := range snap.Units {
		if repeated[i] {
			outcomes[i] = m.skipRepeatedUnit(ctx, unit)
			continue
		}
		g.Go(func() error {
			outcomes[i] = m.migrateUnit(ctx, callerID, unit, snap.Bundle(unit.ID), progress)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// repeatedUnits flags every declaration of a unit id after its first one.
func repeatedUnits(units []domain.UnitMeta) []bool {
	repeated := make([]bool, len(units))
	seen := make(map[string]bool, len(units))
	for i, u := range units {
		if u.ID == "" {
			continue
		}
		repeated[i] = seen[u.ID]
		seen[u.ID] = true
	}
	return repeated
}

// skipRepeatedUnit records a unit declared more than once. Its data was already
// migrated with the first declaration since both share the same bundle.
func (m *Migrator) skipRepeatedUnit(ctx context.Context, unit domain.UnitMeta) *unitOutcome {
	log := logger.FromContext(ctx)
	log.Warn().Str("unit_id", unit.ID).Msg("Unit declared more than once, skipping repeat")

	out := newUnitOutcome()
	out.skipped = true
	out.failures = append(out.failures, Failure{
		UnitID: unit.ID, UnitName: unit.Name, Group: GroupUnit, RecordID: unit.ID,
		Kind: FailureDuplicateUnit, Cause: "unit declared more than once",
	})
	m.recorder.RecordFailures(remote.CollectionUnits, string(FailureDuplicateUnit), 1)
	m.recorder.UnitSkipped()
	return out
}

// migrateUnit runs the plan for one unit. A root failure skips the rest of the
// unit; any other failure is recorded and the next step runs.
func (m *Migrator) migrateUnit(ctx context.Context, callerID string, unit domain.UnitMeta, bundle *domain.FinancialBundle, progress *serialProgress) *unitOutcome {
	log := logger.FromContext(ctx).With().Str("unit_id", unit.ID).Logger()
	out := newUnitOutcome()

	if bundle == nil {
		bundle = &domain.FinancialBundle{}
	}
	scope := Scope{CallerID: callerID, Unit: unit, Bundle: bundle}
	name := unit.Name
	if name == "" {
		name = unit.ID
	}

	// written tracks, per group, the ids that reached the remote store.
	written := make(map[Group]map[string]bool, len(m.plan))

	for i, step := range m.plan {
		stepLog := log.With().Str("group", string(step.Group)).Logger()
		batches := m.eligibleBatches(step, scope, written, name, out)

		count := 0
		for _, b := range batches {
			count += len(b.Records)
		}
		if count == 0 {
			if i == 0 {
				// The root record was dropped as invalid; nothing can hang off it.
				out.skipped = true
				m.recorder.UnitSkipped()
				return out
			}
			continue
		}

		if step.Label != "" {
			progress.emit(groupMessage(count, step.Label, name))
		}
		stepLog.Debug().Int("count", count).Msg("Writing group")

		ok := m.writeStep(ctx, step, batches, unit.ID, name, written, out, stepLog)

		if i == 0 && !ok {
			stepLog.Warn().Msg("Unit could not be written, skipping its data")
			out.skipped = true
			m.recorder.UnitSkipped()
			return out
		}
	}

	return out
}

// eligibleBatches builds the step's batches, dropping records without an id and
// batches whose parent record was not written.
func (m *Migrator) eligibleBatches(step Step, scope Scope, written map[Group]map[string]bool, unitName string, out *unitOutcome) []Batch {
	var eligible []Batch
	for _, b := range step.Batches(scope) {
		if b.Dependent && !written[step.DependsOn][b.ParentID] {
			cause := fmt.Sprintf("%s %s was not written", step.DependsOn, b.ParentID)
			if b.ParentID == "" {
				cause = fmt.Sprintf("parent in %s has no id", step.DependsOn)
			}
			for _, r := range b.Records {
				out.failures = append(out.failures, Failure{
					UnitID: scope.Unit.ID, UnitName: unitName, Group: step.Group,
					RecordID: r.RecordID(), ParentID: b.ParentID, Kind: FailureDependency,
					Cause: cause,
				})
			}
			m.recorder.RecordFailures(step.Collection, string(FailureDependency), len(b.Records))
			continue
		}

		kept := make([]remote.Record, 0, len(b.Records))
		for _, r := range b.Records {
			if r.RecordID() == "" {
				out.failures = append(out.failures, Failure{
					UnitID: scope.Unit.ID, UnitName: unitName, Group: step.Group,
					ParentID: b.ParentID, Kind: FailureInvalidRecord, Cause: "record has no id",
				})
				m.recorder.RecordFailures(step.Collection, string(FailureInvalidRecord), 1)
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			continue
		}
		b.Records = kept
		eligible = append(eligible, b)
	}
	return eligible
}

// writeStep issues one upsert per batch in order and records the result. It
// reports whether every record of the step was written.
func (m *Migrator) writeStep(ctx context.Context, step Step, batches []Batch, unitID, unitName string, written map[Group]map[string]bool, out *unitOutcome, log zerolog.Logger) bool {
	if written[step.Group] == nil {
		written[step.Group] = make(map[string]bool)
	}

	kind := FailureGroup
	if step.DependsOn == "" {
		kind = FailureUnit
	}

	allOK := true
	for _, b := range batches {
		out.attempted[step.Collection] += len(b.Records)
		err := m.upserter.Upsert(ctx, step.Collection, b.Records, b.Owner)

		ids := remote.SucceededIDs(b.Records, err)
		for _, id := range ids {
			written[step.Group][id] = true
		}
		out.written[step.Collection] += len(ids)
		m.recorder.RecordsWritten(step.Collection, len(ids))

		if err == nil {
			continue
		}
		allOK = false

		var pf *remote.PartialFailure
		if errors.As(err, &pf) {
			log.Warn().Err(err).Int("failed", len(pf.Failures)).Str("parent_id", b.ParentID).Msg("Some records were not written")
			recordKind := FailureRecord
			if kind == FailureUnit {
				recordKind = FailureUnit
			}
			for _, f := range pf.Failures {
				out.failures = append(out.failures, Failure{
					UnitID: unitID, UnitName: unitName, Group: step.Group,
					RecordID: f.RecordID, ParentID: b.ParentID, Kind: recordKind,
					Cause: failureCause(f.Cause), Err: f.Cause,
				})
			}
			m.recorder.RecordFailures(step.Collection, string(recordKind), len(pf.Failures))
			continue
		}

		log.Warn().Err(err).Str("parent_id", b.ParentID).Msg("Group write failed")
		failure := Failure{
			UnitID: unitID, UnitName: unitName, Group: step.Group,
			ParentID: b.ParentID, Kind: kind, Cause: failureCause(err), Err: err,
		}
		if kind == FailureUnit && len(b.Records) == 1 {
			failure.RecordID = b.Records[0].RecordID()
		}
		out.failures = append(out.failures, failure)
		m.recorder.RecordFailures(step.Collection, string(kind), len(b.Records))
	}
	return allOK
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(string, time.Duration) {}

func (nopRecorder) RecordsWritten(remote.Collection, int) {}

func (nopRecorder) RecordFailures(remote.Collection, string, int) {}

func (nopRecorder) UnitSkipped() {}
