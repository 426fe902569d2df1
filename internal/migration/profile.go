package migration

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-migrator/internal/domain"
	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/remote"
)

// Profile fallbacks used when the active bundle leaves a field empty.
const (
	DefaultDisplayName = "Utilisateur"
	DefaultAvatar      = "👤"
	DefaultAIPersona   = "benevolent"
)

// BuildProfile derives the caller's profile row from the active unit's bundle.
// It returns nil when the snapshot has no resolvable active unit.
func BuildProfile(callerID string, snap *domain.Snapshot, now time.Time) *remote.UserProfileRow {
	b := snap.ActiveBundle()
	if b == nil {
		return nil
	}
	return &remote.UserProfileRow{
		ID:          callerID,
		DisplayName: orDefault(b.UserName, DefaultDisplayName),
		Avatar:      orDefault(b.Avatar, DefaultAvatar),
		AIPersona:   orDefault(b.AIPersona, DefaultAIPersona),
		PrivacyMode: b.PrivacyMode,
		UpdatedAt:   now.UTC(),
	}
}

// finalizeProfile writes the aggregate profile. A missing active unit is not an error.
func (m *Migrator) finalizeProfile(ctx context.Context, callerID string, snap *domain.Snapshot, report *Report) {
	log := logger.FromContext(ctx)

	row := BuildProfile(callerID, snap, m.now())
	if row == nil {
		log.Debug().Str("active_unit_id", snap.ActiveUnitID).Msg("No active unit, profile not derived")
		return
	}

	report.Attempted[remote.CollectionUserProfiles]++
	err := m.upserter.Upsert(ctx, remote.CollectionUserProfiles, []remote.Record{row}, remote.Owner{UserID: callerID})
	if err == nil {
		report.ProfileWritten = true
		report.Written[remote.CollectionUserProfiles]++
		m.recorder.RecordsWritten(remote.CollectionUserProfiles, 1)
		return
	}

	var pf *remote.PartialFailure
	if errors.As(err, &pf) && len(pf.Failures) > 0 && pf.Failures[0].Cause != nil {
		err = pf.Failures[0].Cause
	}
	log.Warn().Err(err).Msg("Failed to write user profile")
	report.Failures = append(report.Failures, Failure{
		UnitID:   snap.ActiveUnitID,
		Group:    GroupProfile,
		RecordID: callerID,
		Kind:     FailureProfile,
		Cause:    failureCause(err),
		Err:      err,
	})
	m.recorder.RecordFailures(remote.CollectionUserProfiles, string(FailureProfile), 1)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
