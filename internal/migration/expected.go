package migration

import (
	"time"

	"github.com/dvloznov/finance-migrator/internal/domain"
	"github.com/dvloznov/finance-migrator/internal/remote"
)

// ExpectedIDs lists, per collection, the record ids a full migration of snap
// writes under plan. Records without an id are left out.
func ExpectedIDs(plan Plan, callerID string, snap *domain.Snapshot) map[remote.Collection][]string {
	out := make(map[remote.Collection][]string)
	if snap == nil {
		return out
	}

	repeated := repeatedUnits(snap.Units)
	for i, unit := range snap.Units {
		if repeated[i] {
			continue
		}
		bundle := snap.Bundle(unit.ID)
		if bundle == nil {
			bundle = &domain.FinancialBundle{}
		}
		scope := Scope{CallerID: callerID, Unit: unit, Bundle: bundle}

		for _, step := range plan {
			for _, b := range step.Batches(scope) {
				if b.Dependent && b.ParentID == "" {
					continue
				}
				for _, r := range b.Records {
					if r.RecordID() != "" {
						out[step.Collection] = append(out[step.Collection], r.RecordID())
					}
				}
			}
		}
	}

	if BuildProfile(callerID, snap, time.Time{}) != nil {
		out[remote.CollectionUserProfiles] = []string{callerID}
	}
	return out
}
