// Package remote defines the write-side contract between the migration engine and
// the relational store that receives a caller's data.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Collection names one remote table/collection.
type Collection string

const (
	CollectionUnits                 Collection = "units"
	CollectionTransactions          Collection = "transactions"
	CollectionBudgets               Collection = "budgets"
	CollectionGoals                 Collection = "goals"
	CollectionRecurringTransactions Collection = "recurring-transactions"
	CollectionDebts                 Collection = "debts"
	CollectionInstallments          Collection = "installments"
	CollectionSubCategories         Collection = "sub-categories"
	CollectionUserProfiles          Collection = "user-profiles"
)

// AllCollections lists every collection the migration writes to.
var AllCollections = []Collection{
	CollectionUnits,
	CollectionTransactions,
	CollectionBudgets,
	CollectionGoals,
	CollectionRecurringTransactions,
	CollectionDebts,
	CollectionInstallments,
	CollectionSubCategories,
	CollectionUserProfiles,
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, known := range AllCollections {
		if c == known {
			return true
		}
	}
	return false
}

// Table returns the identifier-safe form of the collection name, e.g.
// "recurring-transactions" becomes "recurring_transactions".
func (c Collection) Table() string {
	return strings.ReplaceAll(string(c), "-", "_")
}

// Owner carries the keys that scope an upsert call. Installments are scoped by
// their debt only; profiles by the caller only; everything else by caller and unit.
type Owner struct {
	UserID string
	UnitID string
	DebtID string
}

// ErrInvalidOwner is returned when the owner keys do not match what a collection needs.
var ErrInvalidOwner = errors.New("invalid owner keys")

// Validate checks that o carries the keys collection c requires.
func (o Owner) Validate(c Collection) error {
	switch c {
	case CollectionInstallments:
		if o.DebtID == "" {
			return fmt.Errorf("%w: %s requires a debt id", ErrInvalidOwner, c)
		}
	case CollectionUnits, CollectionUserProfiles:
		if o.UserID == "" {
			return fmt.Errorf("%w: %s requires a user id", ErrInvalidOwner, c)
		}
	default:
		if !c.Valid() {
			return fmt.Errorf("%w: unknown collection %q", ErrInvalidOwner, c)
		}
		if o.UserID == "" || o.UnitID == "" {
			return fmt.Errorf("%w: %s requires user and unit ids", ErrInvalidOwner, c)
		}
	}
	return nil
}

// Upserter writes records keyed by their primary key. Writing a record whose key
// already exists overwrites it in place.
//
// Upsert returns nil when every record was written, a *PartialFailure when some
// records failed (the others are written; nothing is rolled back), or any other
// error when the call failed as a whole.
type Upserter interface {
	Upsert(ctx context.Context, collection Collection, records []Record, owner Owner) error
}

// Verifier is implemented by backends that can report which ids already exist.
type Verifier interface {
	ExistingIDs(ctx context.Context, collection Collection, ids []string) (map[string]bool, error)
}

// RecordFailure is one record that could not be written.
type RecordFailure struct {
	RecordID string
	Cause    error
}

// PartialFailure reports the records of one upsert call that were not written.
type PartialFailure struct {
	Collection Collection
	Failures   []RecordFailure
}

func (e *PartialFailure) Error() string {
	if len(e.Failures) == 1 {
		f := e.Failures[0]
		return fmt.Sprintf("upsert %s: record %s failed: %v", e.Collection, f.RecordID, f.Cause)
	}
	return fmt.Sprintf("upsert %s: %d records failed", e.Collection, len(e.Failures))
}

// Unwrap exposes the per-record causes to errors.Is and errors.As.
func (e *PartialFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Cause != nil {
			errs = append(errs, f.Cause)
		}
	}
	return errs
}

// Failed reports whether the record with the given id is among the failures.
func (e *PartialFailure) Failed(recordID string) bool {
	for _, f := range e.Failures {
		if f.RecordID == recordID {
			return true
		}
	}
	return false
}

// Add appends a failure.
func (e *PartialFailure) Add(recordID string, cause error) {
	e.Failures = append(e.Failures, RecordFailure{RecordID: recordID, Cause: cause})
}

// ErrOrNil returns e as an error when it holds failures, nil otherwise.
func (e *PartialFailure) ErrOrNil() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e
}

// SucceededIDs returns the ids of records that were written by a call which
// returned err. A whole-call failure means none were.
func SucceededIDs(records []Record, err error) []string {
	if err == nil {
		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.RecordID())
		}
		return ids
	}

	var pf *PartialFailure
	if !errors.As(err, &pf) {
		return nil
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		if !pf.Failed(r.RecordID()) {
			ids = append(ids, r.RecordID())
		}
	}
	return ids
}
