// Package remotetest holds reusable checks that any remote.Upserter backend must pass.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-migrator/internal/remote"
)

// Lookup reads one stored record back as column name to string value. It
// returns a nil map when the record is absent. Only string columns need to be
// present.
type Lookup func(ctx context.Context, collection remote.Collection, id string) (map[string]string, error)

// Backend is a store under test.
type Backend struct {
	Upserter remote.Upserter
	Verifier remote.Verifier
	Lookup   Lookup
}

// Factory returns a fresh, empty backend.
type Factory func(t *testing.T) Backend

// Check is one clause of the contract.
type Check struct {
	Name string
	Run  func(ctx context.Context, b Backend) error
}

// Checks are the clauses RunUpserterContract runs, in order.
var Checks = []Check{
	{"repeated upsert overwrites in place", CheckOverwrite},
	{"installments keyed by debt only", CheckInstallmentOwner},
	{"profile is last writer wins", CheckProfileLastWriterWins},
}

// RunUpserterContract checks the upsert precondition the migration engine relies on:
// writing the same primary key twice leaves exactly one record, carrying the last value.
func RunUpserterContract(t *testing.T, newBackend Factory) {
	t.Helper()

	for _, c := range Checks {
		t.Run(c.Name, func(t *testing.T) {
			require.NoError(t, c.Run(context.Background(), newBackend(t)))
		})
	}
}

// CheckOverwrite writes two transactions, then rewrites one with a new label.
func CheckOverwrite(ctx context.Context, b Backend) error {
	owner := remote.Owner{UserID: "user-1", UnitID: "unit-1"}

	first := []remote.Record{
		sampleTransaction("tx-1", "coffee"),
		sampleTransaction("tx-2", "rent"),
	}
	if err := b.Upserter.Upsert(ctx, remote.CollectionTransactions, first, owner); err != nil {
		return fmt.Errorf("first upsert: %w", err)
	}
	second := []remote.Record{sampleTransaction("tx-1", "espresso")}
	if err := b.Upserter.Upsert(ctx, remote.CollectionTransactions, second, owner); err != nil {
		return fmt.Errorf("second upsert: %w", err)
	}

	found, err := b.Verifier.ExistingIDs(ctx, remote.CollectionTransactions, []string{"tx-1", "tx-2", "tx-3"})
	if err != nil {
		return fmt.Errorf("listing ids: %w", err)
	}
	if len(found) != 2 || !found["tx-1"] || !found["tx-2"] {
		return fmt.Errorf("stored ids = %v, want tx-1 and tx-2", found)
	}

	if err := expectColumn(ctx, b, remote.CollectionTransactions, "tx-1", "label", "espresso"); err != nil {
		return err
	}
	return expectColumn(ctx, b, remote.CollectionTransactions, "tx-2", "label", "rent")
}

// CheckInstallmentOwner writes an installment twice under a debt-only owner.
func CheckInstallmentOwner(ctx context.Context, b Backend) error {
	inst := &remote.InstallmentRow{
		ID:     "inst-1",
		DebtID: "debt-1",
		Amount: decimal.RequireFromString("12.50"),
		IsPaid: true,
	}
	owner := remote.Owner{DebtID: "debt-1"}

	for i := 0; i < 2; i++ {
		if err := b.Upserter.Upsert(ctx, remote.CollectionInstallments, []remote.Record{inst}, owner); err != nil {
			return fmt.Errorf("upsert %d: %w", i+1, err)
		}
	}

	found, err := b.Verifier.ExistingIDs(ctx, remote.CollectionInstallments, []string{"inst-1"})
	if err != nil {
		return fmt.Errorf("listing ids: %w", err)
	}
	if !found["inst-1"] {
		return errors.New("inst-1 not stored")
	}
	return nil
}

// CheckProfileLastWriterWins writes two versions of one profile.
func CheckProfileLastWriterWins(ctx context.Context, b Backend) error {
	owner := remote.Owner{UserID: "user-1"}

	first := &remote.UserProfileRow{ID: "user-1", DisplayName: "Alex", Avatar: "A", AIPersona: "benevolent", UpdatedAt: time.Unix(100, 0).UTC()}
	second := &remote.UserProfileRow{ID: "user-1", DisplayName: "Alexandra", Avatar: "A", AIPersona: "strict", UpdatedAt: time.Unix(200, 0).UTC()}

	if err := b.Upserter.Upsert(ctx, remote.CollectionUserProfiles, []remote.Record{first}, owner); err != nil {
		return fmt.Errorf("first upsert: %w", err)
	}
	if err := b.Upserter.Upsert(ctx, remote.CollectionUserProfiles, []remote.Record{second}, owner); err != nil {
		return fmt.Errorf("second upsert: %w", err)
	}

	found, err := b.Verifier.ExistingIDs(ctx, remote.CollectionUserProfiles, []string{"user-1"})
	if err != nil {
		return fmt.Errorf("listing ids: %w", err)
	}
	if len(found) != 1 {
		return fmt.Errorf("stored profiles = %v, want user-1 only", found)
	}

	if err := expectColumn(ctx, b, remote.CollectionUserProfiles, "user-1", "display_name", "Alexandra"); err != nil {
		return err
	}
	return expectColumn(ctx, b, remote.CollectionUserProfiles, "user-1", "ai_persona", "strict")
}

func expectColumn(ctx context.Context, b Backend, c remote.Collection, id, column, want string) error {
	cols, err := b.Lookup(ctx, c, id)
	if err != nil {
		return fmt.Errorf("reading %s %s: %w", c, id, err)
	}
	if cols == nil {
		return fmt.Errorf("%s %s not found", c, id)
	}
	if got := cols[column]; got != want {
		return fmt.Errorf("%s %s: %s = %q, want %q", c, id, column, got, want)
	}
	return nil
}

// Columns renders the string columns of r, for backends that keep records as is.
func Columns(r remote.Record) map[string]string {
	out := make(map[string]string)
	for _, f := range r.Fields() {
		switch v := f.Value.(type) {
		case string:
			out[f.Name] = v
		case *string:
			if v != nil {
				out[f.Name] = *v
			}
		}
	}
	return out
}

func sampleTransaction(id, label string) *remote.TransactionRow {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &remote.TransactionRow{
		ID:       id,
		UserID:   "user-1",
		UnitID:   "unit-1",
		Date:     &date,
		Amount:   decimal.RequireFromString("-4.20"),
		Label:    label,
		Type:     "expense",
		Category: "food",
		BudgetID: remote.OptionalString("budget-1"),
	}
}
