package remotetest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-migrator/internal/remote"
	"github.com/dvloznov/finance-migrator/internal/remote/memory"
	"github.com/dvloznov/finance-migrator/internal/remote/remotetest"
)

// keepFirst stores a record only the first time its id is seen.
type keepFirst struct {
	*memory.Upserter
}

func (k keepFirst) Upsert(ctx context.Context, c remote.Collection, records []remote.Record, owner remote.Owner) error {
	var fresh []remote.Record
	for _, r := range records {
		if _, ok := k.Get(c, r.RecordID()); !ok {
			fresh = append(fresh, r)
		}
	}
	return k.Upserter.Upsert(ctx, c, fresh, owner)
}

func backendOf(up remote.Upserter, store *memory.Upserter) remotetest.Backend {
	return remotetest.Backend{Upserter: up, Verifier: store, Lookup: func(_ context.Context, c remote.Collection, id string) (map[string]string, error) {
		s, ok := store.Get(c, id)
		if !ok {
			return nil, nil
		}
		return remotetest.Columns(s.Record), nil
	}}
}

func TestChecks_AcceptOverwritingStore(t *testing.T) {
	for _, c := range remotetest.Checks {
		t.Run(c.Name, func(t *testing.T) {
			store := memory.New()
			require.NoError(t, c.Run(context.Background(), backendOf(store, store)))
		})
	}
}

func TestChecks_RejectInsertOrIgnoreStore(t *testing.T) {
	tests := []struct {
		name  string
		check func(context.Context, remotetest.Backend) error
		want  string
	}{
		{"transaction label", remotetest.CheckOverwrite, `label = "coffee", want "espresso"`},
		{"profile fields", remotetest.CheckProfileLastWriterWins, `display_name = "Alex", want "Alexandra"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			err := tt.check(context.Background(), backendOf(keepFirst{store}, store))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestColumns(t *testing.T) {
	row := &remote.TransactionRow{ID: "tx-1", Label: "coffee", BudgetID: remote.OptionalString("b1")}
	cols := remotetest.Columns(row)
	assert.Equal(t, "tx-1", cols["id"])
	assert.Equal(t, "coffee", cols["label"])
	assert.Equal(t, "b1", cols["budget_id"])
	assert.NotContains(t, cols, "goal_id")
}
