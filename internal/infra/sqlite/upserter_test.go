package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-migrator/internal/migration"
	"github.com/dvloznov/finance-migrator/internal/remote"
	"github.com/dvloznov/finance-migrator/internal/remote/remotetest"
	"github.com/dvloznov/finance-migrator/internal/snapshot"
)

func openTemp(t *testing.T) *Upserter {
	t.Helper()
	u, err := Open(filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })
	return u
}

func TestUpserterContract(t *testing.T) {
	remotetest.RunUpserterContract(t, func(t *testing.T) remotetest.Backend {
		u := openTemp(t)
		return remotetest.Backend{Upserter: u, Verifier: u, Lookup: func(ctx context.Context, c remote.Collection, id string) (map[string]string, error) {
			return selectRow(ctx, u, c, id)
		}}
	})
}

// selectRow reads one row back with its text columns as strings.
func selectRow(ctx context.Context, u *Upserter, c remote.Collection, id string) (map[string]string, error) {
	rows, err := u.DB().QueryContext(ctx, "SELECT * FROM "+c.Table()+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	cols := map[string]string{}
	for i, name := range names {
		switch v := values[i].(type) {
		case string:
			cols[name] = v
		case []byte:
			cols[name] = string(v)
		}
	}
	return cols, nil
}

func TestUpsertStatement(t *testing.T) {
	stmt := UpsertStatement("goals", []remote.Field{{Name: "id"}, {Name: "name"}, {Name: "target"}})
	assert.Equal(t,
		"INSERT INTO goals (id, name, target) VALUES (?, ?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name, target = excluded.target",
		stmt)
}

func TestUpsert_OverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	u := openTemp(t)
	owner := remote.Owner{UserID: "u", UnitID: "x"}

	row := &remote.BudgetRow{ID: "b1", UserID: "u", UnitID: "x", Name: "Food", Limit: decimal.RequireFromString("300.10")}
	require.NoError(t, u.Upsert(ctx, remote.CollectionBudgets, []remote.Record{row}, owner))

	row.Limit = decimal.RequireFromString("450")
	require.NoError(t, u.Upsert(ctx, remote.CollectionBudgets, []remote.Record{row}, owner))

	n, err := u.Count(ctx, remote.CollectionBudgets)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var limit string
	require.NoError(t, u.DB().QueryRowContext(ctx, "SELECT limit_amount FROM budgets WHERE id = 'b1'").Scan(&limit))
	assert.Equal(t, "450", limit)
}

func TestUpsert_NullOptionals(t *testing.T) {
	ctx := context.Background()
	u := openTemp(t)

	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	row := &remote.TransactionRow{ID: "t1", UserID: "u", UnitID: "x", Date: &date, Amount: decimal.NewFromInt(5)}
	require.NoError(t, u.Upsert(ctx, remote.CollectionTransactions, []remote.Record{row}, remote.Owner{UserID: "u", UnitID: "x"}))

	var budgetID *string
	var stored string
	require.NoError(t, u.DB().QueryRowContext(ctx, "SELECT budget_id, date FROM transactions WHERE id = 't1'").Scan(&budgetID, &stored))
	assert.Nil(t, budgetID)
	assert.Equal(t, "2024-02-01T00:00:00Z", stored)
}

const snapshotJSON = `{
  "units": [{"id": "A", "name": "Home"}, {"id": "B", "name": "Trip"}],
  "financialDataByUnit": {
    "A": {
      "transactions": [{"id": "t1", "date": "2024-01-01", "amount": 10, "type": "expense"}],
      "debts": [{"id": "d1", "totalAmount": 100, "paidAmount": 0, "installments": [{"id": "i1", "amount": 50}, {"id": "i2", "amount": 50}]}],
      "subCategories": [{"id": "s1", "name": "Bread", "plannedAmount": 20, "categoryId": "food"}],
      "userName": "Alex"
    },
    "B": {"goals": [{"id": "g1", "name": "Hotel", "target": 300}]}
  },
  "activeConversationId": "A"
}`

type rawSource string

func (s rawSource) Fetch(context.Context, string) ([]byte, error) {
	return []byte(s), nil
}

func TestMigrationEndToEnd_Idempotent(t *testing.T) {
	ctx := context.Background()
	u := openTemp(t)

	m, err := migration.New(snapshot.NewReader(rawSource(snapshotJSON)), u, migration.Options{})
	require.NoError(t, err)

	var messages []string
	for i := 0; i < 2; i++ {
		messages = nil
		report, err := m.Migrate(ctx, "user-1", func(msg string) { messages = append(messages, msg) })
		require.NoError(t, err)
		require.False(t, report.HasFailures(), "%+v", report.Failures)
	}

	want := map[remote.Collection]int{
		remote.CollectionUnits:         2,
		remote.CollectionTransactions:  1,
		remote.CollectionGoals:         1,
		remote.CollectionDebts:         1,
		remote.CollectionInstallments:  2,
		remote.CollectionSubCategories: 1,
		remote.CollectionUserProfiles:  1,
		remote.CollectionBudgets:       0,
	}
	for c, n := range want {
		got, err := u.Count(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, n, got, "collection %s", c)
	}

	var name, persona string
	require.NoError(t, u.DB().QueryRowContext(ctx, "SELECT display_name, ai_persona FROM user_profiles WHERE id = 'user-1'").Scan(&name, &persona))
	assert.Equal(t, "Alex", name)
	assert.Equal(t, "benevolent", persona)

	assert.True(t, strings.HasPrefix(messages[0], "Migrating 1 transactions for Home"))
	assert.Equal(t, migration.MessageCompleted, messages[len(messages)-1])
}
