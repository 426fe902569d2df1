package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-migrator/internal/config"
	"github.com/dvloznov/finance-migrator/internal/migration"
	"github.com/dvloznov/finance-migrator/internal/remote"
	"github.com/dvloznov/finance-migrator/internal/remote/memory"
)

const snapshotJSON = `{
  "units": [{"id": "A", "name": "Household", "status": "active"}],
  "financialDataByUnit": {
    "A": {
      "transactions": [{"id": "t1", "date": "2024-01-02", "amount": 12.5, "label": "Bread", "type": "expense", "category": "food"}]
    }
  }
}`

func TestBuild_FileSourceMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user-1.json"), []byte(snapshotJSON), 0o600))

	cfg := &config.Config{
		SnapshotSource:  config.SourceFile,
		SnapshotDir:     dir,
		RemoteBackend:   config.BackendMemory,
		UnitConcurrency: 1,
	}

	stack, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer stack.Close()

	report, err := stack.Migrator.Migrate(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Equal(t, 1, report.Written[remote.CollectionTransactions])

	mem := stack.Remote.Upserter.(*memory.Upserter)
	assert.Equal(t, 1, mem.Count(remote.CollectionUnits))
}

func TestBuild_SQLiteEverywhere(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		SnapshotSource:     config.SourceSQLite,
		SnapshotSQLitePath: filepath.Join(dir, "device.db"),
		SnapshotSQLiteKey:  "finance-app-state",
		RemoteBackend:      config.BackendSQLite,
		RemoteSQLitePath:   filepath.Join(dir, "remote.db"),
		UnitConcurrency:    2,
	}

	stack, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer stack.Close()

	report, err := stack.Migrator.Migrate(context.Background(), "nobody", nil)
	require.NoError(t, err)
	assert.True(t, report.NoData)
	require.NotNil(t, stack.Remote.Verifier)
}

func TestOpenRemote_Unsupported(t *testing.T) {
	_, err := OpenRemote(context.Background(), &config.Config{RemoteBackend: "postgres"})
	assert.Error(t, err)

	_, _, err = OpenSource(context.Background(), &config.Config{SnapshotSource: "s3"})
	assert.Error(t, err)
}

func TestOpenRemote_NotionRejectsBadDatabases(t *testing.T) {
	_, err := OpenRemote(context.Background(), &config.Config{
		RemoteBackend:   config.BackendNotion,
		NotionToken:     "secret",
		NotionDatabases: "wallets=abc",
	})
	assert.Error(t, err)
}

func TestBuild_RecorderReceivesOutcome(t *testing.T) {
	cfg := &config.Config{
		SnapshotSource:  config.SourceFile,
		SnapshotDir:     t.TempDir(),
		RemoteBackend:   config.BackendMemory,
		UnitConcurrency: 1,
	}
	rec := &outcomeRecorder{}
	stack, err := Build(context.Background(), cfg, rec)
	require.NoError(t, err)
	defer stack.Close()

	_, err = stack.Migrator.Migrate(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, migration.OutcomeNoData, rec.outcome)
}

type outcomeRecorder struct{ outcome string }

func (r *outcomeRecorder) RunFinished(outcome string, _ time.Duration) { r.outcome = outcome }
func (r *outcomeRecorder) RecordsWritten(remote.Collection, int) {}
func (r *outcomeRecorder) RecordFailures(remote.Collection, string, int) {}
func (r *outcomeRecorder) UnitSkipped() {}
