// Package backend builds the snapshot source, the remote store and the
// migrator from configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-migrator/internal/config"
	infraBQ "github.com/dvloznov/finance-migrator/internal/infra/bigquery"
	infraDynamo "github.com/dvloznov/finance-migrator/internal/infra/dynamodb"
	"github.com/dvloznov/finance-migrator/internal/infra/notion"
	infraSQLite "github.com/dvloznov/finance-migrator/internal/infra/sqlite"
	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/migration"
	"github.com/dvloznov/finance-migrator/internal/remote"
	"github.com/dvloznov/finance-migrator/internal/remote/memory"
	"github.com/dvloznov/finance-migrator/internal/snapshot"
)

// CleanupFunc releases resources opened by the factory.
type CleanupFunc func() error

func noCleanup() error { return nil }

// Remote is an opened remote store. Verifier is nil when the backend cannot list ids.
type Remote struct {
	Upserter remote.Upserter
	Verifier remote.Verifier
	Cleanup  CleanupFunc
}

// tableEnsurer is implemented by backends that can create their tables.
type tableEnsurer interface {
	EnsureTables(ctx context.Context) error
}

// OpenSource opens the configured snapshot source.
func OpenSource(ctx context.Context, cfg *config.Config) (snapshot.Source, CleanupFunc, error) {
	switch cfg.SnapshotSource {
	case config.SourceFile:
		return snapshot.NewFileSource(cfg.SnapshotDir), noCleanup, nil
	case config.SourceGCS:
		src, err := snapshot.NewGCSSource(ctx, cfg.SnapshotBucket, cfg.SnapshotPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenSource: %w", err)
		}
		return src, src.Close, nil
	case config.SourceSQLite:
		src, err := snapshot.OpenSQLiteSource(cfg.SnapshotSQLitePath, cfg.SnapshotSQLiteKey)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenSource: %w", err)
		}
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("OpenSource: unsupported snapshot source %q", cfg.SnapshotSource)
	}
}

// OpenRemote opens the configured remote store, creating its tables first when
// cfg.EnsureTables is set.
func OpenRemote(ctx context.Context, cfg *config.Config) (*Remote, error) {
	log := logger.FromContext(ctx)

	var r *Remote
	switch cfg.RemoteBackend {
	case config.BackendBigQuery:
		u, err := infraBQ.NewUpserter(ctx, cfg.GCPProjectID, cfg.BQDataset)
		if err != nil {
			return nil, fmt.Errorf("OpenRemote: %w", err)
		}
		r = &Remote{Upserter: u, Verifier: u, Cleanup: u.Close}
	case config.BackendDynamoDB:
		u, err := infraDynamo.NewUpserter(ctx, infraDynamo.Config{
			Region:      cfg.DynamoDBRegion,
			Endpoint:    cfg.DynamoDBEndpoint,
			TablePrefix: cfg.DynamoDBTablePrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("OpenRemote: %w", err)
		}
		r = &Remote{Upserter: u, Verifier: u, Cleanup: noCleanup}
	case config.BackendSQLite:
		u, err := infraSQLite.Open(cfg.RemoteSQLitePath)
		if err != nil {
			return nil, fmt.Errorf("OpenRemote: %w", err)
		}
		r = &Remote{Upserter: u, Verifier: u, Cleanup: u.Close}
	case config.BackendNotion:
		dbs, err := notion.ParseDatabases(cfg.NotionDatabases)
		if err != nil {
			return nil, fmt.Errorf("OpenRemote: %w", err)
		}
		u := notion.NewUpserter(notion.NewClient(cfg.NotionToken), dbs)
		r = &Remote{Upserter: u, Verifier: u, Cleanup: noCleanup}
	case config.BackendMemory:
		u := memory.New()
		r = &Remote{Upserter: u, Verifier: u, Cleanup: noCleanup}
	default:
		return nil, fmt.Errorf("OpenRemote: unsupported remote backend %q", cfg.RemoteBackend)
	}

	if cfg.EnsureTables {
		if e, ok := r.Upserter.(tableEnsurer); ok {
			if err := e.EnsureTables(ctx); err != nil {
				_ = r.Cleanup()
				return nil, fmt.Errorf("OpenRemote: ensuring tables: %w", err)
			}
			log.Info().Str("backend", cfg.RemoteBackend).Msg("Remote tables ensured")
		}
	}

	log.Info().Str("backend", cfg.RemoteBackend).Msg("Initialized remote backend")
	return r, nil
}

// Stack is everything a migration run needs.
type Stack struct {
	Migrator *migration.Migrator
	Reader   *snapshot.Reader
	Remote   *Remote
	cleanups []CleanupFunc
}

// Close releases the source and the remote store.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		if err := s.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build opens the source and the remote store and wires a Migrator over them.
// recorder may be nil.
func Build(ctx context.Context, cfg *config.Config, recorder migration.Recorder) (*Stack, error) {
	src, closeSrc, err := OpenSource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	r, err := OpenRemote(ctx, cfg)
	if err != nil {
		_ = closeSrc()
		return nil, fmt.Errorf("Build: %w", err)
	}

	stack := &Stack{
		Reader:   snapshot.NewReader(src),
		Remote:   r,
		cleanups: []CleanupFunc{closeSrc, r.Cleanup},
	}

	stack.Migrator, err = migration.New(stack.Reader, r.Upserter, migration.Options{
		UnitConcurrency: cfg.UnitConcurrency,
		Recorder:        recorder,
	})
	if err != nil {
		_ = stack.Close()
		return nil, fmt.Errorf("Build: %w", err)
	}
	return stack, nil
}
