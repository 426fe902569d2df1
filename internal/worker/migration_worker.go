// Package worker runs migrations requested over AMQP and streams their progress back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-migrator/internal/amqp"
	"github.com/dvloznov/finance-migrator/internal/jobs"
	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/migration"
)

// ProgressPublisher sends progress messages to whoever asked for the migration.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *amqp.MigrationProgressMessage) error
}

// MigrationWorker handles MigrationRequestMessages.
type MigrationWorker struct {
	migrator  jobs.Migrator
	publisher ProgressPublisher
	timeout   time.Duration
	now       func() time.Time
}

// NewMigrationWorker creates a MigrationWorker. A positive timeout bounds each run.
func NewMigrationWorker(migrator jobs.Migrator, publisher ProgressPublisher, timeout time.Duration) *MigrationWorker {
	return &MigrationWorker{
		migrator:  migrator,
		publisher: publisher,
		timeout:   timeout,
		now:       time.Now,
	}
}

// HandleMigrationRequest runs one migration. Each progress line is published in
// order, followed by a final message with Done set. A corrupt snapshot is
// rejected so the broker does not redeliver it; other aborts are requeued.
func (w *MigrationWorker) HandleMigrationRequest(ctx context.Context, msg *amqp.MigrationRequestMessage) error {
	log := logger.FromContext(ctx).With().Str("caller_id", msg.CallerID).Logger()
	ctx = logger.WithContext(ctx, log)

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	seq := 0
	publish := func(m *amqp.MigrationProgressMessage) {
		seq++
		m.CallerID = msg.CallerID
		m.Seq = seq
		m.Time = w.now().UTC()
		if err := w.publisher.PublishProgress(ctx, m); err != nil {
			// Progress is informational; the migration carries on.
			log.Warn().Err(err).Int("seq", m.Seq).Msg("Failed to publish progress")
		}
	}

	report, err := w.migrator.Migrate(ctx, msg.CallerID, func(line string) {
		publish(&amqp.MigrationProgressMessage{Message: line})
	})
	if err != nil {
		publish(&amqp.MigrationProgressMessage{Done: true, Error: err.Error()})
		if errors.Is(err, migration.ErrCorruptSnapshot) {
			return fmt.Errorf("%w: %w", amqp.ErrRejected, err)
		}
		return err
	}

	final := &amqp.MigrationProgressMessage{Done: true, Failures: len(report.Failures)}
	if report.NoData {
		final.Message = migration.MessageNoData
	} else {
		final.Message = migration.MessageCompleted
	}
	publish(final)

	log.Info().
		Int("written", report.TotalWritten()).
		Int("failures", len(report.Failures)).
		Msg("Migration request handled")
	return nil
}
