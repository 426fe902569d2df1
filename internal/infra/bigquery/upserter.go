package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/remote"
)

// Upserter writes migration records to BigQuery. It holds a shared client to
// avoid creating a new connection for each call.
type Upserter struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewUpserter creates an Upserter with its own BigQuery client.
func NewUpserter(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*Upserter, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewUpserter: creating client: %w", err)
	}
	return NewUpserterWithClient(client, projectID, datasetID), nil
}

// NewUpserterWithClient creates an Upserter using the provided BigQuery client.
func NewUpserterWithClient(client *bigquery.Client, projectID, datasetID string) *Upserter {
	return &Upserter{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (u *Upserter) Close() error {
	if u.client != nil {
		return u.client.Close()
	}
	return nil
}

// Upsert implements remote.Upserter. Each record is merged on its id with its
// own query, so one bad row does not stop the others.
func (u *Upserter) Upsert(ctx context.Context, collection remote.Collection, records []remote.Record, owner remote.Owner) error {
	if err := owner.Validate(collection); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	log := logger.FromContext(ctx)
	table := u.tableRef(collection)
	failures := &remote.PartialFailure{Collection: collection}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("Upsert: %w", err)
		}
		if err := MergeRecordWithClient(ctx, u.client, table, r); err != nil {
			log.Debug().Err(err).Str("collection", string(collection)).Str("record_id", r.RecordID()).Msg("Merge failed")
			failures.Add(r.RecordID(), err)
		}
	}

	return failures.ErrOrNil()
}

// MergeRecordWithClient inserts or overwrites one record keyed by id.
func MergeRecordWithClient(ctx context.Context, client *bigquery.Client, table string, r remote.Record) error {
	fields := r.Fields()
	q := client.Query(BuildMergeQuery(table, fields))
	params, err := QueryParameters(fields)
	if err != nil {
		return fmt.Errorf("MergeRecordWithClient: %w", err)
	}
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("MergeRecordWithClient: running merge query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("MergeRecordWithClient: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("MergeRecordWithClient: job error: %w", err)
	}
	return nil
}

// tableRef returns the fully qualified, backtick-quoted table name.
func (u *Upserter) tableRef(c remote.Collection) string {
	return "`" + u.projectID + "." + u.datasetID + "." + c.Table() + "`"
}

var (
	_ remote.Upserter = (*Upserter)(nil)
	_ remote.Verifier = (*Upserter)(nil)
)
