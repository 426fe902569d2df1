// Package dynamodb stores migration records in DynamoDB, one table per
// collection, keyed by the record id.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/remote"
)

// maxBatchSize is the BatchWriteItem limit.
const maxBatchSize = 25

// API is the subset of the DynamoDB client the upserter uses.
type API interface {
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Config selects the region, an optional endpoint (DynamoDB Local) and a table
// name prefix.
type Config struct {
	Region      string
	Endpoint    string
	TablePrefix string
	// MaxRetries bounds how often unprocessed items are resubmitted.
	MaxRetries int
}

// Upserter writes records with PutItem semantics: a put on an existing key
// replaces the item.
type Upserter struct {
	client     API
	prefix     string
	maxRetries int
	backoff    time.Duration
}

// NewUpserter loads the default AWS configuration and creates a client.
func NewUpserter(ctx context.Context, cfg Config) (*Upserter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("NewUpserter: loading AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewUpserterWithClient(client, cfg), nil
}

// NewUpserterWithClient creates an Upserter over an existing client.
func NewUpserterWithClient(client API, cfg Config) *Upserter {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Upserter{
		client:     client,
		prefix:     cfg.TablePrefix,
		maxRetries: retries,
		backoff:    100 * time.Millisecond,
	}
}

// TableName returns the DynamoDB table that holds collection.
func (u *Upserter) TableName(c remote.Collection) string {
	return u.prefix + c.Table()
}

// Upsert implements remote.Upserter. Items DynamoDB leaves unprocessed after
// the retries are reported as a PartialFailure.
func (u *Upserter) Upsert(ctx context.Context, collection remote.Collection, records []remote.Record, owner remote.Owner) error {
	if err := owner.Validate(collection); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	table := u.TableName(collection)
	failures := &remote.PartialFailure{Collection: collection}
	written := 0
	records = lastByID(records)

	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		chunk := records[start:end]

		requests := make([]types.WriteRequest, 0, len(chunk))
		for _, r := range chunk {
			item, err := ItemFromRecord(r)
			if err != nil {
				failures.Add(r.RecordID(), err)
				continue
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}
		if len(requests) == 0 {
			continue
		}

		unprocessed, err := u.writeBatch(ctx, table, requests)
		if err != nil {
			if written == 0 && len(failures.Failures) == 0 {
				return fmt.Errorf("Upsert: writing %s: %w", table, err)
			}
			for _, req := range requests {
				failures.Add(itemID(req), err)
			}
			continue
		}
		for _, req := range unprocessed {
			failures.Add(itemID(req), errUnprocessed)
		}
		written += len(requests) - len(unprocessed)
	}

	if len(failures.Failures) > 0 {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("table", table).
			Int("failed", len(failures.Failures)).
			Msg("DynamoDB did not accept every item")
	}
	return failures.ErrOrNil()
}

var errUnprocessed = errors.New("item left unprocessed by DynamoDB")

// writeBatch submits requests and resubmits unprocessed items with a linear
// backoff. It returns whatever is still unprocessed at the end.
func (u *Upserter) writeBatch(ctx context.Context, table string, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	pending := map[string][]types.WriteRequest{table: requests}

	for attempt := 0; ; attempt++ {
		out, err := u.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return nil, err
		}
		pending = out.UnprocessedItems
		if len(pending[table]) == 0 {
			return nil, nil
		}
		if attempt >= u.maxRetries {
			return pending[table], nil
		}

		select {
		case <-ctx.Done():
			return pending[table], nil
		case <-time.After(time.Duration(attempt+1) * u.backoff):
		}
	}
}

// lastByID drops every record whose id appears again later in records.
// BatchWriteItem rejects a request that repeats a key.
func lastByID(records []remote.Record) []remote.Record {
	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.RecordID()] = i
	}
	if len(last) == len(records) {
		return records
	}
	out := make([]remote.Record, 0, len(last))
	for i, r := range records {
		if last[r.RecordID()] == i {
			out = append(out, r)
		}
	}
	return out
}

func itemID(req types.WriteRequest) string {
	if req.PutRequest == nil {
		return ""
	}
	if s, ok := req.PutRequest.Item[remote.ColumnID].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

var (
	_ remote.Upserter = (*Upserter)(nil)
	_ remote.Verifier = (*Upserter)(nil)
)
