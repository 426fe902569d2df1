package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/remote"
)

// maxGetBatchSize is the BatchGetItem limit.
const maxGetBatchSize = 100

type keyItem struct {
	ID string `dynamodbav:"id"`
}

// ExistingIDs implements remote.Verifier.
func (u *Upserter) ExistingIDs(ctx context.Context, collection remote.Collection, ids []string) (map[string]bool, error) {
	table := u.TableName(collection)
	found := make(map[string]bool, len(ids))

	for start := 0; start < len(ids); start += maxGetBatchSize {
		end := min(start+maxGetBatchSize, len(ids))

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			key, err := attributevalue.MarshalMap(keyItem{ID: id})
			if err != nil {
				return nil, fmt.Errorf("ExistingIDs: marshalling key: %w", err)
			}
			keys = append(keys, key)
		}

		request := map[string]types.KeysAndAttributes{
			table: {Keys: keys, ProjectionExpression: aws.String(remote.ColumnID)},
		}
		for len(request) > 0 {
			out, err := u.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("ExistingIDs: reading %s: %w", table, err)
			}

			var items []keyItem
			if err := attributevalue.UnmarshalListOfMaps(out.Responses[table], &items); err != nil {
				return nil, fmt.Errorf("ExistingIDs: unmarshalling: %w", err)
			}
			for _, it := range items {
				found[it.ID] = true
			}
			request = out.UnprocessedKeys
		}
	}
	return found, nil
}

// EnsureTables creates a pay-per-request table for every collection that does not exist yet.
func (u *Upserter) EnsureTables(ctx context.Context) error {
	log := logger.FromContext(ctx)

	for _, c := range remote.AllCollections {
		table := u.TableName(c)
		_, err := u.client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(table),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(remote.ColumnID), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(remote.ColumnID), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		})

		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			continue
		}
		if err != nil {
			return fmt.Errorf("EnsureTables: creating %s: %w", table, err)
		}
		log.Info().Str("table", table).Msg("Created DynamoDB table")
	}
	return nil
}
