package dynamodb

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-migrator/internal/remote"
)

// ItemFromRecord converts a record to a DynamoDB item. Amounts are stored as
// numbers with their exact decimal text; absent optionals as NULL.
func ItemFromRecord(r remote.Record) (map[string]types.AttributeValue, error) {
	if r.RecordID() == "" {
		return nil, fmt.Errorf("ItemFromRecord: record has no id")
	}

	item := make(map[string]types.AttributeValue)
	for _, f := range r.Fields() {
		av, err := attributeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("ItemFromRecord: field %s: %w", f.Name, err)
		}
		item[f.Name] = av
	}
	return item, nil
}

func attributeValue(v any) (types.AttributeValue, error) {
	switch v := v.(type) {
	case decimal.Decimal:
		return &types.AttributeValueMemberN{Value: v.String()}, nil
	case time.Time:
		return &types.AttributeValueMemberS{Value: v.UTC().Format(time.RFC3339Nano)}, nil
	case *time.Time:
		if v == nil {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		return &types.AttributeValueMemberS{Value: v.UTC().Format(time.RFC3339Nano)}, nil
	case string, *string, bool:
		// attributevalue encodes nil pointers as NULL.
		return attributevalue.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
