package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-migrator/internal/remote"
)

// ExistingIDs implements remote.Verifier.
func (u *Upserter) ExistingIDs(ctx context.Context, collection remote.Collection, ids []string) (map[string]bool, error) {
	return ExistingIDsWithClient(ctx, u.client, u.tableRef(collection), ids)
}

// ExistingIDsWithClient returns which of ids are present in table.
func ExistingIDsWithClient(ctx context.Context, client *bigquery.Client, table string, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	q := client.Query(`
		SELECT id
		FROM ` + table + `
		WHERE id IN UNNEST(@ids)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ExistingIDsWithClient: reading query: %w", err)
	}

	for {
		var row struct {
			ID string `bigquery:"id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ExistingIDsWithClient: iterating: %w", err)
		}
		found[row.ID] = true
	}
	return found, nil
}
