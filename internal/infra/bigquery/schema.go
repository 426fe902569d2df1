package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/remote"
)

// SchemaFor derives the table schema of a collection from its row type. Only
// id is required; foreign keys are nullable so partial migrations stay loadable.
func SchemaFor(c remote.Collection) (bigquery.Schema, error) {
	row := remote.NewRow(c)
	if row == nil {
		return nil, fmt.Errorf("SchemaFor: unknown collection %q", c)
	}

	var schema bigquery.Schema
	for _, f := range row.Fields() {
		t, err := fieldType(f)
		if err != nil {
			return nil, fmt.Errorf("SchemaFor %s: %w", c, err)
		}
		fs := &bigquery.FieldSchema{Name: f.Name, Type: t, Required: f.Name == remote.ColumnID}
		if t == bigquery.NumericFieldType {
			fs.Precision = 38
			fs.Scale = 9
		}
		schema = append(schema, fs)
	}
	return schema, nil
}

// EnsureTables creates any missing table of the dataset. Existing tables are left as is.
func (u *Upserter) EnsureTables(ctx context.Context) error {
	log := logger.FromContext(ctx)
	ds := u.client.DatasetInProject(u.projectID, u.datasetID)

	for _, c := range remote.AllCollections {
		schema, err := SchemaFor(c)
		if err != nil {
			return fmt.Errorf("EnsureTables: %w", err)
		}

		err = ds.Table(c.Table()).Create(ctx, &bigquery.TableMetadata{
			Name:   c.Table(),
			Schema: schema,
		})
		if isAlreadyExists(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("EnsureTables: creating %s: %w", c.Table(), err)
		}
		log.Info().Str("table", c.Table()).Msg("Created BigQuery table")
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
