package bigquery

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-migrator/internal/remote"
)

// dateColumns are stored as DATE rather than TIMESTAMP.
var dateColumns = map[string]bool{
	"date":          true,
	"reset_date":    true,
	"target_date":   true,
	"next_due_date": true,
	"due_date":      true,
}

// BuildMergeQuery returns a MERGE statement that writes one row keyed on id.
// Every field is bound as a named parameter of the same name.
func BuildMergeQuery(table string, fields []remote.Field) string {
	var (
		selects []string
		sets    []string
		cols    []string
		vals    []string
	)
	for _, f := range fields {
		selects = append(selects, fmt.Sprintf("@%s AS %s", f.Name, f.Name))
		cols = append(cols, f.Name)
		vals = append(vals, "S."+f.Name)
		if f.Name != remote.ColumnID {
			sets = append(sets, fmt.Sprintf("%s = S.%s", f.Name, f.Name))
		}
	}

	return `
		MERGE ` + table + ` T
		USING (SELECT ` + strings.Join(selects, ", ") + `) S
		ON T.` + remote.ColumnID + ` = S.` + remote.ColumnID + `
		WHEN MATCHED THEN
			UPDATE SET ` + strings.Join(sets, ", ") + `
		WHEN NOT MATCHED THEN
			INSERT (` + strings.Join(cols, ", ") + `)
			VALUES (` + strings.Join(vals, ", ") + `)
	`
}

// QueryParameters converts record fields to typed BigQuery parameters. Absent
// optional values become typed NULLs so the MERGE still type-checks.
func QueryParameters(fields []remote.Field) ([]bigquery.QueryParameter, error) {
	params := make([]bigquery.QueryParameter, 0, len(fields))
	for _, f := range fields {
		v, err := paramValue(f)
		if err != nil {
			return nil, err
		}
		params = append(params, bigquery.QueryParameter{Name: f.Name, Value: v})
	}
	return params, nil
}

func paramValue(f remote.Field) (interface{}, error) {
	switch v := f.Value.(type) {
	case string:
		return v, nil
	case *string:
		if v == nil {
			return bigquery.NullString{}, nil
		}
		return bigquery.NullString{StringVal: *v, Valid: true}, nil
	case bool:
		return v, nil
	case decimal.Decimal:
		// NUMERIC holds 9 fractional digits.
		return v.Round(9).Rat(), nil
	case time.Time:
		if dateColumns[f.Name] {
			return civil.DateOf(v), nil
		}
		return v, nil
	case *time.Time:
		if dateColumns[f.Name] {
			if v == nil {
				return bigquery.NullDate{}, nil
			}
			return bigquery.NullDate{Date: civil.DateOf(*v), Valid: true}, nil
		}
		if v == nil {
			return bigquery.NullTimestamp{}, nil
		}
		return bigquery.NullTimestamp{Timestamp: *v, Valid: true}, nil
	default:
		return nil, fmt.Errorf("field %s: unsupported value type %T", f.Name, f.Value)
	}
}

// fieldType maps a record value to its column type.
func fieldType(f remote.Field) (bigquery.FieldType, error) {
	switch f.Value.(type) {
	case string, *string:
		return bigquery.StringFieldType, nil
	case bool:
		return bigquery.BooleanFieldType, nil
	case decimal.Decimal:
		return bigquery.NumericFieldType, nil
	case time.Time, *time.Time:
		if dateColumns[f.Name] {
			return bigquery.DateFieldType, nil
		}
		return bigquery.TimestampFieldType, nil
	default:
		return "", fmt.Errorf("field %s: unsupported value type %T", f.Name, f.Value)
	}
}
