package notion

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-migrator/internal/remote"
)

// RecordIDProperty is the title property every migration database keys on.
const RecordIDProperty = "Record ID"

// PropertyName maps a column name to the Notion property name, e.g.
// "next_due_date" becomes "Next Due Date" and "budget_id" becomes "Budget ID".
func PropertyName(column string) string {
	if column == remote.ColumnID {
		return RecordIDProperty
	}
	parts := strings.Split(column, "_")
	for i, p := range parts {
		switch p {
		case "id":
			parts[i] = "ID"
		case "ai":
			parts[i] = "AI"
		default:
			if p != "" {
				parts[i] = strings.ToUpper(p[:1]) + p[1:]
			}
		}
	}
	return strings.Join(parts, " ")
}

// RecordToProperties converts a record to Notion page properties. Absent
// optionals are omitted so an update never blanks a value set by hand.
func RecordToProperties(r remote.Record) notionapi.Properties {
	props := notionapi.Properties{}
	for _, f := range r.Fields() {
		name := PropertyName(f.Name)
		if f.Name == remote.ColumnID {
			props[name] = notionapi.TitleProperty{Title: richText(r.RecordID())}
			continue
		}

		switch v := f.Value.(type) {
		case string:
			if v != "" {
				props[name] = notionapi.RichTextProperty{RichText: richText(v)}
			}
		case *string:
			if v != nil {
				props[name] = notionapi.RichTextProperty{RichText: richText(*v)}
			}
		case bool:
			props[name] = notionapi.CheckboxProperty{Checkbox: v}
		case decimal.Decimal:
			// Notion numbers are float64.
			props[name] = notionapi.NumberProperty{Number: v.InexactFloat64()}
		case time.Time:
			props[name] = dateProperty(v)
		case *time.Time:
			if v != nil {
				props[name] = dateProperty(*v)
			}
		}
	}
	return props
}

// extractRecordID reads the Record ID title of a page.
func extractRecordID(page notionapi.Page) string {
	if prop, ok := page.Properties[RecordIDProperty]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok && len(title.Title) > 0 {
			return title.Title[0].PlainText
		}
	}
	return ""
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

func dateProperty(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t.UTC())
	return notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
}
