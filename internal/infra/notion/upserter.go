// Package notion mirrors migrated records into Notion databases, one database
// per collection, so they can be reviewed by hand.
package notion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/remote"
)

// ErrNoDatabase is returned when no Notion database is configured for a collection.
var ErrNoDatabase = errors.New("no notion database for collection")

// Upserter writes records as Notion pages keyed by the Record ID title.
type Upserter struct {
	service   Service
	databases map[remote.Collection]string
}

// NewUpserter creates an Upserter. databases maps collections to database ids.
func NewUpserter(service Service, databases map[remote.Collection]string) *Upserter {
	return &Upserter{service: service, databases: databases}
}

// ParseDatabases parses "collection=dbid,collection=dbid".
func ParseDatabases(spec string) (map[remote.Collection]string, error) {
	out := make(map[remote.Collection]string)
	if strings.TrimSpace(spec) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(spec, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		c := remote.Collection(strings.TrimSpace(k))
		if !ok || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("ParseDatabases: malformed entry %q", pair)
		}
		if !c.Valid() {
			return nil, fmt.Errorf("ParseDatabases: unknown collection %q", k)
		}
		out[c] = strings.TrimSpace(v)
	}
	return out, nil
}

// Upsert implements remote.Upserter. An existing page with the same Record ID
// is updated; otherwise a page is created.
func (u *Upserter) Upsert(ctx context.Context, collection remote.Collection, records []remote.Record, owner remote.Owner) error {
	if err := owner.Validate(collection); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	dbID, ok := u.databases[collection]
	if !ok {
		return fmt.Errorf("Upsert: %w: %s", ErrNoDatabase, collection)
	}

	log := logger.FromContext(ctx)
	failures := &remote.PartialFailure{Collection: collection}

	for _, r := range records {
		props := RecordToProperties(r)

		page, err := u.findPage(ctx, dbID, r.RecordID())
		if err != nil {
			failures.Add(r.RecordID(), err)
			continue
		}

		if page != nil {
			_, err = u.service.UpdatePage(ctx, string(page.ID), props)
		} else {
			_, err = u.service.CreatePage(ctx, dbID, props)
		}
		if err != nil {
			log.Warn().Err(err).Str("record_id", r.RecordID()).Msg("Failed to write Notion page")
			failures.Add(r.RecordID(), err)
		}
	}
	return failures.ErrOrNil()
}

// ExistingIDs implements remote.Verifier.
func (u *Upserter) ExistingIDs(ctx context.Context, collection remote.Collection, ids []string) (map[string]bool, error) {
	dbID, ok := u.databases[collection]
	if !ok {
		return nil, fmt.Errorf("ExistingIDs: %w: %s", ErrNoDatabase, collection)
	}

	found := make(map[string]bool, len(ids))
	for _, id := range ids {
		page, err := u.findPage(ctx, dbID, id)
		if err != nil {
			return nil, fmt.Errorf("ExistingIDs: %w", err)
		}
		if page != nil {
			found[id] = true
		}
	}
	return found, nil
}

// findPage returns the page whose Record ID equals id, or nil.
func (u *Upserter) findPage(ctx context.Context, dbID, id string) (*notionapi.Page, error) {
	resp, err := u.service.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: &notionapi.PropertyFilter{
			Property: RecordIDProperty,
			RichText: &notionapi.TextFilterCondition{Equals: id},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("findPage: %w", err)
	}
	for i := range resp.Results {
		if extractRecordID(resp.Results[i]) == id {
			return &resp.Results[i], nil
		}
	}
	return nil, nil
}

var (
	_ remote.Upserter = (*Upserter)(nil)
	_ remote.Verifier = (*Upserter)(nil)
)
