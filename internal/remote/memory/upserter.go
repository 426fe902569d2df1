// Package memory provides an in-memory remote.Upserter. It records every call in
// order and can be told to fail whole calls or single records, which makes it the
// test double for the migration engine and the backend for dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/finance-migrator/internal/remote"
)

// Call is one Upsert invocation as observed by the store.
type Call struct {
	Collection remote.Collection
	Owner      remote.Owner
	RecordIDs  []string
}

// Stored is a record together with the owner keys it was written under.
type Stored struct {
	Record remote.Record
	Owner  remote.Owner
}

// Upserter is a concurrency-safe, in-memory remote store.
type Upserter struct {
	// CallErrFunc, when set, is consulted before a call is applied. A non-nil
	// result fails the whole call and nothing is written.
	CallErrFunc func(collection remote.Collection, owner remote.Owner, records []remote.Record) error

	// RecordErrFunc, when set, is consulted per record. A non-nil result marks
	// that record as failed; the rest of the batch is still written.
	RecordErrFunc func(collection remote.Collection, record remote.Record) error

	mu    sync.Mutex
	calls []Call
	data  map[remote.Collection]map[string]Stored
}

// New creates an empty store.
func New() *Upserter {
	return &Upserter{
		data: make(map[remote.Collection]map[string]Stored),
	}
}

// Upsert implements remote.Upserter.
func (u *Upserter) Upsert(ctx context.Context, collection remote.Collection, records []remote.Record, owner remote.Owner) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.RecordID())
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	u.calls = append(u.calls, Call{Collection: collection, Owner: owner, RecordIDs: ids})

	if err := owner.Validate(collection); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	if u.CallErrFunc != nil {
		if err := u.CallErrFunc(collection, owner, records); err != nil {
			return err
		}
	}

	if u.data == nil {
		u.data = make(map[remote.Collection]map[string]Stored)
	}
	table, ok := u.data[collection]
	if !ok {
		table = make(map[string]Stored)
		u.data[collection] = table
	}

	failures := &remote.PartialFailure{Collection: collection}
	for _, r := range records {
		if u.RecordErrFunc != nil {
			if err := u.RecordErrFunc(collection, r); err != nil {
				failures.Add(r.RecordID(), err)
				continue
			}
		}
		table[r.RecordID()] = Stored{Record: r, Owner: owner}
	}

	return failures.ErrOrNil()
}

// ExistingIDs implements remote.Verifier.
func (u *Upserter) ExistingIDs(ctx context.Context, collection remote.Collection, ids []string) (map[string]bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	found := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := u.data[collection][id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

// Calls returns a copy of the call log in invocation order.
func (u *Upserter) Calls() []Call {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]Call, len(u.calls))
	copy(out, u.calls)
	return out
}

// CallsFor returns the calls made against one collection.
func (u *Upserter) CallsFor(collection remote.Collection) []Call {
	var out []Call
	for _, c := range u.Calls() {
		if c.Collection == collection {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the stored record for id, if any.
func (u *Upserter) Get(collection remote.Collection, id string) (Stored, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	s, ok := u.data[collection][id]
	return s, ok
}

// Count returns the number of distinct records stored in collection.
func (u *Upserter) Count(collection remote.Collection) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.data[collection])
}

// Snapshot returns the stored ids per collection, sorted.
func (u *Upserter) Snapshot() map[remote.Collection][]string {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[remote.Collection][]string, len(u.data))
	for c, table := range u.data {
		for id := range table {
			out[c] = append(out[c], id)
		}
		sort.Strings(out[c])
	}
	return out
}

var (
	_ remote.Upserter = (*Upserter)(nil)
	_ remote.Verifier = (*Upserter)(nil)
)
