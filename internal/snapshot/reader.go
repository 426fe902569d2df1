// Package snapshot loads the locally persisted state a caller accumulated before
// signing in and decodes it into the domain graph the migration walks.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-migrator/internal/domain"
	"github.com/dvloznov/finance-migrator/internal/logger"
)

var (
	// ErrNoSnapshot is returned by a Source when the caller has no local state.
	ErrNoSnapshot = errors.New("no local snapshot")

	// ErrCorruptSnapshot means bytes exist but cannot be decoded into a Snapshot.
	// Nothing may be written remotely once this is seen.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Source fetches the raw serialized snapshot of a caller.
// It returns ErrNoSnapshot when nothing is stored for the caller.
type Source interface {
	Fetch(ctx context.Context, callerID string) ([]byte, error)
}

// Reader decodes the snapshot fetched from a Source.
type Reader struct {
	source Source
}

// NewReader creates a Reader over source.
func NewReader(source Source) *Reader {
	return &Reader{source: source}
}

// Read returns the caller's snapshot, or (nil, nil) when there is none.
// Decoding failures wrap ErrCorruptSnapshot; source failures are returned as is.
func (r *Reader) Read(ctx context.Context, callerID string) (*domain.Snapshot, error) {
	log := logger.FromContext(ctx)

	raw, err := r.source.Fetch(ctx, callerID)
	if errors.Is(err, ErrNoSnapshot) {
		log.Debug().Str("caller_id", callerID).Msg("No local snapshot")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Read: fetching snapshot: %w", err)
	}

	snap, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("caller_id", callerID).
		Int("units", len(snap.Units)).
		Int("bundles", len(snap.Bundles)).
		Msg("Snapshot loaded")
	return snap, nil
}

// Decode parses raw bytes into a Snapshot. Blank input counts as absent and
// yields (nil, nil). Only shape errors are corrupt; gaps such as a unit without
// an id decode fine and are left to the migrator.
func Decode(raw []byte) (*domain.Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return &snap, nil
}
