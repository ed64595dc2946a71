// Package credstore persists exactly one token bundle so a session survives restarts.
package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/darmiel/taskdeck/internal/bundle"
)

// RecordName is the key of the single record holding the session.
const RecordName = "taskdeck.session"

// Store is the durable copy of the current bundle.
type Store interface {
	// Persist writes the full bundle, overwriting any prior record.
	Persist(ctx context.Context, b *bundle.TokenBundle) error

	// Load returns the persisted bundle.
	// An absent record, or one that cannot be decoded, yields (nil, nil).
	// Errors are only returned if the storage itself could not be read.
	Load(ctx context.Context) (*bundle.TokenBundle, error)

	// Clear removes the record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

func encodeRecord(b *bundle.TokenBundle) ([]byte, error) {
	if err := b.Check(); err != nil {
		return nil, fmt.Errorf("refusing to persist: %w", err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

// decodeRecord never fails: malformed or foreign records are reported as absent.
func decodeRecord(data []byte) *bundle.TokenBundle {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	b, err := bundle.Decode(raw, time.Now())
	if err != nil {
		return nil
	}
	return b
}
