// Package docstore is the document store adapter behind group order sessions:
// whole-document snapshots pushed to subscribers, partial top-level field updates,
// and creation. Updates are last-write-wins per field; arrays are replaced, never merged.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("document store closed")
	ErrConflict = errors.New("document code already taken")
)

// CodeField is unique per collection: Create fails with ErrConflict when another
// document already carries the same non-empty code.
const CodeField = "code"

const pgUniqueViolation = "23505"


type Key struct {
	Collection string
	ID         string
}

func (k Key) String() string {
	return k.Collection + "/" + k.ID
}

// ParseKey is the inverse of Key.String.
func ParseKey(raw string) (Key, bool) {
	collection, id, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok || collection == "" || id == "" {
		return Key{}, false
	}
	return Key{Collection: collection, ID: id}, true
}

// Snapshot is the full state of one document at a committed version.
// Exists is false when the document is missing or was deleted.
type Snapshot struct {
	Key     Key
	Exists  bool
	Version int64
	Data    json.RawMessage
}

// Decode unmarshals the document body into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return ErrNotFound
	}
	if err := json.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.Key, err)
	}
	return nil
}

// Store is the contract every backend implements.
type Store interface {
	// Subscribe delivers the current snapshot and then every later committed one, in
	// commit order, until unsubscribe is called. onError reports subscription failures.
	Subscribe(ctx context.Context, collection, id string, onSnapshot func(Snapshot), onError func(error)) (unsubscribe func(), err error)
	// Update replaces only the named top-level fields.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Create inserts a new document under a generated id.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	// FindOne returns the first document whose top-level string field equals value.
	FindOne(ctx context.Context, collection, field, value string) (Snapshot, error)
	Close() error
}

func encodeFields(fields map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(fields))
	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}
