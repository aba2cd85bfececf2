package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
)

type pebbleRecord struct {
	Version int64                      `json:"version"`
	Fields  map[string]json.RawMessage `json:"fields"`
}

// PebbleStore is an embedded single-node document store. Commits and fan-out happen
// under one lock, so every subscriber sees updates in commit order.
type PebbleStore struct {
	db  *pebble.DB
	hub *hub

	mu     sync.Mutex
	closed bool
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db, hub: newHub()}, nil
}

// NewMemoryStore returns a PebbleStore backed by an in-memory filesystem.
func NewMemoryStore() (*PebbleStore, error) {
	db, err := pebble.Open("memdb", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db, hub: newHub()}, nil
}

func pebbleKey(k Key) []byte {
	return []byte("doc/" + k.Collection + "/" + k.ID)
}

func pebblePrefix(collection string) []byte {
	return []byte("doc/" + collection + "/")
}

// prefixEnd returns the smallest key greater than every key with the given prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (p *PebbleStore) load(k Key) (pebbleRecord, bool, error) {
	val, closer, err := p.db.Get(pebbleKey(k))
	if errors.Is(err, pebble.ErrNotFound) {
		return pebbleRecord{}, false, nil
	}
	if err != nil {
		return pebbleRecord{}, false, err
	}
	defer closer.Close()

	var rec pebbleRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return pebbleRecord{}, false, fmt.Errorf("decode %s: %w", k, err)
	}
	return rec, true, nil
}

func (p *PebbleStore) save(k Key, rec pebbleRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.db.Set(pebbleKey(k), raw, pebble.Sync)
}

func recordSnapshot(k Key, rec pebbleRecord, exists bool) (Snapshot, error) {
	if !exists {
		return Snapshot{Key: k}, nil
	}
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Key: k, Exists: true, Version: rec.Version, Data: data}, nil
}

func (p *PebbleStore) Subscribe(ctx context.Context, collection, id string, onSnapshot func(Snapshot), onError func(error)) (func(), error) {
	k := Key{Collection: collection, ID: id}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	rec, exists, err := p.load(k)
	if err != nil {
		return nil, err
	}
	snap, err := recordSnapshot(k, rec, exists)
	if err != nil {
		return nil, err
	}

	sub, unsubscribe := p.hub.subscribe(k, onSnapshot, onError)
	sub.push(event{snap: snap})
	return unsubscribe, nil
}

func (p *PebbleStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := encodeFields(fields)
	if err != nil {
		return err
	}
	k := Key{Collection: collection, ID: id}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	rec, exists, err := p.load(k)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]json.RawMessage, len(encoded))
	}
	for name, raw := range encoded {
		rec.Fields[name] = raw
	}
	rec.Version++
	if err := p.save(k, rec); err != nil {
		return fmt.Errorf("update %s: %w", k, err)
	}

	snap, err := recordSnapshot(k, rec, true)
	if err != nil {
		return err
	}
	p.hub.broadcast(k, event{snap: snap})
	return nil
}

func (p *PebbleStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	encoded, err := encodeFields(fields)
	if err != nil {
		return "", err
	}
	k := Key{Collection: collection, ID: uuid.NewString()}
	rec := pebbleRecord{Version: 1, Fields: encoded}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	// Creates are serialized by mu, so the lookup and the write cannot interleave.
	if code, ok := fields[CodeField].(string); ok && code != "" {
		_, err := p.FindOne(ctx, collection, CodeField, code)
		if err == nil {
			return "", fmt.Errorf("create %s: %w", k, ErrConflict)
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	if err := p.save(k, rec); err != nil {
		return "", fmt.Errorf("create %s: %w", k, err)
	}
	return k.ID, nil
}

// Delete removes a document and tells subscribers it is gone.
func (p *PebbleStore) Delete(ctx context.Context, collection, id string) error {
	k := Key{Collection: collection, ID: id}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.db.Delete(pebbleKey(k), pebble.Sync); err != nil {
		return fmt.Errorf("delete %s: %w", k, err)
	}
	p.hub.broadcast(k, event{snap: Snapshot{Key: k}})
	return nil
}

func (p *PebbleStore) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	k := Key{Collection: collection, ID: id}
	rec, exists, err := p.load(k)
	if err != nil {
		return Snapshot{}, err
	}
	if !exists {
		return Snapshot{}, ErrNotFound
	}
	return recordSnapshot(k, rec, true)
}

func (p *PebbleStore) FindOne(ctx context.Context, collection, field, value string) (Snapshot, error) {
	prefix := pebblePrefix(collection)
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return Snapshot{}, err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		var rec pebbleRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			continue
		}
		raw, ok := rec.Fields[field]
		if !ok {
			continue
		}
		var got string
		if err := json.Unmarshal(raw, &got); err != nil || got != value {
			continue
		}
		k := Key{Collection: collection, ID: string(it.Key()[len(prefix):])}
		return recordSnapshot(k, rec, true)
	}
	return Snapshot{}, ErrNotFound
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.hub.closeAll()
	return p.db.Close()
}
