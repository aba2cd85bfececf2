package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore keeps documents as JSONB rows and fans out changes through a ChangeFeed.
// Partial updates use jsonb concatenation, which replaces top-level keys only.
type PostgresStore struct {
	db     *pgxpool.Pool
	feed   ChangeFeed
	logger *zap.Logger
	hub    *hub

	started sync.Once
	cancel  context.CancelFunc
}

func NewPostgresStore(db *pgxpool.Pool, feed ChangeFeed, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, feed: feed, logger: logger, hub: newHub()}
}

func (s *PostgresStore) ensureStarted() {
	s.started.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go func() {
			err := s.feed.Listen(ctx, s.refresh, s.resync)
			if err != nil && !errors.Is(err, context.Canceled) && s.logger != nil {
				s.logger.Error("document change feed stopped", zap.Error(err))
			}
		}()
	})
}

// refresh re-reads one document and pushes it to that key's subscribers.
func (s *PostgresStore) refresh(key Key) {
	if !s.hub.has(key) {
		return
	}
	snap, err := s.fetch(context.Background(), key)
	if err != nil {
		s.hub.broadcast(key, event{err: fmt.Errorf("load %s: %w", key, err)})
		return
	}
	s.hub.broadcast(key, event{snap: snap})
}

func (s *PostgresStore) resync() {
	for _, key := range s.hub.keys() {
		s.refresh(key)
	}
}

func (s *PostgresStore) fetch(ctx context.Context, key Key) (Snapshot, error) {
	var (
		data    []byte
		version int64
	)
	err := s.db.QueryRow(ctx, `
		select data, version from documents where collection = $1 and id = $2
	`, key.Collection, key.ID).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{Key: key}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Key: key, Exists: true, Version: version, Data: json.RawMessage(data)}, nil
}

func (s *PostgresStore) notify(ctx context.Context, key Key) {
	if err := s.feed.Publish(ctx, key); err != nil && s.logger != nil {
		s.logger.Warn("document change publish failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (s *PostgresStore) Subscribe(ctx context.Context, collection, id string, onSnapshot func(Snapshot), onError func(error)) (func(), error) {
	s.ensureStarted()
	key := Key{Collection: collection, ID: id}

	sub, unsubscribe := s.hub.subscribe(key, onSnapshot, onError)
	snap, err := s.fetch(ctx, key)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	sub.push(event{snap: snap})
	return unsubscribe, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	key := Key{Collection: collection, ID: id}

	tag, err := s.db.Exec(ctx, `
		update documents
		set data = data || $3::jsonb, version = version + 1, updated_at = now()
		where collection = $1 and id = $2
	`, collection, id, string(patch))
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.notify(ctx, key)
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	key := Key{Collection: collection, ID: uuid.NewString()}

	if _, err := s.db.Exec(ctx, `
		insert into documents (collection, id, data, version) values ($1, $2, $3::jsonb, 1)
	`, key.Collection, key.ID, string(body)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", fmt.Errorf("create %s: %w", key, ErrConflict)
		}
		return "", fmt.Errorf("create %s: %w", key, err)
	}

	s.notify(ctx, key)
	return key.ID, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	snap, err := s.fetch(ctx, Key{Collection: collection, ID: id})
	if err != nil {
		return Snapshot{}, err
	}
	if !snap.Exists {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (s *PostgresStore) FindOne(ctx context.Context, collection, field, value string) (Snapshot, error) {
	var (
		id      string
		data    []byte
		version int64
	)
	err := s.db.QueryRow(ctx, `
		select id, data, version from documents
		where collection = $1 and data->>$2 = $3
		order by created_at desc
		limit 1
	`, collection, field, value).Scan(&id, &data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Key:     Key{Collection: collection, ID: id},
		Exists:  true,
		Version: version,
		Data:    json.RawMessage(data),
	}, nil
}

func (s *PostgresStore) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.closeAll()
	return nil
}
