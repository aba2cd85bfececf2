package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ChangeFeed carries "document changed" notifications between service instances.
// Notifications carry only the key; listeners re-read the document.
type ChangeFeed interface {
	Publish(ctx context.Context, key Key) error
	// Listen blocks until ctx is done. onResync runs whenever notifications may
	// have been missed, e.g. after a reconnect.
	Listen(ctx context.Context, onChange func(Key), onResync func()) error
}

const pgChannel = "document_updates"

// listenConn is the slice of a pooled connection the LISTEN loop needs.
type listenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	// Discard closes the connection so a listening session never returns to the pool.
	Discard()
}

type pooledListenConn struct {
	*pgxpool.Conn
}

func (c pooledListenConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.Conn.Conn().WaitForNotification(ctx)
}

func (c pooledListenConn) Discard() {
	raw := c.Conn.Hijack()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = raw.Close(ctx)
}

// PGFeed uses Postgres LISTEN/NOTIFY on a dedicated pooled connection.
type PGFeed struct {
	db      *pgxpool.Pool
	logger  *zap.Logger
	acquire func(ctx context.Context) (listenConn, error)
}

func NewPGFeed(db *pgxpool.Pool, logger *zap.Logger) *PGFeed {
	f := &PGFeed{db: db, logger: logger}
	f.acquire = func(ctx context.Context) (listenConn, error) {
		conn, err := db.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return pooledListenConn{conn}, nil
	}
	return f
}

func (f *PGFeed) Publish(ctx context.Context, key Key) error {
	_, err := f.db.Exec(ctx, `select pg_notify($1, $2)`, pgChannel, key.String())
	return err
}

func (f *PGFeed) Listen(ctx context.Context, onChange func(Key), onResync func()) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := f.acquire(ctx)
		if err != nil {
			if f.logger != nil {
				f.logger.Warn("document LISTEN acquire failed", zap.Error(err))
			}
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}

		if _, err = conn.Exec(ctx, `listen `+pgChannel); err != nil {
			conn.Discard()
			if f.logger != nil {
				f.logger.Warn("document LISTEN failed", zap.Error(err))
			}
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}

		backoff = time.Second
		if onResync != nil {
			onResync()
		}
		f.drain(ctx, conn, onChange)

		// The session is still subscribed to the channel, or broken; either way it
		// must not go back to the pool.
		conn.Discard()
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
		backoff = minDuration(backoff*2, 30*time.Second)
	}
}

// drain forwards notifications until the connection fails or ctx is done.
func (f *PGFeed) drain(ctx context.Context, conn listenConn, onChange func(Key)) {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if f.logger != nil && ctx.Err() == nil {
				f.logger.Warn("document LISTEN interrupted", zap.Error(err))
			}
			return
		}
		key, ok := ParseKey(n.Payload)
		if !ok {
			continue
		}
		onChange(key)
	}
}

// NATSFeed publishes notifications on "<prefix>.<collection>.<id>".
type NATSFeed struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSFeed(nc *nats.Conn, prefix string) *NATSFeed {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "documents"
	}
	return &NATSFeed{nc: nc, prefix: prefix}
}

func (f *NATSFeed) subject(key Key) string {
	return f.prefix + "." + key.Collection + "." + key.ID
}

func (f *NATSFeed) parseSubject(subject string) (Key, bool) {
	rest, ok := strings.CutPrefix(subject, f.prefix+".")
	if !ok {
		return Key{}, false
	}
	collection, id, ok := strings.Cut(rest, ".")
	if !ok || collection == "" || id == "" {
		return Key{}, false
	}
	return Key{Collection: collection, ID: id}, true
}

func (f *NATSFeed) Publish(ctx context.Context, key Key) error {
	return f.nc.Publish(f.subject(key), nil)
}

func (f *NATSFeed) Listen(ctx context.Context, onChange func(Key), onResync func()) error {
	sub, err := f.nc.Subscribe(f.prefix+".>", func(msg *nats.Msg) {
		if key, ok := f.parseSubject(msg.Subject); ok {
			onChange(key)
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	if onResync != nil {
		onResync()
	}
	<-ctx.Done()
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
