package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListenConn struct {
	mu            sync.Mutex
	notifications []*pgconn.Notification
	execErr       error
	waitErr       error
	onFail        func()
	execs         []string
	discarded     int
}

func (c *fakeListenConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, sql)
	if c.execErr != nil && c.onFail != nil {
		c.onFail()
	}
	return pgconn.CommandTag{}, c.execErr
}

func (c *fakeListenConn) WaitForNotification(context.Context) (*pgconn.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.notifications) > 0 {
		n := c.notifications[0]
		c.notifications = c.notifications[1:]
		return n, nil
	}
	if c.onFail != nil {
		c.onFail()
	}
	return nil, c.waitErr
}

func (c *fakeListenConn) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discarded++
}

func TestPGFeedDiscardsBrokenListenConn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &fakeListenConn{
		notifications: []*pgconn.Notification{
			{Channel: pgChannel, Payload: "group_orders/abc"},
			{Channel: pgChannel, Payload: "garbage"},
		},
		waitErr: errors.New("conn reset"),
		onFail:  cancel,
	}
	f := &PGFeed{acquire: func(context.Context) (listenConn, error) { return conn, nil }}

	var (
		keys    []Key
		resyncs int
	)
	err := f.Listen(ctx, func(k Key) { keys = append(keys, k) }, func() { resyncs++ })
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []Key{{Collection: "group_orders", ID: "abc"}}, keys)
	assert.Equal(t, 1, resyncs)
	require.Len(t, conn.execs, 1)
	assert.Equal(t, "listen "+pgChannel, conn.execs[0])
	assert.Equal(t, 1, conn.discarded)
}

func TestPGFeedDiscardsConnWhenListenFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &fakeListenConn{execErr: errors.New("permission denied"), onFail: cancel}
	f := &PGFeed{acquire: func(context.Context) (listenConn, error) { return conn, nil }}

	err := f.Listen(ctx, func(Key) { t.Fatal("unexpected notification") }, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, conn.discarded)
}
