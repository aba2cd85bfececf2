package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`create table if not exists documents (
		collection text not null,
		id text not null,
		data jsonb not null default '{}'::jsonb,
		version bigint not null default 1,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now(),
		primary key (collection, id)
	)`,
	`drop index if exists documents_code_idx`,
	`create unique index if not exists documents_code_key on documents (collection, (data->>'code')) where data ? 'code'`,
	`create table if not exists menu_items (
		id text primary key,
		name text not null,
		price numeric(12,2) not null,
		is_active boolean not null default true,
		track_stock boolean not null default false,
		stock_qty integer,
		sort_order integer not null default 0,
		deleted_at timestamptz
	)`,
	`create table if not exists orders (
		id bigserial primary key,
		group_session_id text not null unique,
		group_code text not null,
		owner_id text not null,
		total_amount bigint not null,
		payload jsonb not null,
		receipt_url text,
		placed_at timestamptz not null,
		created_at timestamptz not null default now()
	)`,
}

// Migrate creates the tables this service owns. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
