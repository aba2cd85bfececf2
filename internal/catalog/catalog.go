// Package catalog loads the menu the group order core prices against and keeps it
// fresh. The core only ever sees the grouporder.Catalog lookup.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"grouporder-services/internal/grouporder"
	"grouporder-services/internal/utils"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Loader fetches a complete catalog snapshot.
type Loader interface {
	Load(ctx context.Context) ([]grouporder.CatalogItem, error)
}

// PGLoader reads the menu_items table.
type PGLoader struct {
	DB *pgxpool.Pool
}

func (l PGLoader) Load(ctx context.Context) ([]grouporder.CatalogItem, error) {
	rows, err := l.DB.Query(ctx, `
		select id, name, price, is_active, track_stock, stock_qty
		from menu_items
		where deleted_at is null
		order by sort_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query menu_items: %w", err)
	}
	defer rows.Close()

	items := make([]grouporder.CatalogItem, 0)
	for rows.Next() {
		var (
			id, name   string
			price      pgtype.Numeric
			isActive   bool
			trackStock bool
			stockQty   pgtype.Int4
		)
		if err := rows.Scan(&id, &name, &price, &isActive, &trackStock, &stockQty); err != nil {
			return nil, fmt.Errorf("scan menu_items: %w", err)
		}
		items = append(items, grouporder.CatalogItem{
			ID:           id,
			Name:         name,
			Price:        utils.NumericToMinorUnits(price),
			Availability: availability(isActive, trackStock, stockQty),
		})
	}
	return items, rows.Err()
}

func availability(isActive, trackStock bool, stockQty pgtype.Int4) string {
	switch {
	case !isActive:
		return grouporder.AvailabilityUnavailable
	case trackStock && stockQty.Valid && stockQty.Int32 <= 0:
		return grouporder.AvailabilitySoldOut
	default:
		return grouporder.AvailabilityAvailable
	}
}

// FileLoader reads a JSON array of items. Prices are decimal strings or numbers in
// major units, e.g. "12.50".
type FileLoader struct {
	Path string
}

type fileItem struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Price              json.Number `json:"price"`
	AvailabilityStatus string      `json:"availabilityStatus"`
}

func (l FileLoader) Load(ctx context.Context) ([]grouporder.CatalogItem, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var entries []fileItem
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog file: %w", err)
	}

	items := make([]grouporder.CatalogItem, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		price, err := utils.ParseMinorUnits(e.Price.String())
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", e.ID, err)
		}
		status := e.AvailabilityStatus
		if status == "" {
			status = grouporder.AvailabilityAvailable
		}
		items = append(items, grouporder.CatalogItem{ID: e.ID, Name: e.Name, Price: price, Availability: status})
	}
	return items, nil
}

// Source serves the latest loaded catalog. Sessions keep a reference to the Source,
// so a refresh is visible on their next lookup.
type Source struct {
	loader  Loader
	logger  *zap.Logger
	current atomic.Pointer[grouporder.StaticCatalog]
}

func NewSource(loader Loader, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{loader: loader, logger: logger}
	s.current.Store(grouporder.NewStaticCatalog(nil))
	return s
}

func (s *Source) Lookup(id string) (grouporder.CatalogItem, bool) {
	return s.current.Load().Lookup(id)
}

func (s *Source) Items() []grouporder.CatalogItem {
	return s.current.Load().Items()
}

// Refresh replaces the catalog. On failure the previous one stays in place.
func (s *Source) Refresh(ctx context.Context) error {
	items, err := s.loader.Load(ctx)
	if err != nil {
		return err
	}
	s.current.Store(grouporder.NewStaticCatalog(items))
	s.logger.Debug("catalog refreshed", zap.Int("items", len(items)))
	return nil
}

// Run refreshes on every tick until ctx is done.
func (s *Source) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("catalog refresh failed", zap.Error(err))
			}
		}
	}
}
