package handlers

import (
	"context"

	"grouporder-services/internal/config"
	"grouporder-services/internal/docstore"
	"grouporder-services/internal/grouporder"

	"go.uber.org/zap"
)

// CatalogReader is the menu the API exposes and prices against.
type CatalogReader interface {
	grouporder.Catalog
	Items() []grouporder.CatalogItem
}

// ReceiptLookup finds the receipt link of a recorded order, nil until it exists.
type ReceiptLookup interface {
	ReceiptURL(ctx context.Context, sessionID string) (*string, error)
}

type Handler struct {
	Store    docstore.Store
	Logger   *zap.Logger
	Config   config.Config
	Catalog  CatalogReader
	Receipts ReceiptLookup
}
