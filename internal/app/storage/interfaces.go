package storage

import (
	"context"
	"errors"

	"github.com/cafizzio/ledger/internal/app/domain/catalog"
	"github.com/cafizzio/ledger/internal/app/domain/client"
)

// ErrNotFound is returned (possibly wrapped) by any lookup that misses.
var ErrNotFound = errors.New("not found")

// ErrPersistence is returned (wrapped) when durable storage cannot be read or
// written. Callers must treat the logical operation as failed; stores never
// keep a mutation the backing storage rejected.
var ErrPersistence = errors.New("persistence failure")

// CatalogStore persists products. Implementations assign IDs from a monotonic
// counter when the incoming ID is zero, and keep ListProducts in insertion
// order. Name lookups are case-insensitive.
type CatalogStore interface {
	CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	GetProductByName(ctx context.Context, name string) (catalog.Product, error)
	ListProducts(ctx context.Context) ([]catalog.Product, error)
}

// ClientStore persists clients and their purchase history. Code lookups are
// case-insensitive and match at most one client; name lookups may match
// several. A mutating call that fails MUST leave the stored state unchanged.
type ClientStore interface {
	CreateClient(ctx context.Context, c client.Client) (client.Client, error)
	UpdateClient(ctx context.Context, c client.Client) (client.Client, error)
	GetClient(ctx context.Context, id int64) (client.Client, error)
	GetClientByCode(ctx context.Context, code string) (client.Client, error)
	FindClientsByName(ctx context.Context, name string) ([]client.Client, error)
	ListClients(ctx context.Context) ([]client.Client, error)
}
