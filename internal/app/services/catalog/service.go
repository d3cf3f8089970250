// Package catalog manages the product catalog.
package catalog

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/cafizzio/ledger/internal/app/domain/catalog"
	"github.com/cafizzio/ledger/internal/app/storage"
	"github.com/cafizzio/ledger/pkg/logger"
)

// Service manages products and their prices.
type Service struct {
	store storage.CatalogStore
	log   *logger.Logger
}

// New constructs a catalog service.
func New(store storage.CatalogStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{store: store, log: log}
}

// AddProduct registers a new product. The name must be unique across the
// catalog since purchase carts reference products by name.
func (s *Service) AddProduct(ctx context.Context, name string, price float64) (domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("name is required")
	}
	if price < 0 {
		return domain.Product{}, fmt.Errorf("price must not be negative")
	}

	product, err := s.store.CreateProduct(ctx, domain.Product{Name: name, Price: price})
	if err != nil {
		return domain.Product{}, err
	}
	s.log.WithField("product_id", product.ID).
		WithField("name", product.Name).
		Info("product added")
	return product, nil
}

// UpdateProduct changes a product's name and price. The id is immutable; an
// unknown id surfaces a not-found error.
func (s *Service) UpdateProduct(ctx context.Context, id int64, name string, price float64) (domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("name is required")
	}
	if price < 0 {
		return domain.Product{}, fmt.Errorf("price must not be negative")
	}

	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	product.Name = name
	product.Price = price
	product, err = s.store.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.WithField("product_id", product.ID).
		WithField("name", product.Name).
		Info("product updated")
	return product, nil
}

// GetProduct retrieves a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// ListProducts returns the catalog in stored order.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.store.ListProducts(ctx)
}
