// Package ledger records purchases against client credit balances.
//
// Purchase Flow:
// 1. The caller resolves the client (by code or name) and builds a cart.
// 2. Each cart line is priced from the catalog's current price.
// 3. If the total exceeds the client's credits the purchase fails whole.
// 4. Otherwise the balance is debited and one history record per line is
//    appended, all sharing the batch timestamp, then the client is persisted.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cafizzio/ledger/internal/app/domain/client"
	domain "github.com/cafizzio/ledger/internal/app/domain/ledger"
	"github.com/cafizzio/ledger/internal/app/metrics"
	"github.com/cafizzio/ledger/internal/app/storage"
	"github.com/cafizzio/ledger/pkg/logger"
)

// Epsilon is the tolerance used when comparing credit amounts.
const Epsilon = 1e-9

// InsufficientFundsError reports a purchase whose total exceeds the client's
// available credits. Nothing is mutated when it is returned.
type InsufficientFundsError struct {
	TotalCost float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: total cost %.2f, available credits %.2f", e.TotalCost, e.Available)
}

// Service executes purchases.
type Service struct {
	catalog storage.CatalogStore
	clients storage.ClientStore
	log     *logger.Logger
	now     func() time.Time
}

// New constructs a ledger service.
func New(catalog storage.CatalogStore, clients storage.ClientStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{
		catalog: catalog,
		clients: clients,
		log:     log,
		now:     time.Now,
	}
}

// Purchase debits the client's credits by the cart total and appends one
// history record per nonzero line item. The cart maps product name to
// quantity; zero-quantity lines are skipped, a name missing from the catalog
// is a hard error, and an insufficient balance fails the purchase without
// any mutation.
func (s *Service) Purchase(ctx context.Context, clientID int64, cart map[string]int) (domain.Receipt, error) {
	c, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return domain.Receipt{}, err
	}

	lines, total, err := s.priceCart(ctx, cart)
	if err != nil {
		metrics.RecordPurchase("rejected")
		return domain.Receipt{}, err
	}

	if c.Credits+Epsilon < total {
		metrics.RecordPurchase("insufficient_funds")
		return domain.Receipt{}, &InsufficientFundsError{TotalCost: total, Available: c.Credits}
	}

	timestamp := s.now().Format(client.TimestampLayout)
	for i := range lines {
		lines[i].ID = uuid.NewString()
		lines[i].Timestamp = timestamp
	}

	c.Credits -= total
	c.History = append(c.History, lines...)

	updated, err := s.clients.UpdateClient(ctx, c)
	if err != nil {
		metrics.RecordPurchase("persist_failed")
		return domain.Receipt{}, fmt.Errorf("persist purchase: %w", err)
	}

	metrics.RecordPurchase("completed")
	s.log.WithField("client_id", updated.ID).
		WithField("total_cost", total).
		WithField("remaining_credits", updated.Credits).
		WithField("lines", len(lines)).
		Info("purchase completed")

	return domain.Receipt{
		ClientID:         updated.ID,
		TotalCost:        total,
		RemainingCredits: updated.Credits,
		Lines:            lines,
	}, nil
}

// priceCart validates the cart and prices each line from the current catalog,
// locking the unit price into the record. Lines come back in product-name
// order so batches are deterministic.
func (s *Service) priceCart(ctx context.Context, cart map[string]int) ([]client.PurchaseRecord, float64, error) {
	names := make([]string, 0, len(cart))
	for name := range cart {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]client.PurchaseRecord, 0, len(names))
	total := 0.0
	for _, name := range names {
		quantity := cart[name]
		if quantity < 0 {
			return nil, 0, fmt.Errorf("quantity for %q must not be negative", name)
		}
		if quantity == 0 {
			continue
		}

		product, err := s.catalog.GetProductByName(ctx, name)
		if err != nil {
			return nil, 0, err
		}

		cost := product.Price * float64(quantity)
		total += cost
		lines = append(lines, client.PurchaseRecord{
			Product:   product.Name,
			Quantity:  quantity,
			UnitPrice: product.Price,
			TotalCost: cost,
		})
	}

	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("cart is empty")
	}
	return lines, total, nil
}
