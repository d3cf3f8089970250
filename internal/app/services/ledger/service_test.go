package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	catalogdomain "github.com/cafizzio/ledger/internal/app/domain/catalog"
	"github.com/cafizzio/ledger/internal/app/domain/client"
	"github.com/cafizzio/ledger/internal/app/storage"
	"github.com/cafizzio/ledger/internal/app/storage/memory"
)

func newFixture(t *testing.T) (*Service, *memory.Store, client.Client) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	for _, p := range []catalogdomain.Product{
		{Name: "Espresso", Price: 8.0},
		{Name: "Latte", Price: 10.0},
	} {
		if _, err := store.CreateProduct(ctx, p); err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}
	}

	c, err := store.CreateClient(ctx, client.Client{
		Code:    "alice01",
		Name:    "alice",
		Credits: 20.0,
		History: []client.PurchaseRecord{},
	})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	svc := New(store, store, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return svc, store, c
}

func TestPurchaseDebitsAndRecordsHistory(t *testing.T) {
	svc, store, c := newFixture(t)
	ctx := context.Background()

	receipt, err := svc.Purchase(ctx, c.ID, map[string]int{"Espresso": 1, "Latte": 1})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if receipt.TotalCost != 18.0 {
		t.Fatalf("expected total 18.0, got %v", receipt.TotalCost)
	}
	if math.Abs(receipt.RemainingCredits-2.0) > Epsilon {
		t.Fatalf("expected remaining 2.0, got %v", receipt.RemainingCredits)
	}
	if len(receipt.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(receipt.Lines))
	}

	// Lines come back in product-name order with the shared batch timestamp.
	if receipt.Lines[0].Product != "Espresso" || receipt.Lines[1].Product != "Latte" {
		t.Fatalf("unexpected line order: %+v", receipt.Lines)
	}
	if receipt.Lines[0].Timestamp != "2026-03-01 09:30:00" {
		t.Fatalf("unexpected timestamp: %q", receipt.Lines[0].Timestamp)
	}
	if receipt.Lines[0].Timestamp != receipt.Lines[1].Timestamp {
		t.Fatal("all lines must share the batch timestamp")
	}
	if receipt.Lines[0].ID == "" || receipt.Lines[0].ID == receipt.Lines[1].ID {
		t.Fatal("each line needs a distinct non-empty id")
	}
	if receipt.Lines[0].UnitPrice != 8.0 || receipt.Lines[0].TotalCost != 8.0 {
		t.Fatalf("unexpected line pricing: %+v", receipt.Lines[0])
	}

	persisted, err := store.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if math.Abs(persisted.Credits-2.0) > Epsilon {
		t.Fatalf("expected persisted credits 2.0, got %v", persisted.Credits)
	}
	if len(persisted.History) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(persisted.History))
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	svc, store, c := newFixture(t)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, c.ID, map[string]int{"Espresso": 3})
	if err == nil {
		t.Fatal("expected insufficient funds error")
	}

	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if insufficient.TotalCost != 24.0 || insufficient.Available != 20.0 {
		t.Fatalf("unexpected amounts: %+v", insufficient)
	}

	persisted, err := store.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if persisted.Credits != 20.0 || len(persisted.History) != 0 {
		t.Fatalf("failed purchase must not mutate the client: %+v", persisted)
	}
}

func TestPurchaseLocksCurrentPrice(t *testing.T) {
	svc, store, c := newFixture(t)
	ctx := context.Background()

	receipt, err := svc.Purchase(ctx, c.ID, map[string]int{"Espresso": 1})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if receipt.Lines[0].UnitPrice != 8.0 {
		t.Fatalf("expected unit price 8.0, got %v", receipt.Lines[0].UnitPrice)
	}

	p, err := store.GetProductByName(ctx, "Espresso")
	if err != nil {
		t.Fatalf("GetProductByName: %v", err)
	}
	p.Price = 12.0
	if _, err := store.UpdateProduct(ctx, p); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}

	persisted, err := store.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if persisted.History[0].UnitPrice != 8.0 {
		t.Fatal("history must retain the price paid at purchase time")
	}
}

func TestPurchaseSkipsZeroQuantityLines(t *testing.T) {
	svc, _, c := newFixture(t)

	receipt, err := svc.Purchase(context.Background(), c.ID, map[string]int{"Espresso": 1, "Latte": 0})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if len(receipt.Lines) != 1 || receipt.Lines[0].Product != "Espresso" {
		t.Fatalf("expected only the espresso line, got %+v", receipt.Lines)
	}
	if receipt.TotalCost != 8.0 {
		t.Fatalf("expected total 8.0, got %v", receipt.TotalCost)
	}
}

func TestPurchaseUnknownProduct(t *testing.T) {
	svc, store, c := newFixture(t)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, c.ID, map[string]int{"Espresso": 1, "Mocha": 1})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	persisted, err := store.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if persisted.Credits != 20.0 || len(persisted.History) != 0 {
		t.Fatalf("failed purchase must not mutate the client: %+v", persisted)
	}
}

func TestPurchaseEmptyCart(t *testing.T) {
	svc, _, c := newFixture(t)

	if _, err := svc.Purchase(context.Background(), c.ID, map[string]int{}); err == nil {
		t.Fatal("expected empty cart to be rejected")
	}
	if _, err := svc.Purchase(context.Background(), c.ID, map[string]int{"Espresso": 0}); err == nil {
		t.Fatal("expected all-zero cart to be rejected")
	}
}

func TestPurchaseNegativeQuantity(t *testing.T) {
	svc, _, c := newFixture(t)

	if _, err := svc.Purchase(context.Background(), c.ID, map[string]int{"Espresso": -1}); err == nil {
		t.Fatal("expected negative quantity to be rejected")
	}
}

func TestPurchaseUnknownClient(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.Purchase(context.Background(), 999, map[string]int{"Espresso": 1})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPurchaseExactBalance(t *testing.T) {
	svc, store, c := newFixture(t)
	ctx := context.Background()

	receipt, err := svc.Purchase(ctx, c.ID, map[string]int{"Latte": 2})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if math.Abs(receipt.RemainingCredits) > Epsilon {
		t.Fatalf("expected zero remaining, got %v", receipt.RemainingCredits)
	}

	persisted, err := store.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if math.Abs(persisted.Credits) > Epsilon {
		t.Fatalf("expected zero persisted credits, got %v", persisted.Credits)
	}
}

// failingClientStore fails every update to simulate a persistence fault.
type failingClientStore struct {
	storage.ClientStore
}

func (f *failingClientStore) UpdateClient(context.Context, client.Client) (client.Client, error) {
	return client.Client{}, fmt.Errorf("write clients: %w", storage.ErrPersistence)
}

func TestPurchasePersistFailure(t *testing.T) {
	svc, store, c := newFixture(t)
	svc.clients = &failingClientStore{ClientStore: store}
	ctx := context.Background()

	_, err := svc.Purchase(ctx, c.ID, map[string]int{"Espresso": 1})
	if !errors.Is(err, storage.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	persisted, err := store.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if persisted.Credits != 20.0 || len(persisted.History) != 0 {
		t.Fatalf("failed persist must leave the stored client untouched: %+v", persisted)
	}
}
