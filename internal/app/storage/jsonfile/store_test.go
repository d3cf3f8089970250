package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafizzio/ledger/internal/app/domain/catalog"
	"github.com/cafizzio/ledger/internal/app/domain/client"
	"github.com/cafizzio/ledger/internal/app/storage"
)

func seedOptions() []Option {
	return []Option{
		WithSeedProducts([]catalog.Product{
			{ID: 1, Name: "Espresso", Price: 8.0},
			{ID: 2, Name: "Latte", Price: 10.0},
		}),
		WithSeedClients([]client.Client{
			{ID: 1, Code: "alice01", Name: "alice", Credits: 20.0, History: []client.PurchaseRecord{}},
		}),
	}
}

func TestNewSeedsAbsentFiles(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, nil, seedOptions()...)
	require.NoError(t, err)

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)

	clients, err := s.ListClients(context.Background())
	require.NoError(t, err)
	assert.Len(t, clients, 1)

	// Seeding persists the defaults immediately.
	for _, path := range s.Files() {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}
}

func TestNewRestoresDefaultsOnMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clients.json"), nil, 0o644))

	s, err := New(dir, nil, seedOptions()...)
	require.NoError(t, err)

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)

	clients, err := s.ListClients(context.Background())
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestMutationsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil)
	require.NoError(t, err)

	created, err := s.CreateProduct(ctx, catalog.Product{Name: "Espresso", Price: 8.0})
	require.NoError(t, err)

	c, err := s.CreateClient(ctx, client.Client{Code: "alice01", Name: "alice", Credits: 20.0})
	require.NoError(t, err)

	c.Credits = 12.0
	c.History = append(c.History, client.PurchaseRecord{
		ID:        "r1",
		Timestamp: "2026-03-01 09:30:00",
		Product:   "Espresso",
		Quantity:  1,
		UnitPrice: 8.0,
		TotalCost: 8.0,
	})
	_, err = s.UpdateClient(ctx, c)
	require.NoError(t, err)

	reopened, err := New(dir, nil)
	require.NoError(t, err)

	p, err := reopened.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Espresso", p.Name)

	rc, err := reopened.GetClientByCode(ctx, "alice01")
	require.NoError(t, err)
	assert.Equal(t, 12.0, rc.Credits)
	require.Len(t, rc.History, 1)
	assert.Equal(t, "2026-03-01 09:30:00", rc.History[0].Timestamp)
}

func TestIDsKeepAdvancingAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil)
	require.NoError(t, err)

	first, err := s.CreateProduct(ctx, catalog.Product{Name: "Espresso", Price: 8.0})
	require.NoError(t, err)

	reopened, err := New(dir, nil)
	require.NoError(t, err)

	second, err := reopened.CreateProduct(ctx, catalog.Product{Name: "Latte", Price: 10.0})
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)
}

func TestDocumentFormat(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil)
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, catalog.Product{Name: "Espresso", Price: 8.0})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)

	// Pretty-printed with four-space indentation.
	assert.True(t, strings.Contains(string(raw), "\n    \"schema_version\": 1"), "unexpected layout:\n%s", raw)

	var doc struct {
		SchemaVersion int               `json:"schema_version"`
		NextID        int64             `json:"next_id"`
		Products      []catalog.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 1, doc.SchemaVersion)
	assert.Equal(t, int64(2), doc.NextID)
	require.Len(t, doc.Products, 1)
}

func TestNewClientHistoryPersistsAsEmptyArray(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil)
	require.NoError(t, err)

	created, err := s.CreateClient(ctx, client.Client{Code: "alice01", Name: "alice", History: []client.PurchaseRecord{}})
	require.NoError(t, err)
	require.NotNil(t, created.History)
	assert.Empty(t, created.History)

	raw, err := os.ReadFile(filepath.Join(dir, "clients.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"history": []`)
	assert.NotContains(t, string(raw), `"history": null`)
}

func TestWriteFailureLeavesStateUntouched(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil)
	require.NoError(t, err)
	_, err = s.CreateClient(ctx, client.Client{Code: "alice01", Name: "alice", Credits: 20.0})
	require.NoError(t, err)

	// Removing the directory makes the temp-file write fail.
	require.NoError(t, os.RemoveAll(dir))

	_, err = s.CreateClient(ctx, client.Client{Code: "bob01", Name: "bob"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrPersistence), "expected ErrPersistence, got %v", err)

	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1, "failed write must not commit in-memory state")
}

func TestDuplicateChecksAreCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil)
	require.NoError(t, err)

	_, err = s.CreateProduct(ctx, catalog.Product{Name: "Espresso", Price: 8.0})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, catalog.Product{Name: "ESPRESSO", Price: 7.0})
	require.Error(t, err)

	_, err = s.CreateClient(ctx, client.Client{Code: "alice01", Name: "alice"})
	require.NoError(t, err)
	_, err = s.CreateClient(ctx, client.Client{Code: "Alice01", Name: "other"})
	require.Error(t, err)
}

func TestCreateRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, nil, seedOptions()...)
	require.NoError(t, err)

	_, err = s.CreateProduct(ctx, catalog.Product{ID: 1, Name: "Mocha", Price: 11.0})
	require.Error(t, err)

	_, err = s.CreateClient(ctx, client.Client{ID: 1, Code: "bob01", Name: "bob"})
	require.Error(t, err)

	// The seeded records are untouched.
	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Espresso", p.Name)

	c, err := s.GetClient(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice01", c.Code)
}

func TestNotFoundErrors(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.GetProduct(ctx, 42)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = s.GetProductByName(ctx, "mocha")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = s.GetClient(ctx, 42)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = s.GetClientByCode(ctx, "nobody")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = s.UpdateClient(ctx, client.Client{ID: 42, Code: "x", Name: "x"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
