package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cafizzio/ledger/internal/app/domain/catalog"
	"github.com/cafizzio/ledger/internal/app/domain/client"
	"github.com/cafizzio/ledger/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu            sync.RWMutex
	nextProductID int64
	nextClientID  int64
	products      map[int64]catalog.Product
	productByName map[string]int64
	clients       map[int64]client.Client
	clientByCode  map[string]int64
}

var _ storage.CatalogStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextProductID: 1,
		nextClientID:  1,
		products:      make(map[int64]catalog.Product),
		productByName: make(map[string]int64),
		clients:       make(map[int64]client.Client),
		clientByCode:  make(map[string]int64),
	}
}

// CatalogStore implementation -------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nameKey := strings.ToLower(strings.TrimSpace(p.Name))
	if existing, exists := s.productByName[nameKey]; exists {
		return catalog.Product{}, fmt.Errorf("product name %q already taken by product %d", p.Name, existing)
	}

	if p.ID == 0 {
		p.ID = s.nextProductID
		s.nextProductID++
	} else if _, exists := s.products[p.ID]; exists {
		return catalog.Product{}, fmt.Errorf("product %d already exists", p.ID)
	} else if p.ID >= s.nextProductID {
		s.nextProductID = p.ID + 1
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.products[p.ID] = p
	s.productByName[nameKey] = p.ID
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.products[p.ID]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %d: %w", p.ID, storage.ErrNotFound)
	}

	oldKey := strings.ToLower(strings.TrimSpace(original.Name))
	newKey := strings.ToLower(strings.TrimSpace(p.Name))
	if existing, exists := s.productByName[newKey]; exists && existing != p.ID {
		return catalog.Product{}, fmt.Errorf("product name %q already taken by product %d", p.Name, existing)
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	s.products[p.ID] = p
	if oldKey != newKey {
		delete(s.productByName, oldKey)
	}
	s.productByName[newKey] = p.ID
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %d: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetProductByName(_ context.Context, name string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.productByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s.products[id], nil
	}
	return catalog.Product{}, fmt.Errorf("product %q: %w", name, storage.ErrNotFound)
}

func (s *Store) ListProducts(_ context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ClientStore implementation --------------------------------------------------

func (s *Store) CreateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codeKey := strings.ToLower(strings.TrimSpace(c.Code))
	if existing, exists := s.clientByCode[codeKey]; exists {
		return client.Client{}, fmt.Errorf("code %q already taken by client %d", c.Code, existing)
	}

	if c.ID == 0 {
		c.ID = s.nextClientID
		s.nextClientID++
	} else if _, exists := s.clients[c.ID]; exists {
		return client.Client{}, fmt.Errorf("client %d already exists", c.ID)
	} else if c.ID >= s.nextClientID {
		s.nextClientID = c.ID + 1
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.History = client.CloneHistory(c.History)

	s.clients[c.ID] = c
	s.clientByCode[codeKey] = c.ID
	return c.Clone(), nil
}

func (s *Store) UpdateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.clients[c.ID]
	if !ok {
		return client.Client{}, fmt.Errorf("client %d: %w", c.ID, storage.ErrNotFound)
	}

	oldKey := strings.ToLower(strings.TrimSpace(original.Code))
	newKey := strings.ToLower(strings.TrimSpace(c.Code))
	if existing, exists := s.clientByCode[newKey]; exists && existing != c.ID {
		return client.Client{}, fmt.Errorf("code %q already taken by client %d", c.Code, existing)
	}

	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	c.History = client.CloneHistory(c.History)

	s.clients[c.ID] = c
	if oldKey != newKey {
		delete(s.clientByCode, oldKey)
	}
	s.clientByCode[newKey] = c.ID
	return c.Clone(), nil
}

func (s *Store) GetClient(_ context.Context, id int64) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return client.Client{}, fmt.Errorf("client %d: %w", id, storage.ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *Store) GetClientByCode(_ context.Context, code string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.clientByCode[strings.ToLower(strings.TrimSpace(code))]; ok {
		return s.clients[id].Clone(), nil
	}
	return client.Client{}, fmt.Errorf("client code %q: %w", code, storage.ErrNotFound)
}

func (s *Store) FindClientsByName(_ context.Context, name string) ([]client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nameKey := strings.ToLower(strings.TrimSpace(name))
	result := make([]client.Client, 0)
	for _, c := range s.clients {
		if strings.EqualFold(c.Name, nameKey) {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ListClients(_ context.Context) ([]client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]client.Client, 0, len(s.clients))
	for _, c := range s.clients {
		result = append(result, c.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
