// Package jsonfile persists the catalog and client collections as two
// independent pretty-printed JSON files. Every mutation is a full
// read-modify-write of one collection: the new contents are written to a
// temporary file and atomically renamed over the old one. A failed write
// leaves both the file and the in-memory state untouched, so the logical
// operation fails cleanly.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cafizzio/ledger/internal/app/domain/catalog"
	"github.com/cafizzio/ledger/internal/app/domain/client"
	"github.com/cafizzio/ledger/internal/app/storage"
	"github.com/cafizzio/ledger/pkg/logger"
)

// SchemaVersion is written into every collection file so the layout can
// evolve safely.
const SchemaVersion = 1

const (
	productsFile = "products.json"
	clientsFile  = "clients.json"
)

type catalogDocument struct {
	SchemaVersion int               `json:"schema_version"`
	NextID        int64             `json:"next_id"`
	Products      []catalog.Product `json:"products"`
}

type clientDocument struct {
	SchemaVersion int             `json:"schema_version"`
	NextID        int64           `json:"next_id"`
	Clients       []client.Client `json:"clients"`
}

// Store implements the storage interfaces backed by JSON files.
type Store struct {
	mu      sync.RWMutex
	dir     string
	log     *logger.Logger
	catalog catalogDocument
	clients clientDocument
}

var _ storage.CatalogStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)

// Option adjusts store construction.
type Option func(*options)

type options struct {
	seedProducts []catalog.Product
	seedClients  []client.Client
}

// WithSeedProducts provides the default catalog used when the products file is
// absent, empty, or unparsable.
func WithSeedProducts(products []catalog.Product) Option {
	return func(o *options) { o.seedProducts = products }
}

// WithSeedClients provides the default clients used when the clients file is
// absent, empty, or unparsable.
func WithSeedClients(clients []client.Client) Option {
	return func(o *options) { o.seedClients = clients }
}

// New opens (or initialises) the collection files under dir.
func New(dir string, log *logger.Logger, opts ...Option) (*Store, error) {
	if log == nil {
		log = logger.NewDefault("jsonfile")
	}
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{dir: dir, log: log}

	if err := s.loadCatalog(o.seedProducts); err != nil {
		return nil, err
	}
	if err := s.loadClients(o.seedClients); err != nil {
		return nil, err
	}
	return s, nil
}

// Files returns the collection file paths, for backup tooling.
func (s *Store) Files() []string {
	return []string{
		filepath.Join(s.dir, productsFile),
		filepath.Join(s.dir, clientsFile),
	}
}

func (s *Store) loadCatalog(seed []catalog.Product) error {
	doc := catalogDocument{SchemaVersion: SchemaVersion, NextID: 1, Products: seed}
	for _, p := range seed {
		if p.ID >= doc.NextID {
			doc.NextID = p.ID + 1
		}
	}

	path := filepath.Join(s.dir, productsFile)
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.log.WithField("file", productsFile).Info("catalog file absent, seeding defaults")
	case err != nil:
		return fmt.Errorf("read %s: %w", productsFile, err)
	default:
		var parsed catalogDocument
		if len(raw) == 0 || json.Unmarshal(raw, &parsed) != nil {
			s.log.WithField("file", productsFile).Warn("catalog file empty or malformed, restoring defaults")
		} else {
			doc = parsed
			if doc.NextID < 1 {
				doc.NextID = 1
			}
			for _, p := range doc.Products {
				if p.ID >= doc.NextID {
					doc.NextID = p.ID + 1
				}
			}
			s.catalog = doc
			return nil
		}
	}

	if err := writeDocument(path, doc); err != nil {
		return err
	}
	s.catalog = doc
	return nil
}

func (s *Store) loadClients(seed []client.Client) error {
	doc := clientDocument{SchemaVersion: SchemaVersion, NextID: 1, Clients: seed}
	for _, c := range seed {
		if c.ID >= doc.NextID {
			doc.NextID = c.ID + 1
		}
	}

	path := filepath.Join(s.dir, clientsFile)
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.log.WithField("file", clientsFile).Info("clients file absent, seeding defaults")
	case err != nil:
		return fmt.Errorf("read %s: %w", clientsFile, err)
	default:
		var parsed clientDocument
		if len(raw) == 0 || json.Unmarshal(raw, &parsed) != nil {
			s.log.WithField("file", clientsFile).Warn("clients file empty or malformed, restoring defaults")
		} else {
			doc = parsed
			if doc.NextID < 1 {
				doc.NextID = 1
			}
			for _, c := range doc.Clients {
				if c.ID >= doc.NextID {
					doc.NextID = c.ID + 1
				}
			}
			s.clients = doc
			return nil
		}
	}

	if err := writeDocument(path, doc); err != nil {
		return err
	}
	s.clients = doc
	return nil
}

// writeDocument marshals the document and replaces path atomically.
func writeDocument(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", storage.ErrPersistence, filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", storage.ErrPersistence, filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", storage.ErrPersistence, filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", storage.ErrPersistence, filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", storage.ErrPersistence, filepath.Base(path), err)
	}
	return nil
}

func (s *Store) saveCatalog(doc catalogDocument) error {
	if err := writeDocument(filepath.Join(s.dir, productsFile), doc); err != nil {
		return err
	}
	s.catalog = doc
	return nil
}

func (s *Store) saveClients(doc clientDocument) error {
	if err := writeDocument(filepath.Join(s.dir, clientsFile), doc); err != nil {
		return err
	}
	s.clients = doc
	return nil
}

// CatalogStore implementation -------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.catalog.Products {
		if strings.EqualFold(existing.Name, p.Name) {
			return catalog.Product{}, fmt.Errorf("product name %q already taken by product %d", p.Name, existing.ID)
		}
		if p.ID != 0 && existing.ID == p.ID {
			return catalog.Product{}, fmt.Errorf("product %d already exists", p.ID)
		}
	}

	doc := s.catalog
	doc.Products = append([]catalog.Product(nil), s.catalog.Products...)

	if p.ID == 0 {
		p.ID = doc.NextID
	}
	if p.ID >= doc.NextID {
		doc.NextID = p.ID + 1
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	doc.Products = append(doc.Products, p)

	if err := s.saveCatalog(doc); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, existing := range s.catalog.Products {
		if existing.ID == p.ID {
			idx = i
			continue
		}
		if strings.EqualFold(existing.Name, p.Name) {
			return catalog.Product{}, fmt.Errorf("product name %q already taken by product %d", p.Name, existing.ID)
		}
	}
	if idx < 0 {
		return catalog.Product{}, fmt.Errorf("product %d: %w", p.ID, storage.ErrNotFound)
	}

	doc := s.catalog
	doc.Products = append([]catalog.Product(nil), s.catalog.Products...)

	p.CreatedAt = doc.Products[idx].CreatedAt
	p.UpdatedAt = time.Now().UTC()
	doc.Products[idx] = p

	if err := s.saveCatalog(doc); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.catalog.Products {
		if p.ID == id {
			return p, nil
		}
	}
	return catalog.Product{}, fmt.Errorf("product %d: %w", id, storage.ErrNotFound)
}

func (s *Store) GetProductByName(_ context.Context, name string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.catalog.Products {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return catalog.Product{}, fmt.Errorf("product %q: %w", name, storage.ErrNotFound)
}

func (s *Store) ListProducts(_ context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]catalog.Product(nil), s.catalog.Products...), nil
}

// ClientStore implementation --------------------------------------------------

func (s *Store) CreateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.clients.Clients {
		if strings.EqualFold(existing.Code, c.Code) {
			return client.Client{}, fmt.Errorf("code %q already taken by client %d", c.Code, existing.ID)
		}
		if c.ID != 0 && existing.ID == c.ID {
			return client.Client{}, fmt.Errorf("client %d already exists", c.ID)
		}
	}

	doc := s.clients
	doc.Clients = append([]client.Client(nil), s.clients.Clients...)

	if c.ID == 0 {
		c.ID = doc.NextID
	}
	if c.ID >= doc.NextID {
		doc.NextID = c.ID + 1
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.History = client.CloneHistory(c.History)
	doc.Clients = append(doc.Clients, c)

	if err := s.saveClients(doc); err != nil {
		return client.Client{}, err
	}
	return c.Clone(), nil
}

func (s *Store) UpdateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, existing := range s.clients.Clients {
		if existing.ID == c.ID {
			idx = i
			continue
		}
		if strings.EqualFold(existing.Code, c.Code) {
			return client.Client{}, fmt.Errorf("code %q already taken by client %d", c.Code, existing.ID)
		}
	}
	if idx < 0 {
		return client.Client{}, fmt.Errorf("client %d: %w", c.ID, storage.ErrNotFound)
	}

	doc := s.clients
	doc.Clients = append([]client.Client(nil), s.clients.Clients...)

	c.CreatedAt = doc.Clients[idx].CreatedAt
	c.UpdatedAt = time.Now().UTC()
	c.History = client.CloneHistory(c.History)
	doc.Clients[idx] = c

	if err := s.saveClients(doc); err != nil {
		return client.Client{}, err
	}
	return c.Clone(), nil
}

func (s *Store) GetClient(_ context.Context, id int64) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients.Clients {
		if c.ID == id {
			return c.Clone(), nil
		}
	}
	return client.Client{}, fmt.Errorf("client %d: %w", id, storage.ErrNotFound)
}

func (s *Store) GetClientByCode(_ context.Context, code string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients.Clients {
		if strings.EqualFold(c.Code, strings.TrimSpace(code)) {
			return c.Clone(), nil
		}
	}
	return client.Client{}, fmt.Errorf("client code %q: %w", code, storage.ErrNotFound)
}

func (s *Store) FindClientsByName(_ context.Context, name string) ([]client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trimmed := strings.TrimSpace(name)
	result := make([]client.Client, 0)
	for _, c := range s.clients.Clients {
		if strings.EqualFold(c.Name, trimmed) {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ListClients(_ context.Context) ([]client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]client.Client, 0, len(s.clients.Clients))
	for _, c := range s.clients.Clients {
		result = append(result, c.Clone())
	}
	return result, nil
}
