package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/cafizzio/ledger/internal/app/domain/catalog"
	"github.com/cafizzio/ledger/internal/app/domain/client"
	"github.com/cafizzio/ledger/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.CatalogStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the ledger tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_products (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL,
			price      DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS ledger_products_name_key
			ON ledger_products (LOWER(name));

		CREATE TABLE IF NOT EXISTS ledger_clients (
			id         BIGSERIAL PRIMARY KEY,
			code       TEXT NOT NULL,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			phone      TEXT NOT NULL DEFAULT '',
			credits    DOUBLE PRECISION NOT NULL DEFAULT 0,
			history    JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS ledger_clients_code_key
			ON ledger_clients (LOWER(code));
	`)
	if err != nil {
		return fmt.Errorf("%w: migrate: %v", storage.ErrPersistence, err)
	}
	return nil
}

// --- CatalogStore -----------------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ledger_products (name, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.Name, p.Price, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.Product{}, fmt.Errorf("product name %q already taken", p.Name)
		}
		return catalog.Product{}, fmt.Errorf("%w: create product: %v", storage.ErrPersistence, err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	existing, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return catalog.Product{}, err
	}

	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE ledger_products
		SET name = $2, price = $3, updated_at = $4
		WHERE id = $1
	`, p.ID, p.Name, p.Price, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.Product{}, fmt.Errorf("product name %q already taken", p.Name)
		}
		return catalog.Product{}, fmt.Errorf("%w: update product: %v", storage.ErrPersistence, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return catalog.Product{}, fmt.Errorf("product %d: %w", p.ID, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, created_at, updated_at
		FROM ledger_products
		WHERE id = $1
	`, id)
	return scanProduct(row, fmt.Sprintf("product %d", id))
}

func (s *Store) GetProductByName(ctx context.Context, name string) (catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, created_at, updated_at
		FROM ledger_products
		WHERE LOWER(name) = LOWER($1)
	`, strings.TrimSpace(name))
	return scanProduct(row, fmt.Sprintf("product %q", name))
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, created_at, updated_at
		FROM ledger_products
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list products: %v", storage.ErrPersistence, err)
	}
	defer rows.Close()

	products := make([]catalog.Product, 0)
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan product: %v", storage.ErrPersistence, err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func scanProduct(row *sql.Row, label string) (catalog.Product, error) {
	var p catalog.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Product{}, fmt.Errorf("%s: %w", label, storage.ErrNotFound)
		}
		return catalog.Product{}, fmt.Errorf("%w: %s: %v", storage.ErrPersistence, label, err)
	}
	return p, nil
}

// --- ClientStore ------------------------------------------------------------

func (s *Store) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	historyJSON, err := marshalHistory(c.History)
	if err != nil {
		return client.Client{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO ledger_clients (code, name, email, phone, credits, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, c.Code, c.Name, c.Email, c.Phone, c.Credits, historyJSON, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return client.Client{}, fmt.Errorf("code %q already taken", c.Code)
		}
		return client.Client{}, fmt.Errorf("%w: create client: %v", storage.ErrPersistence, err)
	}
	return c, nil
}

func (s *Store) UpdateClient(ctx context.Context, c client.Client) (client.Client, error) {
	existing, err := s.GetClient(ctx, c.ID)
	if err != nil {
		return client.Client{}, err
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	historyJSON, err := marshalHistory(c.History)
	if err != nil {
		return client.Client{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE ledger_clients
		SET code = $2, name = $3, email = $4, phone = $5, credits = $6, history = $7, updated_at = $8
		WHERE id = $1
	`, c.ID, c.Code, c.Name, c.Email, c.Phone, c.Credits, historyJSON, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return client.Client{}, fmt.Errorf("code %q already taken", c.Code)
		}
		return client.Client{}, fmt.Errorf("%w: update client: %v", storage.ErrPersistence, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return client.Client{}, fmt.Errorf("client %d: %w", c.ID, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, id int64) (client.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, email, phone, credits, history, created_at, updated_at
		FROM ledger_clients
		WHERE id = $1
	`, id)
	return scanClient(row, fmt.Sprintf("client %d", id))
}

func (s *Store) GetClientByCode(ctx context.Context, code string) (client.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, email, phone, credits, history, created_at, updated_at
		FROM ledger_clients
		WHERE LOWER(code) = LOWER($1)
	`, strings.TrimSpace(code))
	return scanClient(row, fmt.Sprintf("client code %q", code))
}

func (s *Store) FindClientsByName(ctx context.Context, name string) ([]client.Client, error) {
	return s.queryClients(ctx, `
		SELECT id, code, name, email, phone, credits, history, created_at, updated_at
		FROM ledger_clients
		WHERE LOWER(name) = LOWER($1)
		ORDER BY id
	`, strings.TrimSpace(name))
}

func (s *Store) ListClients(ctx context.Context) ([]client.Client, error) {
	return s.queryClients(ctx, `
		SELECT id, code, name, email, phone, credits, history, created_at, updated_at
		FROM ledger_clients
		ORDER BY id
	`)
}

func (s *Store) queryClients(ctx context.Context, query string, args ...any) ([]client.Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query clients: %v", storage.ErrPersistence, err)
	}
	defer rows.Close()

	clients := make([]client.Client, 0)
	for rows.Next() {
		var (
			c          client.Client
			historyRaw []byte
		)
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Credits, &historyRaw, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan client: %v", storage.ErrPersistence, err)
		}
		if err := unmarshalHistory(historyRaw, &c.History); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func scanClient(row *sql.Row, label string) (client.Client, error) {
	var (
		c          client.Client
		historyRaw []byte
	)
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Credits, &historyRaw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return client.Client{}, fmt.Errorf("%s: %w", label, storage.ErrNotFound)
		}
		return client.Client{}, fmt.Errorf("%w: %s: %v", storage.ErrPersistence, label, err)
	}
	if err := unmarshalHistory(historyRaw, &c.History); err != nil {
		return client.Client{}, err
	}
	return c, nil
}

func unmarshalHistory(raw []byte, history *[]client.PurchaseRecord) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, history); err != nil {
		return fmt.Errorf("%w: unmarshal history: %v", storage.ErrPersistence, err)
	}
	return nil
}

func marshalHistory(history []client.PurchaseRecord) ([]byte, error) {
	if history == nil {
		history = []client.PurchaseRecord{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal history: %v", storage.ErrPersistence, err)
	}
	return data, nil
}

// isUniqueViolation reports whether err is a unique index violation
// (class 23505) from the postgres driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
