// Package clients manages client accounts and their credit balances.
package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/cafizzio/ledger/internal/app/domain/client"
	"github.com/cafizzio/ledger/internal/app/storage"
	"github.com/cafizzio/ledger/pkg/logger"
)

// ErrCreditsBelowZero is returned when an adjustment would leave a client
// with a negative balance. The same floor applies to purchases and manual
// adjustments.
var ErrCreditsBelowZero = errors.New("credits cannot go below zero")

// Service manages client records.
type Service struct {
	store storage.ClientStore
	log   *logger.Logger
}

// New constructs a client service.
func New(store storage.ClientStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("clients")
	}
	return &Service{store: store, log: log}
}

// AddClient registers a new client. Code and name are normalised to lowercase
// for storage and lookup; the code must be unique.
func (s *Service) AddClient(ctx context.Context, code, name, email, phone string, initialCredits float64) (domain.Client, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	name = strings.ToLower(strings.TrimSpace(name))
	if code == "" {
		return domain.Client{}, fmt.Errorf("code is required")
	}
	if name == "" {
		return domain.Client{}, fmt.Errorf("name is required")
	}
	if initialCredits < 0 {
		return domain.Client{}, fmt.Errorf("initial credits must not be negative")
	}

	created, err := s.store.CreateClient(ctx, domain.Client{
		Code:    code,
		Name:    name,
		Email:   strings.TrimSpace(email),
		Phone:   strings.TrimSpace(phone),
		Credits: initialCredits,
		History: []domain.PurchaseRecord{},
	})
	if err != nil {
		return domain.Client{}, err
	}
	s.log.WithField("client_id", created.ID).
		WithField("code", created.Code).
		Info("client added")
	return created, nil
}

// UpdateClientInfo changes identity fields only. Credits and history are
// never touched through this path. An unknown id surfaces a not-found error.
func (s *Service) UpdateClientInfo(ctx context.Context, id int64, code, name, email, phone string) (domain.Client, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	name = strings.ToLower(strings.TrimSpace(name))
	if code == "" {
		return domain.Client{}, fmt.Errorf("code is required")
	}
	if name == "" {
		return domain.Client{}, fmt.Errorf("name is required")
	}

	existing, err := s.store.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}

	existing.Code = code
	existing.Name = name
	existing.Email = strings.TrimSpace(email)
	existing.Phone = strings.TrimSpace(phone)

	updated, err := s.store.UpdateClient(ctx, existing)
	if err != nil {
		return domain.Client{}, err
	}
	s.log.WithField("client_id", updated.ID).
		WithField("code", updated.Code).
		Info("client info updated")
	return updated, nil
}

// GetClient retrieves a client by id.
func (s *Service) GetClient(ctx context.Context, id int64) (domain.Client, error) {
	return s.store.GetClient(ctx, id)
}

// FindByCode returns the client matching the code, case-insensitively. Codes
// are unique, so at most one client matches.
func (s *Service) FindByCode(ctx context.Context, code string) (domain.Client, error) {
	if strings.TrimSpace(code) == "" {
		return domain.Client{}, fmt.Errorf("code is required")
	}
	return s.store.GetClientByCode(ctx, code)
}

// FindByName returns every client whose name matches case-insensitively.
func (s *Service) FindByName(ctx context.Context, name string) ([]domain.Client, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	return s.store.FindClientsByName(ctx, name)
}

// ListClients returns all clients in stored order.
func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.store.ListClients(ctx)
}

// AdjustCredits adds delta (positive or negative) to the client matching the
// code. The balance may not go below zero through any path; an adjustment
// that would fails with ErrCreditsBelowZero and mutates nothing.
func (s *Service) AdjustCredits(ctx context.Context, code string, delta float64) (domain.Client, error) {
	c, err := s.store.GetClientByCode(ctx, code)
	if err != nil {
		return domain.Client{}, err
	}

	newBalance := c.Credits + delta
	if newBalance < 0 {
		return domain.Client{}, fmt.Errorf("%w: balance %.2f, adjustment %.2f", ErrCreditsBelowZero, c.Credits, delta)
	}

	c.Credits = newBalance
	updated, err := s.store.UpdateClient(ctx, c)
	if err != nil {
		return domain.Client{}, err
	}
	s.log.WithField("client_id", updated.ID).
		WithField("delta", delta).
		WithField("credits", updated.Credits).
		Info("credits adjusted")
	return updated, nil
}
