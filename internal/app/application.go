package app

import (
	"context"
	"fmt"

	"github.com/cafizzio/ledger/internal/app/services/catalog"
	"github.com/cafizzio/ledger/internal/app/services/clients"
	"github.com/cafizzio/ledger/internal/app/services/ledger"
	"github.com/cafizzio/ledger/internal/app/storage"
	"github.com/cafizzio/ledger/internal/app/storage/memory"
	"github.com/cafizzio/ledger/internal/app/system"
	"github.com/cafizzio/ledger/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Catalog storage.CatalogStore
	Clients storage.ClientStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Catalog *catalog.Service
	Clients *clients.Service
	Ledger  *ledger.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Catalog == nil {
		stores.Catalog = mem
	}
	if stores.Clients == nil {
		stores.Clients = mem
	}

	manager := system.NewManager()

	catalogService := catalog.New(stores.Catalog, log)
	clientService := clients.New(stores.Clients, log)
	ledgerService := ledger.New(stores.Catalog, stores.Clients, log)

	for _, name := range []string{"catalog", "clients", "ledger"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager: manager,
		log:     log,
		Catalog: catalogService,
		Clients: clientService,
		Ledger:  ledgerService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
