// Package runtime wires configuration, storage, and the HTTP server into a
// runnable service.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "github.com/lib/pq"

	app "github.com/cafizzio/ledger/internal/app"
	"github.com/cafizzio/ledger/internal/app/httpapi"
	"github.com/cafizzio/ledger/internal/app/metrics"
	"github.com/cafizzio/ledger/internal/app/services/backup"
	"github.com/cafizzio/ledger/internal/app/storage/jsonfile"
	"github.com/cafizzio/ledger/internal/app/storage/memory"
	"github.com/cafizzio/ledger/internal/app/storage/postgres"
	"github.com/cafizzio/ledger/internal/config"
	"github.com/cafizzio/ledger/internal/middleware"
	"github.com/cafizzio/ledger/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	db         *sql.DB
}

// NewApplication constructs a new application instance from the config file
// at path (empty means defaults plus environment overrides).
func NewApplication(path string) (*Application, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "ledgerd",
	})

	stores, fileStore, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	application, err := app.New(stores, log)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}

	if cfg.Backup.Enabled && fileStore != nil {
		backupSvc, err := backup.New(fileStore, cfg.Backup.Dir, cfg.Backup.Schedule, cfg.Backup.Retain, log)
		if err != nil {
			return nil, fmt.Errorf("configure backup: %w", err)
		}
		if err := application.Attach(backupSvc); err != nil {
			return nil, fmt.Errorf("attach backup: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", httpapi.NewHandler(application))

	var handler http.Handler = mux
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		limiter.StartCleanup(10 * time.Minute)
		handler = limiter.Handler(handler)
	}
	handler = metrics.InstrumentHandler(handler)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpSrv,
		db:         db,
	}, nil
}

// Run starts background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, background services, and the
// database connection.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *jsonfile.Store, *sql.DB, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "jsonfile":
		store, err := jsonfile.New(cfg.Storage.DataDir, log)
		if err != nil {
			return app.Stores{}, nil, nil, err
		}
		return app.Stores{Catalog: store, Clients: store}, store, nil, nil

	case "postgres":
		db, err := openDatabase(cfg.Storage)
		if err != nil {
			return app.Stores{}, nil, nil, err
		}
		store := postgres.New(db)
		if err := store.Migrate(context.Background()); err != nil {
			db.Close()
			return app.Stores{}, nil, nil, err
		}
		return app.Stores{Catalog: store, Clients: store}, nil, db, nil

	case "memory":
		store := memory.New()
		return app.Stores{Catalog: store, Clients: store}, nil, nil, nil

	default:
		return app.Stores{}, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func openDatabase(cfg config.StorageConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
