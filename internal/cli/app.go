package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eshaffer321/receipt-desk/internal/adapters/clients"
	"github.com/eshaffer321/receipt-desk/internal/application/audit"
	"github.com/eshaffer321/receipt-desk/internal/application/auth"
	"github.com/eshaffer321/receipt-desk/internal/application/busy"
	"github.com/eshaffer321/receipt-desk/internal/application/customers"
	"github.com/eshaffer321/receipt-desk/internal/application/receipts"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/config"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/logging"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/sessionstore"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

// App holds everything a command needs, built once from configuration.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *storage.Storage
	Sessions sessionstore.Store
	Clients  *clients.Clients

	Auth      *auth.Service
	Receipts  *receipts.Service
	Customers *customers.Service

	redis *redis.Client
}

// NewApp opens storage, connects the session store and the remote clients,
// and builds the services. Close releases all of it.
func NewApp(cfg *config.Config, verbose bool) (*App, error) {
	loggingCfg := cfg.Observability.Logging
	if verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLogger(loggingCfg)

	store, err := storage.NewStorageWithLogger(cfg.Storage.DatabasePath, logger.With("system", logging.SystemStorage))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	app := &App{Config: cfg, Logger: logger, Store: store}

	if err := app.connectSessions(); err != nil {
		_ = app.Close()
		return nil, err
	}

	recorder := audit.NewRecorder(store, logger.With("system", logging.SystemStorage))
	app.Clients, err = clients.NewClients(cfg, recorder, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	guard := busy.New()
	app.Auth = auth.NewService(app.Clients.Backend, app.Sessions, cfg.Sessions.TTL, logger.With("system", logging.SystemAuth))
	app.Receipts = receipts.NewService(store, app.Clients.Receipts, app.Clients.Backend, app.Clients.Events, guard, logger.With("system", logging.SystemReceipts))
	app.Customers = customers.NewService(app.Clients.Backend, guard, logger.With("system", logging.SystemCustomers))

	return app, nil
}

func (a *App) connectSessions() error {
	cfg := a.Config.Sessions
	if cfg.Backend != config.SessionBackendRedis {
		a.Sessions = sessionstore.NewSQL(a.Store)
		return nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	a.Sessions = sessionstore.NewRedis(a.redis, cfg.Redis.Prefix, cfg.MaxIdle)
	a.Logger.Info("using redis session store", "addr", cfg.Redis.Addr)
	return nil
}

// PurgeSessions drops SQLite sessions idle for longer than sessions.max_idle.
// Redis expires sessions on its own, so this is a no-op there.
func (a *App) PurgeSessions(ctx context.Context) (int64, error) {
	sql, ok := a.Sessions.(*sessionstore.SQL)
	if !ok {
		return 0, nil
	}
	return sql.Purge(ctx, time.Now(), a.Config.Sessions.MaxIdle)
}

// Close releases clients, the session store and the database.
func (a *App) Close() error {
	var errs []error
	if a.Clients != nil {
		errs = append(errs, a.Clients.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
