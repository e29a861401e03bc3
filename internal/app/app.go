// Package app assembles the import pipeline from configuration. Both the HTTP
// server and the CLI build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpattn/bulkimport/internal/config"
	"github.com/rpattn/bulkimport/internal/db"
	"github.com/rpattn/bulkimport/internal/dispatch"
	"github.com/rpattn/bulkimport/internal/importers"
	"github.com/rpattn/bulkimport/internal/ingestion"
	"github.com/rpattn/bulkimport/internal/metrics"
	"github.com/rpattn/bulkimport/internal/registry"
	"github.com/rpattn/bulkimport/internal/repository"
	"github.com/rpattn/bulkimport/internal/stall"
	"github.com/rpattn/bulkimport/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// App holds the wired components.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Jobs      repository.ImportJobRepository
	Sales     repository.SaleRepository
	Uploads   *storage.DiskStore
	Registry  *registry.Registry
	Metrics   *metrics.Recorder
	Processor *ingestion.Processor

	redis   *redis.Client
	closers []func()
}

// Open connects the configured store, runs migrations when enabled and
// registers the built-in importers. Metrics are registered on reg when it is
// non-nil.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	uploads, err := storage.NewDiskStore(cfg.Storage.UploadDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Uploads = uploads

	a.Registry = registry.New()
	if err := importers.Register(a.Registry, a.Sales, logger); err != nil {
		a.Close()
		return nil, err
	}

	a.Processor = ingestion.NewProcessor(a.Jobs, a.Registry, a.Uploads,
		ingestion.WithLogger(logger),
		ingestion.WithMetrics(a.Metrics),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	dbCfg := a.Config.Database
	switch dbCfg.Driver {
	case "memory":
		a.Jobs = repository.NewMemoryImportJobRepository()
		a.Sales = repository.NewMemorySaleRepository()
		return nil

	case "sqlite":
		conn, err := db.OpenSQLite(dbCfg.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		if dbCfg.Migrate {
			if err := db.RunSQLiteMigrations(conn); err != nil {
				return err
			}
		}
		a.Jobs = repository.NewSQLiteImportJobRepository(conn)
		a.Sales = repository.NewSQLiteSaleRepository(conn)
		return nil

	case "postgres":
		pg := dbCfg.Postgres()
		if dbCfg.Migrate {
			if err := db.RunMigrations(pg.URL()); err != nil {
				return err
			}
		}
		conn, err := db.NewConnection(ctx, pg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, conn.Close)
		a.Jobs = repository.NewImportJobRepository(conn.Pool)
		a.Sales = repository.NewSaleRepository(conn.Pool)
		return nil

	default:
		return fmt.Errorf("unknown database driver %q", dbCfg.Driver)
	}
}

// Dispatcher builds the configured dispatcher. The returned function drains
// it on shutdown.
func (a *App) Dispatcher() (ingestion.Dispatcher, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	d := a.Config.Dispatch
	switch d.Mode {
	case "sync":
		return dispatch.NewSync(a.Processor), noop, nil
	case "async":
		async := dispatch.NewAsync(a.Processor,
			dispatch.WithWorkers(d.Workers),
			dispatch.WithJobTimeout(d.JobTimeout),
			dispatch.WithLogger(a.Logger),
		)
		return async, async.Shutdown, nil
	case "redis":
		return dispatch.NewRedisQueue(a.Redis(), d.QueueKey), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown dispatch mode %q", d.Mode)
	}
}

// Worker returns a Redis queue consumer.
func (a *App) Worker() *dispatch.Worker {
	return dispatch.NewWorker(a.Redis(), a.Config.Dispatch.QueueKey, a.Processor, a.Logger)
}

// Redis lazily connects the queue client.
func (a *App) Redis() *redis.Client {
	if a.redis == nil {
		d := a.Config.Dispatch
		a.redis = redis.NewClient(&redis.Options{
			Addr:     d.RedisAddr,
			Password: d.RedisPassword,
			DB:       d.RedisDB,
		})
		client := a.redis
		a.closers = append(a.closers, func() { _ = client.Close() })
	}
	return a.redis
}

// Service builds the import service on top of dispatcher.
func (a *App) Service(dispatcher ingestion.Dispatcher) *ingestion.Service {
	return ingestion.NewService(a.Jobs, a.Registry, a.Uploads, dispatcher, ingestion.WithServiceLogger(a.Logger))
}

// Detector builds a stall detector with timeout, falling back to the
// configured one when timeout is zero.
func (a *App) Detector(timeout time.Duration) *stall.Detector {
	if timeout <= 0 {
		timeout = a.Config.Stall.Timeout
	}
	return stall.NewDetector(a.Jobs, timeout,
		stall.WithLogger(a.Logger),
		stall.WithMetrics(a.Metrics),
	)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
