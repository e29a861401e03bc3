package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rpattn/bulkimport/internal/app"
	"github.com/rpattn/bulkimport/internal/config"
	"github.com/rpattn/bulkimport/internal/ingestion"
	"github.com/rpattn/bulkimport/internal/logging"
	"github.com/rpattn/bulkimport/internal/metrics"
	"github.com/rpattn/bulkimport/internal/middleware"
	"github.com/rpattn/bulkimport/internal/stall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closeLog := logging.Setup(cfg.Log.File, cfg.Log.SlogLevel())
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := app.Open(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher, drain, err := a.Dispatcher()
	if err != nil {
		return err
	}

	var background sync.WaitGroup
	if cfg.Stall.Enabled {
		scheduler := stall.NewScheduler(a.Detector(0), cfg.Stall.Interval, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			scheduler.Run(ctx)
		}()
	}
	if cfg.Dispatch.Mode == "redis" && cfg.Dispatch.RunWorker {
		worker := a.Worker()
		background.Add(1)
		go func() {
			defer background.Done()
			if err := worker.Run(ctx); err != nil {
				logger.Error("import worker stopped", "error", err)
			}
		}()
	}

	handler := ingestion.NewHTTPHandler(a.Service(dispatcher),
		ingestion.WithHandlerLogger(logger),
		ingestion.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler(reg))
	r.Route("/api", handler.Routes)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("import server listening", "addr", cfg.Server.Addr, "dispatch", cfg.Dispatch.Mode, "driver", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			background.Wait()
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down import server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := drain(shutdownCtx); err != nil {
		logger.Warn("import jobs still running at shutdown", "error", err)
	}
	background.Wait()

	logger.Info("import server exited")
	return nil
}
