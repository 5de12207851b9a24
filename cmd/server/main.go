package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/connectors"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/provider"
	"github.com/pulseboard/pulseboard/internal/server"
	"github.com/pulseboard/pulseboard/internal/storage"
	_ "github.com/lib/pq"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting pulseboard")

	// Connector state persists in Postgres when DATABASE_URL is set;
	// otherwise an in-memory store keeps state for the process lifetime.
	var store storage.KeyValueStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		logger.Info("connecting to database")
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		pgStore, err := storage.NewPostgresStore(context.Background(), db)
		if err != nil {
			logger.Error("failed to init postgres store", "error", err)
			os.Exit(1)
		}
		store = pgStore
		logger.Info("database connected")
	} else {
		logger.Warn("DATABASE_URL not set, connector state will not survive restarts")
		store = storage.NewMemoryStore()
	}

	httpCollector, err := metrics.NewHTTPCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	connectorCollector, err := metrics.NewConnectorCollector(httpCollector.Registerer())
	if err != nil {
		logger.Error("failed to init connector metrics", "error", err)
		os.Exit(1)
	}

	registry := provider.NewDefaultRegistry()
	service, err := connectors.New(cfg.Connectors, store, registry, &http.Client{}, nil, connectorCollector, logger)
	if err != nil {
		logger.Error("failed to init connector service", "error", err)
		os.Exit(1)
	}

	// Setup HTTP routes
	mux := http.NewServeMux()

	// Service info endpoint
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"pulseboard","status":"ready","version":"0.1.0"}`))
	})

	mux.Handle("/metrics", httpCollector.Handler())

	// Load auth configuration
	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", !authConfig.UsesDefaultSecret())

	logger.Info("setting up REST API")
	api.SetupRoutes(mux, service, authConfig, logger)

	// Wrap with SPA middleware to serve frontend for non-API routes
	handler := server.SPAMiddleware(httpCollector.InstrumentHandler(mux), "./web/dist", "./web/dist/index.html")

	srv := server.New(cfg.Server, logger, handler)

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("pulseboard started successfully")
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	service.Close()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
