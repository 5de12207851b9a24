package api

import (
	"net/http"
	"strings"

	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/connectors"
	"log/slog"
)

// SetupRoutes configures all API routes
func SetupRoutes(mux *http.ServeMux, service *connectors.Service, authConfig auth.Config, logger *slog.Logger) {
	connectorHandler := NewConnectorHandlers(service, logger)
	authHandler := NewAuthHandler(authConfig, logger)

	authMiddleware := auth.Middleware(authConfig)
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// CORS preflights carry no token
			if r.Method == http.MethodOptions {
				setCORSHeaders(w)
				w.WriteHeader(http.StatusOK)
				return
			}
			authMiddleware(h).ServeHTTP(w, r)
		}
	}

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/validate", protect(authHandler.ValidateToken))

	// Connector collection: reads are public, mutations require auth
	mux.HandleFunc("/api/connectors", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			protect(connectorHandler.HandleConnectors)(w, r)
			return
		}
		connectorHandler.HandleConnectors(w, r)
	})

	mux.HandleFunc("/api/connectors/stats", connectorHandler.ConnectorStats)
	mux.HandleFunc("/api/connectors/test-all", protect(connectorHandler.TestAllConnectors))

	// Per-connector routes: /api/connectors/{id}[/test|/data]
	mux.HandleFunc("/api/connectors/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut || r.Method == http.MethodDelete ||
			strings.HasSuffix(r.URL.Path, "/test") {
			protect(connectorHandler.HandleConnectorByID)(w, r)
			return
		}
		connectorHandler.HandleConnectorByID(w, r)
	})

	// Health check endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
