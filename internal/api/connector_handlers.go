package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pulseboard/pulseboard/internal/connectors"
	"github.com/pulseboard/pulseboard/internal/models"
)

// ConnectorHandlers manages the external data connector endpoints
type ConnectorHandlers struct {
	service *connectors.Service
	logger  *slog.Logger
}

// NewConnectorHandlers creates connector handlers
func NewConnectorHandlers(service *connectors.Service, logger *slog.Logger) *ConnectorHandlers {
	return &ConnectorHandlers{
		service: service,
		logger:  logger,
	}
}

// CreateConnectorRequest represents a connector creation request
type CreateConnectorRequest struct {
	Name        string            `json:"name"`
	Provider    string            `json:"provider"`
	Category    string            `json:"category"`
	Credential  string            `json:"credential"`
	Endpoint    string            `json:"endpoint"`
	Description string            `json:"description"`
	Headers     map[string]string `json:"headers"`
	Parameters  map[string]string `json:"parameters"`
	RateLimit   int               `json:"rate_limit"`
}

// UpdateConnectorRequest represents a partial connector update. Omitted
// fields keep their current value; clear_credential removes the stored
// credential regardless of the credential field.
type UpdateConnectorRequest struct {
	Name            *string           `json:"name"`
	Provider        *string           `json:"provider"`
	Category        *string           `json:"category"`
	Credential      *string           `json:"credential"`
	ClearCredential bool              `json:"clear_credential"`
	Endpoint        *string           `json:"endpoint"`
	Description     *string           `json:"description"`
	Headers         map[string]string `json:"headers"`
	Parameters      map[string]string `json:"parameters"`
	RateLimit       *int              `json:"rate_limit"`
}

// maskSecret hides all but the last four characters of a credential.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) > 4 {
		return "***" + secret[len(secret)-4:]
	}
	return "***"
}

// masked returns a copy of the connector safe to serialize: the stored
// credential never leaves the service in the clear.
func masked(c models.Connector) models.Connector {
	c.Config.Credential = maskSecret(c.Config.Credential)
	return c
}

func maskedList(list []models.Connector) []models.Connector {
	out := make([]models.Connector, len(list))
	for i, c := range list {
		out[i] = masked(c)
	}
	return out
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func (h *ConnectorHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeServiceError maps service errors to HTTP status codes
func (h *ConnectorHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var vErr connectors.ValidationError
	if errors.As(err, &vErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": vErr.Message,
			"field": vErr.Field,
		})
		return
	}

	var nfErr connectors.NotFoundError
	if errors.As(err, &nfErr) {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	h.logger.Error("connector operation failed", "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// HandleConnectors handles /api/connectors
func (h *ConnectorHandlers) HandleConnectors(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.listConnectors(w, r)
	case http.MethodPost:
		h.createConnector(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConnectorHandlers) listConnectors(w http.ResponseWriter, r *http.Request) {
	connected, _ := strconv.ParseBool(r.URL.Query().Get("connected"))

	var list []models.Connector
	switch {
	case connected:
		list = h.service.ListConnected()
	case r.URL.Query().Get("category") != "":
		category := models.Category(r.URL.Query().Get("category"))
		if !models.ValidCategory(category) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown category"})
			return
		}
		list = h.service.ListByCategory(category)
	default:
		list = h.service.List()
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connectors": maskedList(list),
	})
}

func (h *ConnectorHandlers) createConnector(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	connector, err := h.service.Add(r.Context(), models.ConnectorConfig{
		Name:        req.Name,
		Provider:    req.Provider,
		Category:    models.Category(req.Category),
		Credential:  req.Credential,
		Endpoint:    req.Endpoint,
		Description: req.Description,
		Headers:     req.Headers,
		Parameters:  req.Parameters,
		RateLimit:   req.RateLimit,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, masked(connector))
}

// HandleConnectorByID handles /api/connectors/{id} and its sub-resources
func (h *ConnectorHandlers) HandleConnectorByID(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Path shapes: /api/connectors/{id}, /api/connectors/{id}/test,
	// /api/connectors/{id}/data
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[2] == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	id := parts[2]

	if len(parts) == 4 {
		switch parts[3] {
		case "test":
			h.testConnector(w, r, id)
		case "data":
			h.connectorData(w, r, id)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		connector, err := h.service.Get(id)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, masked(connector))
	case http.MethodPut:
		h.updateConnector(w, r, id)
	case http.MethodDelete:
		if err := h.service.Delete(r.Context(), id); err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConnectorHandlers) updateConnector(w http.ResponseWriter, r *http.Request, id string) {
	var req UpdateConnectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	upd := connectors.ConnectorUpdate{
		Name:        req.Name,
		Provider:    req.Provider,
		Credential:  req.Credential,
		Endpoint:    req.Endpoint,
		Description: req.Description,
		Headers:     req.Headers,
		Parameters:  req.Parameters,
		RateLimit:   req.RateLimit,
	}
	if req.Category != nil {
		category := models.Category(*req.Category)
		upd.Category = &category
	}
	// A blank credential means "keep the stored one"; only the explicit
	// clear_credential flag erases it.
	if upd.Credential != nil && strings.TrimSpace(*upd.Credential) == "" {
		upd.Credential = nil
	}
	if req.ClearCredential {
		empty := ""
		upd.Credential = &empty
	}

	connector, err := h.service.Update(r.Context(), id, upd)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, masked(connector))
}

func (h *ConnectorHandlers) testConnector(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	connector, err := h.service.Test(r.Context(), id)
	if err != nil {
		var nfErr connectors.NotFoundError
		if errors.As(err, &nfErr) {
			h.writeServiceError(w, err)
			return
		}
		// A failed test is a result, not an HTTP error: the connector's
		// state carries the failure message.
		h.writeJSON(w, http.StatusOK, masked(connector))
		return
	}

	h.writeJSON(w, http.StatusOK, masked(connector))
}

func (h *ConnectorHandlers) connectorData(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := h.service.Get(id); err != nil {
		h.writeServiceError(w, err)
		return
	}

	payload, ok := h.service.CachedData(id)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data cached for connector"})
		return
	}

	h.writeJSON(w, http.StatusOK, payload)
}

// TestAllConnectors handles POST /api/connectors/test-all
func (h *ConnectorHandlers) TestAllConnectors(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list := h.service.TestAll(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connectors": maskedList(list),
	})
}

// ConnectorStats handles GET /api/connectors/stats
func (h *ConnectorHandlers) ConnectorStats(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, h.service.Stats())
}
