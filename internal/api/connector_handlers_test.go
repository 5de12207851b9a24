package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/connectors"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/provider"
	"github.com/pulseboard/pulseboard/internal/storage"
)

type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func okDoer(body string) doerFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}
}

const quoteBody = `{
	"Global Quote": {
		"01. symbol": "RELIANCE.BSE",
		"05. price": "2871.45",
		"06. volume": "1500000",
		"09. change": "12.30",
		"10. change percent": "0.43%"
	}
}`

func newTestMux(t *testing.T, client connectors.Doer) (*http.ServeMux, *connectors.Service, auth.Config) {
	t.Helper()

	if client == nil {
		client = okDoer(quoteBody)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.ConnectorsConfig{
		PollFloor:   time.Hour,
		TestTimeout: 10 * time.Second,
		StateKey:    "connector_state",
	}

	service, err := connectors.New(cfg, storage.NewMemoryStore(), provider.NewDefaultRegistry(), client, nil, nil, logger)
	if err != nil {
		t.Fatalf("connectors.New returned error: %v", err)
	}
	t.Cleanup(service.Close)

	hash, err := auth.HashPassword("test-password")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	authConfig := auth.Config{
		JWTSecret:         "test-secret",
		AdminPasswordHash: hash,
		TokenDuration:     time.Hour,
	}

	mux := http.NewServeMux()
	SetupRoutes(mux, service, authConfig, logger)
	return mux, service, authConfig
}

func loginToken(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	body := bytes.NewBufferString(`{"password":"test-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rr.Code, rr.Body.String())
	}

	var resp LoginResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return resp.Token
}

func TestListConnectorsMasksCredentials(t *testing.T) {
	mux, service, _ := newTestMux(t, nil)

	_, err := service.Add(context.Background(), models.ConnectorConfig{
		Name:       "AV",
		Provider:   "Alpha Vantage",
		Category:   models.CategoryMarketData,
		Endpoint:   "https://www.alphavantage.co",
		Credential: "super-secret-key-1234",
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/connectors", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("list returned %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "super-secret-key-1234") {
		t.Fatal("response leaked a credential")
	}
	if !strings.Contains(rr.Body.String(), `"***1234"`) {
		t.Errorf("expected masked credential in response: %s", rr.Body.String())
	}
}

func TestCreateConnectorRequiresAuth(t *testing.T) {
	mux, _, _ := newTestMux(t, nil)

	body := bytes.NewBufferString(`{"name":"Feed","provider":"custom","category":"crypto","endpoint":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/connectors", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create returned %d, want 401", rr.Code)
	}
}

func TestCreateConnector(t *testing.T) {
	mux, _, _ := newTestMux(t, nil)
	token := loginToken(t, mux)

	body := bytes.NewBufferString(`{"name":"Feed","provider":"custom","category":"crypto","endpoint":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/connectors", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rr.Code, rr.Body.String())
	}

	var created models.Connector
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.Config.ID == "" {
		t.Error("expected a generated id")
	}
	if created.State.Status != models.StatusDisconnected {
		t.Errorf("status = %q, want disconnected", created.State.Status)
	}
}

func TestCreateConnectorValidation(t *testing.T) {
	mux, _, _ := newTestMux(t, nil)
	token := loginToken(t, mux)

	body := bytes.NewBufferString(`{"provider":"custom","category":"crypto","endpoint":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/connectors", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid create returned %d, want 400", rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["field"] != "name" {
		t.Errorf("field = %q, want name", resp["field"])
	}
}

func TestGetConnectorNotFound(t *testing.T) {
	mux, _, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/connectors/no-such-id", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("get returned %d, want 404", rr.Code)
	}
}

func TestUpdateConnectorClearCredential(t *testing.T) {
	mux, service, _ := newTestMux(t, nil)
	token := loginToken(t, mux)

	added, err := service.Add(context.Background(), models.ConnectorConfig{
		Name:       "AV",
		Provider:   "Alpha Vantage",
		Category:   models.CategoryMarketData,
		Endpoint:   "https://www.alphavantage.co",
		Credential: "demo-key",
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if added.State.Status != models.StatusConnected {
		t.Fatalf("status = %q, want connected", added.State.Status)
	}

	body := bytes.NewBufferString(`{"clear_credential":true}`)
	req := httptest.NewRequest(http.MethodPut, "/api/connectors/"+added.Config.ID, body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rr.Code, rr.Body.String())
	}

	var updated models.Connector
	if err := json.NewDecoder(rr.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.State.Status != models.StatusDisconnected {
		t.Errorf("status = %q, want disconnected", updated.State.Status)
	}
	if updated.Config.Credential != "" {
		t.Errorf("credential not cleared: %q", updated.Config.Credential)
	}
}

func TestUpdateConnectorBlankCredentialKeepsStored(t *testing.T) {
	mux, service, _ := newTestMux(t, nil)
	token := loginToken(t, mux)

	added, err := service.Add(context.Background(), models.ConnectorConfig{
		Name:       "AV",
		Provider:   "Alpha Vantage",
		Category:   models.CategoryMarketData,
		Endpoint:   "https://www.alphavantage.co",
		Credential: "demo-key",
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	// Edit forms echo the masked credential back as an empty string; that
	// must not wipe the stored secret.
	body := bytes.NewBufferString(`{"name":"Renamed","credential":""}`)
	req := httptest.NewRequest(http.MethodPut, "/api/connectors/"+added.Config.ID, body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rr.Code, rr.Body.String())
	}

	current, err := service.Get(added.Config.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if current.Config.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", current.Config.Name)
	}
	if current.Config.Credential != "demo-key" {
		t.Errorf("credential = %q, want the stored demo-key", current.Config.Credential)
	}
	if current.State.Status != models.StatusConnected {
		t.Errorf("status = %q, want connected", current.State.Status)
	}
}

func TestTestConnectorEndpointReportsFailureState(t *testing.T) {
	failing := doerFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Body:       io.NopCloser(strings.NewReader("{}")),
		}, nil
	})
	mux, service, _ := newTestMux(t, failing)
	token := loginToken(t, mux)

	added, err := service.Add(context.Background(), models.ConnectorConfig{
		Name:       "AV",
		Provider:   "Alpha Vantage",
		Category:   models.CategoryMarketData,
		Endpoint:   "https://www.alphavantage.co",
		Credential: "demo-key",
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	id := added.Config.ID

	req := httptest.NewRequest(http.MethodPost, "/api/connectors/"+id+"/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("test returned %d: %s", rr.Code, rr.Body.String())
	}

	var c models.Connector
	if err := json.NewDecoder(rr.Body).Decode(&c); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if c.State.Status != models.StatusError {
		t.Errorf("status = %q, want error", c.State.Status)
	}
	if c.State.LastMessage == "" {
		t.Error("expected a failure message")
	}
}

func TestConnectorDataEndpoint(t *testing.T) {
	mux, service, _ := newTestMux(t, okDoer(`{"rates":{"USD":1.0}}`))
	token := loginToken(t, mux)

	// An unknown provider needs no credential, so nothing is tested on add
	// and the cache starts empty.
	added, err := service.Add(context.Background(), models.ConnectorConfig{
		Name:     "FX Feed",
		Provider: "internal fx feed",
		Category: models.CategoryEconomic,
		Endpoint: "https://fx.internal.example.com",
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	id := added.Config.ID

	// No data before the first successful test
	req := httptest.NewRequest(http.MethodGet, "/api/connectors/"+id+"/data", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("data before test returned %d, want 404", rr.Code)
	}

	testReq := httptest.NewRequest(http.MethodPost, "/api/connectors/"+id+"/test", nil)
	testReq.Header.Set("Authorization", "Bearer "+token)
	testRR := httptest.NewRecorder()
	mux.ServeHTTP(testRR, testReq)
	if testRR.Code != http.StatusOK {
		t.Fatalf("test returned %d", testRR.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/connectors/"+id+"/data", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("data after test returned %d", rr.Code)
	}

	var payload models.Payload
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if !strings.Contains(string(payload.Raw), `"USD"`) {
		t.Errorf("unexpected payload: %s", payload.Raw)
	}
}

func TestConnectorStatsEndpoint(t *testing.T) {
	mux, _, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/connectors/stats", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("stats returned %d", rr.Code)
	}

	var stats models.ConnectorStats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2 seeded connectors", stats.Total)
	}
}

func TestListConnectorsCategoryFilter(t *testing.T) {
	mux, _, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/connectors?category=news", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("filtered list returned %d", rr.Code)
	}

	var resp struct {
		Connectors []models.Connector `json:"connectors"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Connectors) != 1 || resp.Connectors[0].Config.Provider != "NewsAPI" {
		t.Errorf("unexpected filtered connectors: %+v", resp.Connectors)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/connectors?category=weather", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown category returned %d, want 400", rr.Code)
	}
}

func TestListConnectorsConnectedFilter(t *testing.T) {
	mux, service, _ := newTestMux(t, nil)

	added, err := service.Add(context.Background(), models.ConnectorConfig{
		Name:       "AV",
		Provider:   "Alpha Vantage",
		Category:   models.CategoryMarketData,
		Endpoint:   "https://www.alphavantage.co",
		Credential: "demo-key",
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	for _, query := range []string{"connected=1", "connected=true"} {
		req := httptest.NewRequest(http.MethodGet, "/api/connectors?"+query, nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s returned %d", query, rr.Code)
		}

		var resp struct {
			Connectors []models.Connector `json:"connectors"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp.Connectors) != 1 || resp.Connectors[0].Config.ID != added.Config.ID {
			t.Errorf("%s: unexpected connectors: %+v", query, resp.Connectors)
		}
	}
}

func TestDeleteConnector(t *testing.T) {
	mux, service, _ := newTestMux(t, nil)
	token := loginToken(t, mux)

	id := service.List()[0].Config.ID

	req := httptest.NewRequest(http.MethodDelete, "/api/connectors/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", rr.Code, rr.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/connectors/"+id, nil)
	getRR := httptest.NewRecorder()
	mux.ServeHTTP(getRR, getReq)
	if getRR.Code != http.StatusNotFound {
		t.Errorf("get after delete returned %d, want 404", getRR.Code)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcd", "***"},
		{"abcdefgh", "***efgh"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
