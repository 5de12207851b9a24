package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/provider"
	"github.com/pulseboard/pulseboard/internal/storage"
)

// Doer executes one HTTP request. *http.Client satisfies it; tests inject a
// fake to avoid real network calls.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clock supplies the current time so tests can run without real timers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Subscriber receives the full connector list after every mutation.
type Subscriber func([]models.Connector)

type subscription struct {
	id int
	fn Subscriber
}

// slot is the service-owned pairing of a connector's config, runtime state
// and running poller. All access goes through the service mutex.
type slot struct {
	config models.ConnectorConfig
	state  models.ConnectorRuntimeState
	poller *poller
	// gen increments on every test start; a test whose generation is stale
	// by the time its request resolves discards its result (last wins).
	gen int
}

// Service owns the connector list, the last-value cache and the subscriber
// list. It is the single mutator of that state: testers and pollers return
// values that the service applies under its lock.
type Service struct {
	cfg      config.ConnectorsConfig
	store    storage.KeyValueStore
	registry *provider.Registry
	client   Doer
	clock    Clock
	metrics  *metrics.ConnectorCollector
	logger   *slog.Logger

	mu     sync.Mutex
	order  []string
	slots  map[string]*slot
	cache  map[string]models.Payload
	subs   []subscription
	nextID int
	closed bool
}

// New constructs the service, loads persisted state, and seeds the default
// connectors when starting from an empty store. No pollers are started:
// every connector must pass a fresh test after a restart.
func New(
	cfg config.ConnectorsConfig,
	store storage.KeyValueStore,
	registry *provider.Registry,
	client Doer,
	clock Clock,
	collector *metrics.ConnectorCollector,
	logger *slog.Logger,
) (*Service, error) {
	if client == nil {
		client = &http.Client{}
	}
	if clock == nil {
		clock = systemClock{}
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		registry: registry,
		client:   client,
		clock:    clock,
		metrics:  collector,
		logger:   logger,
		slots:    make(map[string]*slot),
		cache:    make(map[string]models.Payload),
	}

	if err := s.load(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load(ctx context.Context) error {
	raw, err := s.store.Get(ctx, s.cfg.StateKey)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return fmt.Errorf("failed to load connector state: %w", err)
	}

	var loaded []models.Connector
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &loaded); err != nil {
			return fmt.Errorf("failed to decode connector state: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range loaded {
		// A poller never survives a restart, so live statuses demote until
		// the connector passes a fresh test.
		if c.State.Status == models.StatusConnected || c.State.Status == models.StatusTesting {
			c.State.Status = models.StatusDisconnected
		}
		s.order = append(s.order, c.Config.ID)
		s.slots[c.Config.ID] = &slot{config: c.Config, state: c.State}
	}

	if len(s.order) == 0 {
		s.seedDefaultsLocked()
		if err := s.persistLocked(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("connector state loaded", "connectors", len(s.order))
	s.updateConnectedGaugeLocked()
	return nil
}

// seedDefaultsLocked installs the out-of-the-box connectors on first start.
// They carry no credential, so no validation and no connection test apply.
func (s *Service) seedDefaultsLocked() {
	defaults := []models.ConnectorConfig{
		{
			Name:        "Alpha Vantage Market Data",
			Provider:    "Alpha Vantage",
			Category:    models.CategoryMarketData,
			Endpoint:    "https://www.alphavantage.co",
			Description: "Real-time and historical stock market data",
		},
		{
			Name:        "NewsAPI Financial News",
			Provider:    "NewsAPI",
			Category:    models.CategoryNews,
			Endpoint:    "https://newsapi.org/v2",
			Description: "Latest financial news and market updates",
		},
	}

	for _, cfg := range defaults {
		cfg.ID = uuid.NewString()
		cfg.CreatedAt = s.clock.Now()
		s.order = append(s.order, cfg.ID)
		s.slots[cfg.ID] = &slot{
			config: cfg,
			state: models.ConnectorRuntimeState{
				Status:      models.StatusDisconnected,
				LastMessage: "credential required",
			},
		}
	}
	s.logger.Info("seeded default connectors", "count", len(defaults))
}

// Add validates and registers a new connector. When a credential is supplied
// the connection is tested before Add returns.
func (s *Service) Add(ctx context.Context, cfg models.ConnectorConfig) (models.Connector, error) {
	if err := s.validate(cfg); err != nil {
		return models.Connector{}, err
	}

	cfg.ID = uuid.NewString()
	cfg.Credential = strings.TrimSpace(cfg.Credential)
	cfg.CreatedAt = s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.Connector{}, errors.New("service is closed")
	}
	sl := &slot{
		config: cfg,
		state:  models.ConnectorRuntimeState{Status: models.StatusDisconnected},
	}
	s.order = append(s.order, cfg.ID)
	s.slots[cfg.ID] = sl
	deliver, err := s.commitLocked(ctx)
	if err != nil {
		// Roll back so a failed persist never leaves a phantom connector.
		delete(s.slots, cfg.ID)
		s.order = s.order[:len(s.order)-1]
		s.mu.Unlock()
		return models.Connector{}, err
	}
	s.mu.Unlock()
	deliver()

	s.logger.Info("connector added", "id", cfg.ID, "provider", cfg.Provider, "category", cfg.Category)

	if cfg.Credential != "" {
		s.Test(ctx, cfg.ID)
	}

	return s.Get(cfg.ID)
}

func (s *Service) validate(cfg models.ConnectorConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if strings.TrimSpace(cfg.Provider) == "" {
		return ValidationError{Field: "provider", Message: "provider is required"}
	}
	if !models.ValidCategory(cfg.Category) {
		return ValidationError{Field: "category", Message: "unknown category"}
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return ValidationError{Field: "endpoint", Message: "endpoint is required"}
	}
	if s.registry.RequiresCredential(cfg.Provider) && strings.TrimSpace(cfg.Credential) == "" {
		return ValidationError{
			Field:   "credential",
			Message: fmt.Sprintf("a credential is required for %s", cfg.Provider),
		}
	}
	return nil
}

// ConnectorUpdate carries the partial fields of an update. Nil pointers leave
// the current value untouched; a pointer to the empty string clears the
// credential.
type ConnectorUpdate struct {
	Name        *string
	Provider    *string
	Category    *models.Category
	Credential  *string
	Endpoint    *string
	Description *string
	Headers     map[string]string
	Parameters  map[string]string
	RateLimit   *int
}

// Update merges the partial fields into the connector. When the credential or
// endpoint changed and a credential is present afterwards, the connection is
// re-tested before Update returns. Clearing the credential of a connected
// connector stops its poller immediately: no trailing poll may fire.
func (s *Service) Update(ctx context.Context, id string, upd ConnectorUpdate) (models.Connector, error) {
	s.mu.Lock()
	sl, ok := s.slots[id]
	if !ok {
		s.mu.Unlock()
		return models.Connector{}, NotFoundError{ID: id}
	}

	merged := sl.config
	if upd.Name != nil {
		merged.Name = *upd.Name
	}
	if upd.Provider != nil {
		merged.Provider = *upd.Provider
	}
	if upd.Category != nil {
		merged.Category = *upd.Category
	}
	if upd.Credential != nil {
		merged.Credential = strings.TrimSpace(*upd.Credential)
	}
	if upd.Endpoint != nil {
		merged.Endpoint = *upd.Endpoint
	}
	if upd.Description != nil {
		merged.Description = *upd.Description
	}
	if upd.Headers != nil {
		merged.Headers = upd.Headers
	}
	if upd.Parameters != nil {
		merged.Parameters = upd.Parameters
	}
	if upd.RateLimit != nil {
		merged.RateLimit = *upd.RateLimit
	}

	if strings.TrimSpace(merged.Name) == "" || strings.TrimSpace(merged.Provider) == "" ||
		strings.TrimSpace(merged.Endpoint) == "" || !models.ValidCategory(merged.Category) {
		s.mu.Unlock()
		return models.Connector{}, ValidationError{Field: "update", Message: "update empties a required field"}
	}

	credentialChanged := merged.Credential != sl.config.Credential
	endpointChanged := merged.Endpoint != sl.config.Endpoint
	sl.config = merged

	if merged.Credential == "" && sl.state.Status == models.StatusConnected {
		s.stopPollerLocked(sl)
		sl.state.Status = models.StatusDisconnected
		sl.state.LastMessage = "credential required"
		sl.state.LastUpdate = s.clock.Now()
	}

	deliver, err := s.commitLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return models.Connector{}, err
	}
	deliver()

	s.logger.Info("connector updated", "id", id)

	if (credentialChanged || endpointChanged) && merged.Credential != "" {
		s.Test(ctx, id)
	}

	return s.Get(id)
}

// Delete removes the connector, stops its poller and drops its cache entry.
// After Delete returns, no cache write or notification for this id can occur.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	sl, ok := s.slots[id]
	if !ok {
		s.mu.Unlock()
		return NotFoundError{ID: id}
	}

	s.stopPollerLocked(sl)
	delete(s.slots, id)
	delete(s.cache, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	deliver, err := s.commitLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	deliver()

	s.logger.Info("connector deleted", "id", id)
	return nil
}

// Get returns a snapshot of one connector.
func (s *Service) Get(id string) (models.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[id]
	if !ok {
		return models.Connector{}, NotFoundError{ID: id}
	}
	return models.Connector{Config: sl.config, State: sl.state}, nil
}

// List returns all connectors in creation order.
func (s *Service) List() []models.Connector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ListByCategory returns the connectors of one category.
func (s *Service) ListByCategory(category models.Category) []models.Connector {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Connector
	for _, id := range s.order {
		sl := s.slots[id]
		if sl.config.Category == category {
			out = append(out, models.Connector{Config: sl.config, State: sl.state})
		}
	}
	return out
}

// ListConnected returns the connectors currently in status connected.
func (s *Service) ListConnected() []models.Connector {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Connector
	for _, id := range s.order {
		sl := s.slots[id]
		if sl.state.Status == models.StatusConnected {
			out = append(out, models.Connector{Config: sl.config, State: sl.state})
		}
	}
	return out
}

// CachedData returns the most recent successful payload for the connector.
// ok is false for unknown ids and for connectors that never passed a test.
func (s *Service) CachedData(id string) (models.Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.cache[id]
	return payload, ok
}

// Stats returns derived counts over the whole connector list.
func (s *Service) Stats() models.ConnectorStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.ConnectorStats{Total: len(s.order)}
	var latencySum time.Duration
	for _, id := range s.order {
		sl := s.slots[id]
		if sl.state.Status == models.StatusConnected {
			stats.Connected++
		}
		stats.TotalRequests += sl.state.RequestsToday
		latencySum += sl.state.Latency
	}
	if stats.Total > 0 {
		stats.AvgLatency = latencySum / time.Duration(stats.Total)
		stats.UptimePercent = stats.Connected * 100 / stats.Total
	}
	return stats
}

// Subscribe registers fn and immediately delivers the current connector list.
// It returns the id to pass to Unsubscribe.
func (s *Service) Subscribe(fn Subscriber) int {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	fn(snapshot)
	return id
}

// Unsubscribe removes the subscription. Unknown ids are ignored.
func (s *Service) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Close stops every poller. The service must not be used afterwards.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, id := range s.order {
		s.stopPollerLocked(s.slots[id])
	}
	s.logger.Info("connector service closed")
}

func (s *Service) snapshotLocked() []models.Connector {
	out := make([]models.Connector, 0, len(s.order))
	for _, id := range s.order {
		sl := s.slots[id]
		out = append(out, models.Connector{Config: sl.config, State: sl.state})
	}
	return out
}

// commitLocked persists the full state and prepares the fan-out. Persist
// comes first so subscribers never observe state that failed to persist; on
// a persist error no notification is emitted and the error is returned.
func (s *Service) commitLocked(ctx context.Context) (func(), error) {
	if err := s.persistLocked(ctx); err != nil {
		s.logger.Error("failed to persist connector state", "error", err)
		return nil, err
	}

	snapshot := s.snapshotLocked()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.updateConnectedGaugeLocked()

	return func() {
		for _, sub := range subs {
			sub.fn(snapshot)
		}
	}, nil
}

func (s *Service) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(s.snapshotLocked())
	if err != nil {
		return fmt.Errorf("failed to encode connector state: %w", err)
	}
	if err := s.store.Put(ctx, s.cfg.StateKey, raw); err != nil {
		return fmt.Errorf("failed to persist connector state: %w", err)
	}
	return nil
}

func (s *Service) updateConnectedGaugeLocked() {
	if s.metrics == nil {
		return
	}
	connected := 0
	for _, id := range s.order {
		if s.slots[id].state.Status == models.StatusConnected {
			connected++
		}
	}
	s.metrics.SetConnected(connected)
}
