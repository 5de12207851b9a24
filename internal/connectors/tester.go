package connectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/provider"
)

// Test runs a bounded connection test against the connector's provider. The
// connector transitions to testing immediately and to connected or error once
// the request resolves. When two tests overlap, the later one wins: a stale
// result is discarded without touching state.
func (s *Service) Test(ctx context.Context, id string) (models.Connector, error) {
	s.mu.Lock()
	sl, ok := s.slots[id]
	if !ok {
		s.mu.Unlock()
		return models.Connector{}, NotFoundError{ID: id}
	}

	// Providers in the requires-credential set may not leave disconnected
	// without one: no request is issued at all.
	if s.registry.RequiresCredential(sl.config.Provider) && sl.config.Credential == "" {
		s.stopPollerLocked(sl)
		sl.state.Status = models.StatusDisconnected
		sl.state.LastMessage = "credential required"
		sl.state.LastUpdate = s.clock.Now()
		deliver, err := s.commitLocked(ctx)
		snapshot := models.Connector{Config: sl.config, State: sl.state}
		s.mu.Unlock()
		if err != nil {
			return models.Connector{}, err
		}
		deliver()
		return snapshot, ValidationError{Field: "credential", Message: fmt.Sprintf("a credential is required for %s", sl.config.Provider)}
	}

	sl.gen++
	gen := sl.gen
	cfg := sl.config
	sl.state.Status = models.StatusTesting
	sl.state.LastMessage = ""
	deliver, err := s.commitLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return models.Connector{}, err
	}
	deliver()

	payload, latency, execErr := s.execute(ctx, cfg, s.cfg.TestTimeout)

	s.mu.Lock()
	sl, ok = s.slots[id]
	if !ok || sl.gen != gen {
		// Deleted or re-tested while this request was in flight.
		s.mu.Unlock()
		if !ok {
			return models.Connector{}, NotFoundError{ID: id}
		}
		return models.Connector{}, nil
	}

	now := s.clock.Now()
	sl.state.LastTested = now
	sl.state.LastUpdate = now
	sl.state.Latency = latency
	sl.state.RequestsToday++

	if execErr != nil {
		s.stopPollerLocked(sl)
		sl.state.Status = models.StatusError
		sl.state.LastMessage = execErr.Error()
		if s.metrics != nil {
			s.metrics.RecordTest(cfg.Provider, "failure")
		}
	} else {
		sl.state.Status = models.StatusConnected
		sl.state.LastMessage = "connection successful"
		if !payload.Empty() {
			s.cache[id] = payload
		}
		s.startPollerLocked(sl)
		if s.metrics != nil {
			s.metrics.RecordTest(cfg.Provider, "success")
			s.metrics.ObserveLatency(cfg.Provider, latency)
		}
	}

	deliver, err = s.commitLocked(ctx)
	snapshot := models.Connector{Config: sl.config, State: sl.state}
	s.mu.Unlock()
	if err != nil {
		return models.Connector{}, err
	}
	deliver()

	if execErr != nil {
		s.logger.Warn("connection test failed", "id", id, "provider", cfg.Provider, "error", execErr)
	} else {
		s.logger.Info("connection test passed", "id", id, "provider", cfg.Provider, "latency", latency)
	}
	return snapshot, execErr
}

// TestAll tests every connector concurrently and returns when all tests have
// resolved.
func (s *Service) TestAll(ctx context.Context) []models.Connector {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = s.Test(ctx, id)
		}(id)
	}
	wg.Wait()

	return s.List()
}

// execute performs one provider round trip under the given time limit and
// classifies the failure modes: timeout, transport error, non-success status,
// or a provider-level error surfaced by the adapter.
func (s *Service) execute(ctx context.Context, cfg models.ConnectorConfig, limit time.Duration) (models.Payload, time.Duration, error) {
	adapter := s.registry.Lookup(cfg.Provider)

	req, err := adapter.BuildRequest(cfg)
	if err != nil {
		return models.Payload{}, 0, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.FullURL(), nil)
	if err != nil {
		return models.Payload{}, 0, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header = req.Header

	start := s.clock.Now()
	resp, err := s.client.Do(httpReq)
	latency := s.clock.Now().Sub(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Payload{}, latency, TimeoutError{Limit: limit}
		}
		return models.Payload{}, latency, ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Payload{}, latency, TimeoutError{Limit: limit}
		}
		return models.Payload{}, latency, ConnectionError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Payload{}, latency, ConnectionError{StatusCode: resp.StatusCode}
	}

	payload, err := adapter.ParseResponse(cfg, body, s.clock.Now())
	if err != nil {
		var provErr *provider.ProviderError
		if errors.As(err, &provErr) {
			return models.Payload{}, latency, err
		}
		return models.Payload{}, latency, fmt.Errorf("failed to parse %s response: %w", cfg.Provider, err)
	}
	return payload, latency, nil
}
