package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/storage"
)

func TestPollIntervalRespectsFloor(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	tests := []struct {
		name      string
		rateLimit int
		want      time.Duration
	}{
		{"no rate limit", 0, time.Hour},
		{"generous rate limit stays at floor", 100000, time.Hour},
		{"budget below floor clamps up", 2, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.pollInterval(models.ConnectorConfig{RateLimit: tt.rateLimit})
			if got != tt.want {
				t.Errorf("pollInterval(rate=%d) = %s, want %s", tt.rateLimit, got, tt.want)
			}
		})
	}
}

func TestPollIntervalStretchesAboveFloor(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	svc.cfg.PollFloor = time.Minute

	// 4 requests per hour budgets one poll every 15 minutes.
	got := svc.pollInterval(models.ConnectorConfig{RateLimit: 4})
	if got != 15*time.Minute {
		t.Errorf("pollInterval = %s, want 15m", got)
	}

	// 120 requests per hour budgets 30s, clamped up to the floor.
	got = svc.pollInterval(models.ConnectorConfig{RateLimit: 120})
	if got != time.Minute {
		t.Errorf("pollInterval = %s, want 1m", got)
	}
}

func TestSuccessfulTestStartsPoller(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	id := addCredentialedConnector(t, svc)

	svc.mu.Lock()
	sl := svc.slots[id]
	hasPoller := sl.poller != nil
	svc.mu.Unlock()
	if !hasPoller {
		t.Fatal("expected a running poller after a successful test")
	}
}

func TestPollOnceStopsAfterDelete(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	id := addCredentialedConnector(t, svc)

	svc.mu.Lock()
	p := svc.slots[id].poller
	svc.mu.Unlock()

	if err := svc.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if svc.pollOnce(id, p) {
		t.Error("pollOnce must report exit for a deleted connector")
	}
	if _, ok := svc.CachedData(id); ok {
		t.Error("poll after delete repopulated the cache")
	}
}

func TestPollOnceStopsAfterReplacement(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	id := addCredentialedConnector(t, svc)
	svc.mu.Lock()
	old := svc.slots[id].poller
	svc.mu.Unlock()

	// A second test replaces the poller; the old one must stand down.
	if _, err := svc.Test(context.Background(), id); err != nil {
		t.Fatalf("Test returned error: %v", err)
	}

	if svc.pollOnce(id, old) {
		t.Error("pollOnce must report exit for a replaced poller")
	}
}

func TestPollOnceRefreshesCacheAndCounters(t *testing.T) {
	svc, clock := newTestService(t, nil, nil)

	id := addCredentialedConnector(t, svc)
	before, err := svc.Get(id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	clock.Advance(time.Minute)
	svc.mu.Lock()
	p := svc.slots[id].poller
	svc.mu.Unlock()

	if !svc.pollOnce(id, p) {
		t.Fatal("pollOnce reported exit for a healthy connector")
	}

	after, err := svc.Get(id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if after.State.RequestsToday != before.State.RequestsToday+1 {
		t.Errorf("requests today = %d, want %d", after.State.RequestsToday, before.State.RequestsToday+1)
	}
	if !after.State.LastUpdate.After(before.State.LastUpdate) {
		t.Errorf("last update not advanced: %s", after.State.LastUpdate)
	}
	if after.State.Status != models.StatusConnected {
		t.Errorf("status = %q, want connected", after.State.Status)
	}
}

func TestPollFailureStopsPollerAndRecordsError(t *testing.T) {
	failing := false
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		if failing {
			return jsonResponse(http.StatusInternalServerError, `{}`), nil
		}
		return jsonResponse(http.StatusOK, globalQuoteBody), nil
	})
	store := storage.NewMemoryStore()
	svc, clock := newTestService(t, store, doer)

	id := addCredentialedConnector(t, svc)

	svc.mu.Lock()
	p := svc.slots[id].poller
	svc.mu.Unlock()

	failing = true
	clock.Advance(time.Minute)
	if svc.pollOnce(id, p) {
		t.Fatal("pollOnce must report exit after a failed poll")
	}

	c, err := svc.Get(id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if c.State.Status != models.StatusError {
		t.Errorf("status = %q, want error", c.State.Status)
	}
	if c.State.LastMessage == "" {
		t.Error("expected a failure message")
	}
	if c.State.RequestsToday != 2 {
		t.Errorf("requests today = %d, want 2", c.State.RequestsToday)
	}

	svc.mu.Lock()
	stopped := svc.slots[id].poller == nil
	svc.mu.Unlock()
	if !stopped {
		t.Error("poller still registered after a failed poll")
	}

	// The error state must survive a restart.
	raw, err := store.Get(context.Background(), "connector_state")
	if err != nil {
		t.Fatalf("Get from store returned error: %v", err)
	}
	var persisted []models.Connector
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("unmarshal persisted state: %v", err)
	}
	for _, pc := range persisted {
		if pc.Config.ID != id {
			continue
		}
		if pc.State.Status != models.StatusError {
			t.Errorf("persisted status = %q, want error", pc.State.Status)
		}
		if pc.State.RequestsToday != 2 {
			t.Errorf("persisted requests today = %d, want 2", pc.State.RequestsToday)
		}
	}

	// Recovery needs an explicit re-test.
	failing = false
	after, err := svc.Test(context.Background(), id)
	if err != nil {
		t.Fatalf("Test returned error: %v", err)
	}
	if after.State.Status != models.StatusConnected {
		t.Errorf("status after re-test = %q, want connected", after.State.Status)
	}
}
