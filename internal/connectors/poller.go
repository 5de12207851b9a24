package connectors

import (
	"context"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// poller refreshes one connected connector on a fixed cadence. It runs until
// its stop channel closes; every tick re-checks the connector under the
// service lock so a deletion or status change between ticks ends the loop
// without a trailing write.
type poller struct {
	interval time.Duration
	stopCh   chan struct{}
}

// pollInterval derives the cadence from the connector's rate limit, clamped
// to the configured floor. RateLimit is requests per hour; zero means the
// floor applies.
func (s *Service) pollInterval(cfg models.ConnectorConfig) time.Duration {
	interval := s.cfg.PollFloor
	if cfg.RateLimit > 0 {
		budgeted := time.Hour / time.Duration(cfg.RateLimit)
		if budgeted > interval {
			interval = budgeted
		}
	}
	return interval
}

func (s *Service) startPollerLocked(sl *slot) {
	s.stopPollerLocked(sl)
	p := &poller{
		interval: s.pollInterval(sl.config),
		stopCh:   make(chan struct{}),
	}
	sl.poller = p
	go s.runPoller(sl.config.ID, p)
	s.logger.Info("poller started", "id", sl.config.ID, "interval", p.interval)
}

func (s *Service) stopPollerLocked(sl *slot) {
	if sl.poller != nil {
		close(sl.poller.stopCh)
		sl.poller = nil
	}
}

func (s *Service) runPoller(id string, p *poller) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if !s.pollOnce(id, p) {
				return
			}
		}
	}
}

// pollOnce refreshes the connector's cached payload. It returns false when
// the poller no longer owns the connector and must exit.
func (s *Service) pollOnce(id string, p *poller) bool {
	s.mu.Lock()
	sl, ok := s.slots[id]
	if !ok || sl.poller != p || sl.state.Status != models.StatusConnected {
		s.mu.Unlock()
		return false
	}
	cfg := sl.config
	s.mu.Unlock()

	payload, _, err := s.execute(context.Background(), cfg, s.cfg.TestTimeout)

	s.mu.Lock()
	sl, ok = s.slots[id]
	if !ok || sl.poller != p || sl.state.Status != models.StatusConnected {
		s.mu.Unlock()
		return false
	}

	sl.state.RequestsToday++
	sl.state.LastUpdate = s.clock.Now()

	if err != nil {
		// One failed poll ends the schedule: the connector goes to error and
		// stays there until an explicit re-test. The stale cache entry
		// remains readable.
		s.stopPollerLocked(sl)
		sl.state.Status = models.StatusError
		sl.state.LastMessage = err.Error()
		deliver, commitErr := s.commitLocked(context.Background())
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.RecordPoll(cfg.Provider, "failure")
		}
		s.logger.Warn("poll failed, connector stopped", "id", id, "provider", cfg.Provider, "error", err)
		if commitErr == nil {
			deliver()
		}
		return false
	}

	if !payload.Empty() {
		s.cache[id] = payload
	}
	deliver, commitErr := s.commitLocked(context.Background())
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordPoll(cfg.Provider, "success")
	}
	if commitErr != nil {
		return true
	}
	deliver()
	return true
}
