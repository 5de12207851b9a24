package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestConnectorCollectorRecordsMetrics(t *testing.T) {
	httpCollector, err := NewHTTPCollector()
	if err != nil {
		t.Fatalf("NewHTTPCollector returned error: %v", err)
	}

	collector, err := NewConnectorCollector(httpCollector.Registerer())
	if err != nil {
		t.Fatalf("NewConnectorCollector returned error: %v", err)
	}

	collector.RecordTest("Alpha Vantage", "success")
	collector.RecordTest("Alpha Vantage", "failure")
	collector.RecordPoll("NewsAPI", "success")
	collector.ObserveLatency("Alpha Vantage", 120*time.Millisecond)
	collector.SetConnected(3)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	httpCollector.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	checks := []string{
		`pulseboard_connectors_tests_total{outcome="success",provider="Alpha Vantage"} 1`,
		`pulseboard_connectors_tests_total{outcome="failure",provider="Alpha Vantage"} 1`,
		`pulseboard_connectors_polls_total{outcome="success",provider="NewsAPI"} 1`,
		`pulseboard_connectors_test_latency_seconds_count{provider="Alpha Vantage"} 1`,
		`pulseboard_connectors_connected 3`,
	}
	for _, want := range checks {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestConnectorCollectorRejectsDuplicateRegistration(t *testing.T) {
	httpCollector, err := NewHTTPCollector()
	if err != nil {
		t.Fatalf("NewHTTPCollector returned error: %v", err)
	}

	if _, err := NewConnectorCollector(httpCollector.Registerer()); err != nil {
		t.Fatalf("first registration returned error: %v", err)
	}
	if _, err := NewConnectorCollector(httpCollector.Registerer()); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
