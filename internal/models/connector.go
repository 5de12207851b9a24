package models

import (
	"encoding/json"
	"time"
)

// Status represents the connection lifecycle state of a connector.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusTesting      Status = "testing"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Category identifies the kind of data a connector supplies.
type Category string

const (
	CategoryMarketData  Category = "market-data"
	CategoryNews        Category = "news"
	CategoryTechnical   Category = "technical-analysis"
	CategoryFundamental Category = "fundamental-analysis"
	CategoryEconomic    Category = "economic-data"
	CategoryCrypto      Category = "crypto"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryMarketData, CategoryNews, CategoryTechnical,
		CategoryFundamental, CategoryEconomic, CategoryCrypto:
		return true
	}
	return false
}

// ConnectorConfig is the static configuration of one external data provider
// integration. It is owned by the connector service; nothing else mutates it.
type ConnectorConfig struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Provider    string            `json:"provider"`
	Category    Category          `json:"category"`
	Credential  string            `json:"credential"`
	Endpoint    string            `json:"endpoint"`
	Description string            `json:"description,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	RateLimit   int               `json:"rate_limit"` // Requests per hour declared by the provider
	CreatedAt   time.Time         `json:"created_at"`
}

// ConnectorRuntimeState is the mutable health/metrics record kept alongside a
// connector's configuration.
type ConnectorRuntimeState struct {
	Status        Status        `json:"status"`
	LastUpdate    time.Time     `json:"last_update"`
	LastMessage   string        `json:"last_message,omitempty"`
	Latency       time.Duration `json:"latency"`
	RequestsToday int           `json:"requests_today"`
	LastTested    time.Time     `json:"last_tested"`
}

// Connector pairs a configuration with its runtime state. This is the unit
// persisted to the key-value store and fanned out to subscribers.
type Connector struct {
	Config ConnectorConfig       `json:"config"`
	State  ConnectorRuntimeState `json:"state"`
}

// NormalizedRecord is the canonical cross-provider shape. Consumers depend on
// this shape only, never on a provider's native schema.
type NormalizedRecord struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Payload is the value cached per connector after a successful request.
// Adapters with a defined normalization fill Records; providers without one
// (pass-through, list-shaped responses such as news articles) fill Raw.
type Payload struct {
	Records []NormalizedRecord `json:"records,omitempty"`
	Raw     json.RawMessage    `json:"raw,omitempty"`
}

// Empty reports whether the payload carries no data at all.
func (p Payload) Empty() bool {
	return len(p.Records) == 0 && len(p.Raw) == 0
}

// ConnectorStats are the derived counts exposed by the service.
type ConnectorStats struct {
	Total         int           `json:"total"`
	Connected     int           `json:"connected"`
	TotalRequests int           `json:"total_requests"`
	AvgLatency    time.Duration `json:"avg_latency"`
	UptimePercent int           `json:"uptime_percent"`
}
