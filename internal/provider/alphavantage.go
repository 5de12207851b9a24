package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// AlphaVantageAdapter speaks the Alpha Vantage query API. The credential is
// sent both as an `apikey` header and as an `apikey` query parameter, which
// is what the service accepts in practice.
type AlphaVantageAdapter struct{}

// BuildRequest maps the connector's category to the matching query function.
func (a *AlphaVantageAdapter) BuildRequest(cfg models.ConnectorConfig) (Request, error) {
	req := newRequest(cfg, cfg.Endpoint+"/query")

	symbol := paramOr(cfg, "symbol", "RELIANCE.BSE")

	switch cfg.Category {
	case models.CategoryMarketData:
		req.Query.Set("function", "GLOBAL_QUOTE")
		req.Query.Set("symbol", symbol)
	case models.CategoryTechnical:
		req.Query.Set("function", "RSI")
		req.Query.Set("symbol", symbol)
		req.Query.Set("interval", "daily")
		req.Query.Set("time_period", "14")
	case models.CategoryFundamental:
		req.Query.Set("function", "OVERVIEW")
		req.Query.Set("symbol", symbol)
	case models.CategoryEconomic:
		req.Query.Set("function", "REAL_GDP")
		req.Query.Set("interval", "annual")
	default:
		req.URL = cfg.Endpoint
	}

	if cfg.Credential != "" {
		req.Header.Set("apikey", cfg.Credential)
		req.Query.Set("apikey", cfg.Credential)
	}

	return req, nil
}

// ParseResponse normalizes GLOBAL_QUOTE responses and surfaces the provider's
// error and rate-limit envelopes.
func (a *AlphaVantageAdapter) ParseResponse(cfg models.ConnectorConfig, body []byte, now time.Time) (models.Payload, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.Payload{}, fmt.Errorf("failed to decode alpha vantage response: %w", err)
	}

	if raw, ok := envelope["Error Message"]; ok {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		return models.Payload{}, &ProviderError{Provider: "alpha vantage", Message: msg}
	}
	if _, ok := envelope["Note"]; ok {
		return models.Payload{}, &ProviderError{Provider: "alpha vantage", Message: "API call frequency limit reached"}
	}

	if raw, ok := envelope["Global Quote"]; ok {
		var quote struct {
			Symbol        string `json:"01. symbol"`
			Price         string `json:"05. price"`
			Volume        string `json:"06. volume"`
			Change        string `json:"09. change"`
			ChangePercent string `json:"10. change percent"`
		}
		if err := json.Unmarshal(raw, &quote); err != nil {
			return models.Payload{}, fmt.Errorf("failed to decode global quote: %w", err)
		}
		record := models.NormalizedRecord{
			Symbol:        quote.Symbol,
			Price:         parseFloat(quote.Price),
			Change:        parseFloat(quote.Change),
			ChangePercent: parseFloat(quote.ChangePercent),
			Volume:        parseInt(quote.Volume),
			Timestamp:     now,
		}
		return models.Payload{Records: []models.NormalizedRecord{record}}, nil
	}

	// RSI series, company overviews and GDP series have no single normalized
	// shape; hand them through for category-aware consumers.
	return models.Payload{Raw: json.RawMessage(body)}, nil
}
