package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// FMPAdapter speaks the Financial Modeling Prep API. Unlike the header-based
// providers, FMP takes the credential as an apikey query parameter.
type FMPAdapter struct{}

// BuildRequest targets the quote or ratios path depending on category.
func (a *FMPAdapter) BuildRequest(cfg models.ConnectorConfig) (Request, error) {
	symbol := paramOr(cfg, "symbol", "RELIANCE.NS")

	var req Request
	switch cfg.Category {
	case models.CategoryFundamental:
		req = newRequest(cfg, cfg.Endpoint+"/v3/ratios/"+symbol)
	default:
		req = newRequest(cfg, cfg.Endpoint+"/v3/quote/"+symbol)
	}

	if cfg.Credential != "" {
		req.Query.Set("apikey", cfg.Credential)
	}

	return req, nil
}

// ParseResponse normalizes the first element of a quote array; ratio arrays
// are handed through unchanged.
func (a *FMPAdapter) ParseResponse(cfg models.ConnectorConfig, body []byte, now time.Time) (models.Payload, error) {
	if cfg.Category == models.CategoryFundamental {
		return models.Payload{Raw: json.RawMessage(body)}, nil
	}

	var quotes []struct {
		Symbol            string  `json:"symbol"`
		Price             float64 `json:"price"`
		Change            float64 `json:"change"`
		ChangesPercentage float64 `json:"changesPercentage"`
		Volume            int64   `json:"volume"`
	}

	if err := json.Unmarshal(body, &quotes); err != nil {
		return models.Payload{}, fmt.Errorf("failed to decode fmp response: %w", err)
	}
	if len(quotes) == 0 {
		return models.Payload{Raw: json.RawMessage(body)}, nil
	}

	quote := quotes[0]
	record := models.NormalizedRecord{
		Symbol:        quote.Symbol,
		Price:         quote.Price,
		Change:        quote.Change,
		ChangePercent: quote.ChangesPercentage,
		Volume:        quote.Volume,
		Timestamp:     now,
	}
	return models.Payload{Records: []models.NormalizedRecord{record}}, nil
}
