package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

const yahooRapidAPIHost = "yahoo-finance15.p.rapidapi.com"

// YahooFinanceAdapter speaks the RapidAPI-hosted Yahoo Finance chart API.
type YahooFinanceAdapter struct{}

// BuildRequest targets the fixed chart path; the credential travels in the
// X-RapidAPI-Key header together with the fixed host header.
func (a *YahooFinanceAdapter) BuildRequest(cfg models.ConnectorConfig) (Request, error) {
	symbol := paramOr(cfg, "symbol", "^NSEI")
	req := newRequest(cfg, cfg.Endpoint+"/v8/finance/chart/"+symbol)

	if cfg.Credential != "" {
		req.Header.Set("X-RapidAPI-Key", cfg.Credential)
		req.Header.Set("X-RapidAPI-Host", yahooRapidAPIHost)
	}

	return req, nil
}

// ParseResponse extracts chart.result[0].meta into a normalized record. The
// record keeps the provider's own market time, not the observation time.
func (a *YahooFinanceAdapter) ParseResponse(cfg models.ConnectorConfig, body []byte, now time.Time) (models.Payload, error) {
	var envelope struct {
		Chart struct {
			Error *struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
			Result []struct {
				Meta struct {
					Symbol             string  `json:"symbol"`
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					PreviousClose      float64 `json:"previousClose"`
					RegularMarketVol   int64   `json:"regularMarketVolume"`
					RegularMarketTime  int64   `json:"regularMarketTime"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.Payload{}, fmt.Errorf("failed to decode yahoo response: %w", err)
	}

	if envelope.Chart.Error != nil {
		return models.Payload{}, &ProviderError{Provider: "yahoo", Message: envelope.Chart.Error.Description}
	}
	if len(envelope.Chart.Result) == 0 {
		return models.Payload{}, &ProviderError{Provider: "yahoo", Message: "no data available"}
	}

	meta := envelope.Chart.Result[0].Meta
	change := meta.RegularMarketPrice - meta.PreviousClose
	changePercent := 0.0
	if meta.PreviousClose != 0 {
		changePercent = change / meta.PreviousClose * 100
	}

	record := models.NormalizedRecord{
		Symbol:        meta.Symbol,
		Price:         meta.RegularMarketPrice,
		Change:        change,
		ChangePercent: changePercent,
		Volume:        meta.RegularMarketVol,
		Timestamp:     time.Unix(meta.RegularMarketTime, 0),
	}
	return models.Payload{Records: []models.NormalizedRecord{record}}, nil
}
