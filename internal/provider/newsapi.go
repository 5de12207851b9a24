package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// NewsAPIAdapter speaks the NewsAPI "everything" endpoint.
type NewsAPIAdapter struct{}

// BuildRequest targets /everything with the fixed market-news query; the
// credential travels in the X-API-Key header.
func (a *NewsAPIAdapter) BuildRequest(cfg models.ConnectorConfig) (Request, error) {
	req := newRequest(cfg, cfg.Endpoint+"/everything")
	req.Query.Set("q", paramOr(cfg, "q", "indian stock market OR nifty OR sensex"))
	req.Query.Set("language", paramOr(cfg, "language", "en"))
	req.Query.Set("sortBy", "publishedAt")
	req.Query.Set("pageSize", paramOr(cfg, "pageSize", "20"))

	if cfg.Credential != "" {
		req.Header.Set("X-API-Key", cfg.Credential)
	}

	return req, nil
}

// ParseResponse surfaces the provider's error envelope and hands the article
// list through unchanged; articles have no numeric normalization.
func (a *NewsAPIAdapter) ParseResponse(cfg models.ConnectorConfig, body []byte, now time.Time) (models.Payload, error) {
	var envelope struct {
		Status   string          `json:"status"`
		Message  string          `json:"message"`
		Articles json.RawMessage `json:"articles"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.Payload{}, fmt.Errorf("failed to decode newsapi response: %w", err)
	}

	if envelope.Status == "error" {
		return models.Payload{}, &ProviderError{Provider: "newsapi", Message: envelope.Message}
	}

	if len(envelope.Articles) == 0 {
		return models.Payload{Raw: json.RawMessage(body)}, nil
	}
	return models.Payload{Raw: envelope.Articles}, nil
}
