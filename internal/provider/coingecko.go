package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// CoinGeckoAdapter speaks the CoinGecko simple-price API.
type CoinGeckoAdapter struct{}

// BuildRequest targets /v3/simple/price; the demo credential travels in the
// x-cg-demo-api-key header.
func (a *CoinGeckoAdapter) BuildRequest(cfg models.ConnectorConfig) (Request, error) {
	req := newRequest(cfg, cfg.Endpoint+"/v3/simple/price")
	req.Query.Set("ids", paramOr(cfg, "ids", "bitcoin,ethereum"))
	req.Query.Set("vs_currencies", paramOr(cfg, "vs_currencies", "inr"))
	req.Query.Set("include_24hr_change", "true")

	if cfg.Credential != "" {
		req.Header.Set("x-cg-demo-api-key", cfg.Credential)
	}

	return req, nil
}

// ParseResponse maps the coin→price map to one record per coin, ordered by
// coin id so repeated polls produce stable payloads.
func (a *CoinGeckoAdapter) ParseResponse(cfg models.ConnectorConfig, body []byte, now time.Time) (models.Payload, error) {
	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return models.Payload{}, fmt.Errorf("failed to decode coingecko response: %w", err)
	}
	if len(prices) == 0 {
		return models.Payload{}, &ProviderError{Provider: "coingecko", Message: "empty price map"}
	}

	currency := paramOr(cfg, "vs_currencies", "inr")

	ids := make([]string, 0, len(prices))
	for id := range prices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]models.NormalizedRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, models.NormalizedRecord{
			Symbol:        id,
			Price:         prices[id][currency],
			ChangePercent: prices[id][currency+"_24h_change"],
			Timestamp:     now,
		})
	}
	return models.Payload{Records: records}, nil
}
