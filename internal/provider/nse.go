package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// NSEAdapter speaks the exchange-official stock-indices API with bearer auth.
type NSEAdapter struct{}

// BuildRequest targets the fixed index query.
func (a *NSEAdapter) BuildRequest(cfg models.ConnectorConfig) (Request, error) {
	req := newRequest(cfg, cfg.Endpoint+"/api/equity-stockIndices")
	req.Query.Set("index", paramOr(cfg, "index", "NIFTY 50"))

	if cfg.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Credential)
	}

	return req, nil
}

// ParseResponse maps each entry of the data array to a normalized record.
func (a *NSEAdapter) ParseResponse(cfg models.ConnectorConfig, body []byte, now time.Time) (models.Payload, error) {
	var envelope struct {
		Data []struct {
			Index   string  `json:"index"`
			Last    float64 `json:"last"`
			Change  float64 `json:"change"`
			PChange float64 `json:"pChange"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.Payload{}, fmt.Errorf("failed to decode nse response: %w", err)
	}

	if len(envelope.Data) == 0 {
		return models.Payload{Raw: json.RawMessage(body)}, nil
	}

	records := make([]models.NormalizedRecord, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		records = append(records, models.NormalizedRecord{
			Symbol:        item.Index,
			Price:         item.Last,
			Change:        item.Change,
			ChangePercent: item.PChange,
			Timestamp:     now,
		})
	}
	return models.Payload{Records: records}, nil
}
