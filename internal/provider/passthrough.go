package provider

import (
	"encoding/json"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// PassThroughAdapter serves providers without a dedicated variant: the
// configured endpoint is requested verbatim and the body is returned
// unmodified, with no normalization guarantee.
type PassThroughAdapter struct{}

// BuildRequest uses the endpoint as-is with a generic bearer credential.
func (a *PassThroughAdapter) BuildRequest(cfg models.ConnectorConfig) (Request, error) {
	req := newRequest(cfg, cfg.Endpoint)
	if cfg.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Credential)
	}
	return req, nil
}

// ParseResponse hands the raw body through.
func (a *PassThroughAdapter) ParseResponse(cfg models.ConnectorConfig, body []byte, now time.Time) (models.Payload, error) {
	return models.Payload{Raw: json.RawMessage(body)}, nil
}
