package provider

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// Request describes one outbound provider call: the URL to hit, the headers
// to send, and the query parameters to append. Adapters build requests; they
// never execute them.
type Request struct {
	URL    string
	Header http.Header
	Query  url.Values
}

// FullURL returns the request URL with the query string appended.
func (r Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	return r.URL + "?" + r.Query.Encode()
}

// Adapter maps a connector's configuration to a request descriptor and a raw
// provider response body to a normalized payload. Implementations are pure:
// all state lives in the configuration passed in, and records that carry no
// provider-side timestamp are stamped with the observation time the caller
// supplies.
type Adapter interface {
	BuildRequest(cfg models.ConnectorConfig) (Request, error)
	ParseResponse(cfg models.ConnectorConfig, body []byte, now time.Time) (models.Payload, error)
}

// ProviderError signals that the provider returned its own error envelope in
// an otherwise well-formed response (explicit error message, rate-limit
// notice). It lets callers classify the failure instead of treating a
// malformed-but-200 body as success.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// newRequest seeds a Request with the connector's extra headers and
// parameters so adapter-specific values layer on top of them.
func newRequest(cfg models.ConnectorConfig, rawURL string) Request {
	req := Request{
		URL:    rawURL,
		Header: make(http.Header),
		Query:  make(url.Values),
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	for key, value := range cfg.Parameters {
		req.Query.Set(key, value)
	}
	return req
}

// paramOr returns the connector's override for key, or fallback.
func paramOr(cfg models.ConnectorConfig, key, fallback string) string {
	if v, ok := cfg.Parameters[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func parseFloat(raw string) float64 {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
