package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/invoicegate/pkg/billing"
)

const maxResponseBytes = 1 << 20

// HTTPConfig configures the usage export HTTP client
type HTTPConfig struct {
	BaseURL string
	// Token is sent as a bearer token when set
	Token   string
	Timeout time.Duration
}

// HTTPClient fetches snapshots from GET {BaseURL}/usage/export
type HTTPClient struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// exportResponse uses pointers so absent fields can be told apart from zero
type exportResponse struct {
	TotalTokens           *int64           `json:"totalTokens"`
	TotalCost             *decimal.Decimal `json:"totalCost"`
	TotalGovernanceEvents *int64           `json:"totalGovernanceEvents"`
}

// NewHTTPClient creates a client; the transport is wrapped with otelhttp so
// export calls join the caller's trace
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: usage export base URL is required", billing.ErrValidation)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid usage export base URL: %v", billing.ErrValidation, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: usage export base URL must be http or https", billing.ErrValidation)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPClient{
		baseURL: base,
		token:   cfg.Token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// FetchUsage implements Client
func (c *HTTPClient) FetchUsage(ctx context.Context, tenantID string, period billing.Period) (*Snapshot, error) {
	endpoint := c.baseURL.JoinPath("usage", "export")
	q := endpoint.Query()
	q.Set("tenantId", tenantID)
	q.Set("start", period.Start.UTC().Format(time.RFC3339))
	q.Set("end", period.End.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", ErrExportUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrExportUnavailable, ErrExportTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: %w %d", ErrExportUnavailable, ErrExportStatus, resp.StatusCode)
	}

	var body exportResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrExportUnavailable, ErrExportMalformed, err)
	}
	if body.TotalTokens == nil || body.TotalCost == nil || body.TotalGovernanceEvents == nil {
		return nil, fmt.Errorf("%w: %w: missing totals", ErrExportUnavailable, ErrExportMalformed)
	}

	return &Snapshot{
		TenantID:              tenantID,
		Period:                period,
		TotalTokens:           *body.TotalTokens,
		TotalCost:             *body.TotalCost,
		TotalGovernanceEvents: *body.TotalGovernanceEvents,
	}, nil
}

// Ping checks that the export service answers on {BaseURL}/health
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath("health").String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExportUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health returned status %d", ErrExportUnavailable, resp.StatusCode)
	}
	return nil
}
