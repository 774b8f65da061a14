package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/opspulse/internal/config"
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(cfg config.Config) *HTTPClient {
	timeout := cfg.Upstream.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.Upstream.BaseURL, "/"),
		token:   strings.TrimSpace(cfg.Upstream.APIToken),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ClosedSessions(ctx context.Context, from, to time.Time) ([]Session, error) {
	var out struct {
		Data []Session `json:"data"`
	}
	if err := c.get(ctx, EndpointSessions, "/api/sessions", rangeQuery(from, to, url.Values{"status": {"closed"}}), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *HTTPClient) Orders(ctx context.Context, from, to time.Time) ([]Order, error) {
	var out struct {
		Data []Order `json:"data"`
	}
	if err := c.get(ctx, EndpointOrders, "/api/orders", rangeQuery(from, to, nil), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *HTTPClient) LiveMetrics(ctx context.Context) ([]LiveMetric, error) {
	var out struct {
		Data []LiveMetric `json:"data"`
	}
	if err := c.get(ctx, EndpointLiveMetrics, "/api/metrics/live", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func rangeQuery(from, to time.Time, extra url.Values) url.Values {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	return q
}

var _ Source = (*HTTPClient)(nil)
