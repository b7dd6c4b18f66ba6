// internal/supplier/client.go
package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/domain"
)

// Client talks to the supplier's purchase-order API over HTTP. When a token
// URL is configured, requests are authenticated with an OAuth2
// client-credentials token source that refreshes itself.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.SupplierConfig) *Client {
	hc := &http.Client{Timeout: cfg.RequestTimeout}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		hc = cc.Client(context.Background())
		hc.Timeout = cfg.RequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
	}
}

type submitPayload struct {
	IdempotencyKey string `json:"idempotency_key"`
	SKU            string `json:"sku"`
	Quantity       int64  `json:"quantity"`
}

// Submit places a purchase order with the supplier.
func (c *Client) Submit(ctx context.Context, req domain.OrderRequest) (Submission, error) {
	body, err := json.Marshal(submitPayload{
		IdempotencyKey: req.IdempotencyKey,
		SKU:            req.SKU,
		Quantity:       req.Quantity,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("failed to encode order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/purchase-orders", bytes.NewReader(body))
	if err != nil {
		return Submission{}, fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Submission{}, fmt.Errorf("order submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Submission{}, &APIError{
			StatusCode: resp.StatusCode,
			Reason:     readError(resp.Body),
			Dispatched: true,
		}
	}

	var sub Submission
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		// The order may have been accepted even though the response is
		// unreadable; the coordinator reconciles by key.
		return Submission{}, fmt.Errorf("failed to decode supplier response: %w", err)
	}
	return sub, nil
}

// QueryStatus fetches the current status for an idempotency key.
func (c *Client) QueryStatus(ctx context.Context, idempotencyKey string) (domain.OrderStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/purchase-orders/"+idempotencyKey, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("status query failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrStatusUnknown
	case resp.StatusCode >= 400:
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Reason:     readError(resp.Body),
			Dispatched: true,
		}
	}

	var sub Submission
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return "", fmt.Errorf("failed to decode status response: %w", err)
	}
	return sub.Status, nil
}

func readError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	var payload struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Reason != "" {
			return payload.Reason
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(data))
}
