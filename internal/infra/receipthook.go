package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ReceiptHookClient delivers completed-transaction notifications to the
// receipt/drawer collaborator. Delivery is at-least-once; the collaborator
// deduplicates by transaction id.
type ReceiptHookClient struct {
	hookURL    string
	httpClient *http.Client
	cb         *CircuitBreaker
}

func NewReceiptHookClient(hookURL string, cb *CircuitBreaker) *ReceiptHookClient {
	return &ReceiptHookClient{
		hookURL:    hookURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cb:         cb,
	}
}

// Breaker exposes the breaker state for the health endpoint and retry cron.
func (c *ReceiptHookClient) Breaker() *CircuitBreaker { return c.cb }

// Deliver POSTs the receipt payload. 2xx is success; anything else counts
// as a failure against the breaker.
func (c *ReceiptHookClient) Deliver(ctx context.Context, payload interface{}) error {
	return c.cb.Execute(func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("receipt hook returned %d", resp.StatusCode)
		}
		return nil
	})
}
