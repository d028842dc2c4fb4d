package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tillpos/internal/apierror"
	"tillpos/internal/service"

	"github.com/shopspring/decimal"
)

// TaxClient quotes per-line tax through the external rate resolver. The
// engine never computes tax itself; when the resolver URL is unset the
// client degrades to a flat development rate so local registers still work.
// Calls go through a circuit breaker: a downed resolver fast-fails instead
// of stalling every addItem on a 10s timeout.
type TaxClient struct {
	resolverURL  string
	httpClient   *http.Client
	cb           *CircuitBreaker
	fallbackRate decimal.Decimal // percentage, dev mode only
}

func NewTaxClient(resolverURL string, cb *CircuitBreaker, fallbackRatePct string) *TaxClient {
	rate, err := decimal.NewFromString(fallbackRatePct)
	if err != nil {
		rate = decimal.Zero
	}
	return &TaxClient{
		resolverURL:  resolverURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		cb:           cb,
		fallbackRate: rate,
	}
}

// Breaker exposes the breaker state for the health endpoint.
func (c *TaxClient) Breaker() *CircuitBreaker { return c.cb }

type taxQuoteRequest struct {
	CatalogItemID string          `json:"catalog_item_id"`
	TaxCode       string          `json:"tax_code"`
	NetAmount     decimal.Decimal `json:"net_amount"`
}

type taxQuoteResponse struct {
	TaxAmount decimal.Decimal `json:"tax_amount"`
}

// Quote returns the tax amount for one line.
func (c *TaxClient) Quote(ctx context.Context, line service.TaxLine) (decimal.Decimal, error) {
	if c.resolverURL == "" {
		return line.NetAmount.Mul(c.fallbackRate).Div(decimal.NewFromInt(100)).Round(2), nil
	}

	var quoted decimal.Decimal
	err := c.cb.Execute(func() error {
		body, err := json.Marshal(taxQuoteRequest{
			CatalogItemID: line.CatalogItemID.String(),
			TaxCode:       line.TaxCode,
			NetAmount:     line.NetAmount,
		})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolverURL+"/quote", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("tax resolver returned %d", resp.StatusCode)
		}
		var out taxQuoteResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		quoted = out.TaxAmount
		return nil
	})
	if err != nil {
		// No silent zero tax: a failed quote fails the mutation.
		return decimal.Zero, apierror.Internal("tax quote failed", err)
	}
	return quoted.Round(2), nil
}
