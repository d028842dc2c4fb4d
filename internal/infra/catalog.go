package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tillpos/internal/apierror"
	"tillpos/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// CatalogClient fetches catalog snapshots from the record store collaborator.
// Snapshots are cached in Redis for a short TTL: a price check storm at the
// register must not become a request storm at the catalog service.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
	rdb        *redis.Client
	ttl        time.Duration
}

func NewCatalogClient(baseURL string, rdb *redis.Client, ttl time.Duration) *CatalogClient {
	return &CatalogClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		rdb:        rdb,
		ttl:        ttl,
	}
}

// catalogItemPayload is the collaborator's wire format.
type catalogItemPayload struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   *string         `json:"description"`
	ItemType      string          `json:"item_type"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	SerialTracked bool            `json:"serial_tracked"`
	TaxCode       string          `json:"tax_code"`
}

func cacheKey(id uuid.UUID) string { return "catalog:item:" + id.String() }

// Snapshot returns the point-in-time catalog entry for an item, preferring
// the Redis cache.
func (c *CatalogClient) Snapshot(ctx context.Context, catalogItemID uuid.UUID) (*service.CatalogSnapshot, error) {
	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, cacheKey(catalogItemID)).Bytes(); err == nil {
			var payload catalogItemPayload
			if json.Unmarshal(cached, &payload) == nil {
				return payloadToSnapshot(catalogItemID, &payload), nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/items/%s", c.baseURL, catalogItemID), nil)
	if err != nil {
		return nil, apierror.Internal("catalog: create request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierror.Internal("catalog service unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apierror.NotFound("catalog item %s not found", catalogItemID)
	default:
		return nil, apierror.Internal(fmt.Sprintf("catalog service returned %d", resp.StatusCode), nil)
	}

	var payload catalogItemPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apierror.Internal("catalog: decode response", err)
	}

	if c.rdb != nil {
		if data, err := json.Marshal(payload); err == nil {
			if err := c.rdb.Set(ctx, cacheKey(catalogItemID), data, c.ttl).Err(); err != nil {
				log.Warn().Err(err).Msg("catalog: cache write failed")
			}
		}
	}
	return payloadToSnapshot(catalogItemID, &payload), nil
}

func payloadToSnapshot(id uuid.UUID, p *catalogItemPayload) *service.CatalogSnapshot {
	return &service.CatalogSnapshot{
		ID:            id,
		Name:          p.Name,
		Description:   p.Description,
		ItemType:      p.ItemType,
		UnitPrice:     p.UnitPrice,
		SerialTracked: p.SerialTracked,
		TaxCode:       p.TaxCode,
	}
}
