package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"whalewatch/internal/cache"
	"whalewatch/internal/config"

	"gitlab.com/nevasik7/alerting/logger"
)

var (
	ErrNoPrice = errors.New("native price unavailable")
)

// USD quote for the chain native asset
type PriceSource interface {
	NativeUSD(ctx context.Context, chainID uint32) (float64, error)
}

// HTTP price source with TTL cache and stale fallback: a failed refresh
// serves the last known quote with a warn instead of erroring out.
// ErrNoPrice only when nothing was ever fetched for the chain.
type HTTPPriceSource struct {
	log     logger.Logger
	client  *http.Client
	baseURL string
	cache   *cache.TTLCache
}

type priceResponse struct {
	USD float64 `json:"usd"`
}

func NewHTTPPriceSource(log logger.Logger, cfg *config.ProvidersConfig) (*HTTPPriceSource, error) {
	if cfg == nil {
		return nil, errors.New("providers config is required")
	}
	if cfg.Price.BaseURL == "" {
		return nil, errors.New("price provider base_url is required")
	}

	timeout := cfg.Price.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	ttl := cfg.PriceTTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}

	return &HTTPPriceSource{
		log:     log,
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.Price.BaseURL,
		cache:   cache.NewTTL(ttl, maxEntries),
	}, nil
}

func (s *HTTPPriceSource) NativeUSD(ctx context.Context, chainID uint32) (float64, error) {
	key := strconv.FormatUint(uint64(chainID), 10)

	if v, ok := s.cache.Get(key); ok {
		return v.(float64), nil
	}

	usd, err := s.fetch(ctx, chainID)
	if err == nil {
		s.cache.Set(key, usd)
		return usd, nil
	}

	// refresh failed -> serve stale if we ever had a quote
	if stale, storedAt, ok := s.cache.GetStale(key); ok {
		s.log.Warnf("Price refresh failed for chain=%d, serving stale quote age=%s: %v",
			chainID, time.Since(storedAt).Truncate(time.Second), err)
		return stale.(float64), nil
	}

	return 0, fmt.Errorf("%w: chain=%d: %v", ErrNoPrice, chainID, err)
}

func (s *HTTPPriceSource) fetch(ctx context.Context, chainID uint32) (float64, error) {
	url := fmt.Sprintf("%s/native/%d", s.baseURL, chainID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build price request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price provider status=%d", resp.StatusCode)
	}

	var pr priceResponse
	if err = json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}
	if pr.USD <= 0 {
		return 0, fmt.Errorf("price provider returned non-positive quote: %f", pr.USD)
	}

	return pr.USD, nil
}
