package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
	"whalewatch/internal/cache"
	"whalewatch/internal/config"
	"whalewatch/internal/domain"

	"gitlab.com/nevasik7/alerting/logger"
)

var (
	ErrPairNotFound = errors.New("pair not found on stats provider")
)

// Pair-level stats for one token (liquidity, mcap, age, snipers...)
type StatsProvider interface {
	Stats(ctx context.Context, key domain.TokenKey) (*domain.MarketStats, error)
}

// HTTP stats provider with short TTL cache in front. Upstream is rate
// limited, so calls go through a min-gap throttle.
type HTTPProvider struct {
	log     logger.Logger
	client  *http.Client
	baseURL string
	cache   *cache.TTLCache
	gate    *throttle
}

func NewHTTPProvider(log logger.Logger, cfg *config.ProvidersConfig) (*HTTPProvider, error) {
	if cfg == nil {
		return nil, errors.New("providers config is required")
	}
	if cfg.Market.BaseURL == "" {
		return nil, errors.New("market provider base_url is required")
	}

	timeout := cfg.Market.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	metadataTTL := cfg.MetadataTTL
	if metadataTTL <= 0 {
		metadataTTL = 2 * time.Minute
	}

	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}

	return &HTTPProvider{
		log:     log,
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.Market.BaseURL,
		cache:   cache.NewTTL(metadataTTL, maxEntries),
		gate:    newThrottle(cfg.Market.Throttle),
	}, nil
}

func (p *HTTPProvider) Stats(ctx context.Context, key domain.TokenKey) (*domain.MarketStats, error) {
	cacheKey := key.ID()

	if v, ok := p.cache.Get(cacheKey); ok {
		return v.(*domain.MarketStats), nil
	}

	if err := p.gate.wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/pairs/%d/%s", p.baseURL, key.ChainID, key.TokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build stats request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stats request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPairNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("stats provider status=%d body=%s", resp.StatusCode, string(body))
	}

	var stats domain.MarketStats
	if err = json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}
	stats.FetchedAt = time.Now().UTC()

	p.cache.Set(cacheKey, &stats)
	return &stats, nil
}

// Drop expired cache entries; called by housekeeping
func (p *HTTPProvider) Purge() int {
	return p.cache.PurgeExpired()
}

func (p *HTTPProvider) CacheLen() int {
	return p.cache.Len()
}

// Min gap between upstream calls, shared by all callers
type throttle struct {
	mu   sync.Mutex
	gap  time.Duration
	last time.Time
}

func newThrottle(gap time.Duration) *throttle {
	return &throttle{gap: gap}
}

func (t *throttle) wait(ctx context.Context) error {
	if t.gap <= 0 {
		return nil
	}

	t.mu.Lock()
	now := time.Now()
	next := t.last.Add(t.gap)
	if next.Before(now) {
		next = now
	}
	t.last = next
	t.mu.Unlock()

	d := time.Until(next)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
