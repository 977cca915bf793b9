package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	"whalewatch/internal/config"
	"whalewatch/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

// --- helpers ---

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

func newStatsServer(t *testing.T, hits *atomic.Int64, stats domain.MarketStats) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	}))
}

func providerConfig(baseURL string) *config.ProvidersConfig {
	cfg := &config.ProvidersConfig{}
	cfg.Market.BaseURL = baseURL
	cfg.Market.Timeout = 2 * time.Second
	cfg.MetadataTTL = time.Minute
	return cfg
}

// --- tests ---

func TestHTTPProvider_StatsAndCache(t *testing.T) {
	var hits atomic.Int64
	srv := newStatsServer(t, &hits, domain.MarketStats{
		Symbol:       "PEPE",
		LiquidityUSD: 150_000,
		MarketCapUSD: 2_000_000,
		AgeHours:     12,
		SniperCount:  1,
	})
	defer srv.Close()

	p, err := NewHTTPProvider(newTestLogger(), providerConfig(srv.URL))
	require.NoError(t, err)

	key := domain.TokenKey{ChainID: 1, TokenAddress: "0xabc"}

	stats, err := p.Stats(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "PEPE", stats.Symbol)
	assert.Equal(t, 150_000.0, stats.LiquidityUSD)
	assert.False(t, stats.FetchedAt.IsZero())

	// second call must come from cache
	_, err = p.Stats(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load(), "second lookup must hit the cache")

	// different token -> new upstream call
	_, err = p.Stats(context.Background(), domain.TokenKey{ChainID: 1, TokenAddress: "0xdef"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

func TestHTTPProvider_PairNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(newTestLogger(), providerConfig(srv.URL))
	require.NoError(t, err)

	_, err = p.Stats(context.Background(), domain.TokenKey{ChainID: 1, TokenAddress: "0xmissing"})
	assert.ErrorIs(t, err, ErrPairNotFound)
}

func TestHTTPProvider_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(newTestLogger(), providerConfig(srv.URL))
	require.NoError(t, err)

	_, err = p.Stats(context.Background(), domain.TokenKey{ChainID: 1, TokenAddress: "0xabc"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status=500")
}

func TestHTTPProvider_NilConfig(t *testing.T) {
	p, err := NewHTTPProvider(newTestLogger(), nil)
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestHTTPProvider_RequiresBaseURL(t *testing.T) {
	p, err := NewHTTPProvider(newTestLogger(), &config.ProvidersConfig{})
	assert.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "base_url")
}

func TestThrottle_MinGapBetweenCalls(t *testing.T) {
	t.Parallel()

	gate := newThrottle(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, gate.wait(ctx))
	require.NoError(t, gate.wait(ctx))
	require.NoError(t, gate.wait(ctx))
	elapsed := time.Since(start)

	if elapsed < 80*time.Millisecond {
		t.Fatalf("three throttled calls finished too fast: %s", elapsed)
	}
}

func TestThrottle_ContextCancel(t *testing.T) {
	t.Parallel()

	gate := newThrottle(time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, gate.wait(ctx))

	cancel()
	err := gate.wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThrottle_ZeroGapIsNoop(t *testing.T) {
	t.Parallel()

	gate := newThrottle(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, gate.wait(context.Background()))
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatalf("zero gap throttle must not block")
	}
}
