package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"whalewatch/internal/alerts"
	"whalewatch/internal/alpha"
	"whalewatch/internal/config"
	"whalewatch/internal/dedupe"
	"whalewatch/internal/domain"
	"whalewatch/internal/metrics"
	"whalewatch/internal/normalize"
	"whalewatch/internal/safety"
	"whalewatch/internal/window"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

// --- helpers ---

const (
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

type stubStats struct {
	stats *domain.MarketStats
	err   error
}

func (s *stubStats) Stats(_ context.Context, _ domain.TokenKey) (*domain.MarketStats, error) {
	return s.stats, s.err
}

type stubPrices struct{}

func (stubPrices) NativeUSD(_ context.Context, _ uint32) (float64, error) {
	return 0, fmt.Errorf("no quote in tests")
}

type captureSender struct {
	mu   sync.Mutex
	recs []*domain.AlertRecord
}

func (s *captureSender) Name() string { return "capture" }

func (s *captureSender) Send(_ context.Context, rec *domain.AlertRecord) error {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *captureSender) all() []*domain.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.AlertRecord(nil), s.recs...)
}

// every probe healthy, token passes the cascade with room to spare
func healthySecurityServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload any
		switch {
		case strings.HasPrefix(r.URL.Path, "/honeypot/"):
			payload = safety.HoneypotResult{CanSell: true, BuyTaxPct: 2, SellTaxPct: 2}
		case strings.HasPrefix(r.URL.Path, "/holders/"):
			payload = safety.HoldersResult{HolderCount: 500, Top10Pct: 20, CreatorPct: 5}
		case strings.HasPrefix(r.URL.Path, "/lplock/"):
			payload = safety.LPLockResult{Burned: true}
		case strings.HasPrefix(r.URL.Path, "/social/"):
			payload = safety.SocialResult{HasWebsite: true, HasTwitter: true, HasTelegram: true, MentionScore: 50}
		default:
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
}

func honeypotSecurityServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/honeypot/") {
			_ = json.NewEncoder(w).Encode(safety.HoneypotResult{IsHoneypot: true})
			return
		}
		_ = json.NewEncoder(w).Encode(struct{}{})
	}))
}

type harness struct {
	pipeline *Pipeline
	sender   *captureSender
	deduper  dedupe.Deduper
	tracker  *window.Tracker
	queue    *alerts.Queue
}

func newHarness(t *testing.T, securityURL string, marketStats *domain.MarketStats) *harness {
	t.Helper()

	log := newTestLogger()

	registry := normalize.NewRegistry([]config.ChainAssets{
		{ChainID: 1, WrappedNative: weth, Stables: []string{usdc}},
	})
	normalizer := normalize.New(log, registry, stubPrices{})

	windowCfg := &config.WindowConfig{
		Duration:       10 * time.Minute,
		MinWhaleBuyUSD: 500,
		BigBuyUSD:      2500,
		MinWhales:      3,
	}
	tracker, err := window.NewTracker(log, windowCfg)
	require.NoError(t, err)

	safetyCfg := &config.SafetyConfig{
		MinScore:        60,
		MaxTaxPct:       10,
		MinLiquidityUSD: 5_000,
		MaxLiquidityUSD: 2_000_000,
		MinMarketCapUSD: 10_000,
		MaxMarketCapUSD: 50_000_000,
		MaxAgeHours:     72,
		DeepAnalysis:    true,
		HoneypotTimeout: 2 * time.Second,
		DeepTimeout:     2 * time.Second,
	}

	secCfg := &config.ProvidersConfig{}
	secCfg.Security.BaseURL = securityURL
	secCfg.Security.Timeout = 2 * time.Second
	client, err := safety.NewSecurityClient(log, secCfg)
	require.NoError(t, err)

	cascade, err := safety.NewCascade(log, safetyCfg, nil, &stubStats{stats: marketStats}, safety.DefaultChecks(client, safetyCfg))
	require.NoError(t, err)

	sender := &captureSender{}
	queue, err := alerts.NewQueue(log, &config.AlertsConfig{MinDelay: time.Millisecond}, sender)
	require.NoError(t, err)
	t.Cleanup(queue.Close)

	deduper := dedupe.NewInMemoryDedupe(log)

	p, err := NewPipeline(&PipelineDeps{
		Logger:     log,
		Normalizer: normalizer,
		Tracker:    tracker,
		Policy:     alpha.NewTriggerPolicy(windowCfg),
		Cascade:    cascade,
		Deduper:    deduper,
		Queue:      queue,
		Metrics:    metrics.New(prometheus.NewRegistry()),
	}, windowCfg, safetyCfg)
	require.NoError(t, err)

	return &harness{
		pipeline: p,
		sender:   sender,
		deduper:  deduper,
		tracker:  tracker,
		queue:    queue,
	}
}

func goodMarketStats() *domain.MarketStats {
	return &domain.MarketStats{
		Symbol:       "PEPE",
		LiquidityUSD: 150_000,
		MarketCapUSD: 2_000_000,
		AgeHours:     12,
		SniperCount:  1,
	}
}

func rawStableBuy(t *testing.T, wallet string, usd float64, nonce uint32) []byte {
	t.Helper()

	ev := domain.SwapEvent{
		ChainID:      1,
		TxHash:       fmt.Sprintf("0x%064d", nonce),
		LogIndex:     nonce,
		Wallet:       wallet,
		TokenAddress: "0xpepe",
		TokenSymbol:  "PEPE",
		BaseAddress:  usdc,
		Side:         domain.SideBuy,
		AmountBase:   fmt.Sprintf("%.2f", usd),
		EventTime:    time.Now().UTC(),
	}
	data, err := json.Marshal(&ev)
	require.NoError(t, err)
	return data
}

func waitAlerts(t *testing.T, h *harness, want int) []*domain.AlertRecord {
	t.Helper()

	require.Eventually(t, func() bool {
		h.pipeline.Close() // wait out in-flight evaluations
		return h.queue.Delivered() >= uint64(want)
	}, 5*time.Second, 10*time.Millisecond)

	return h.sender.all()
}

// --- tests ---

func TestPipeline_BigSingleBuyAlert(t *testing.T) {
	srv := healthySecurityServer(t)
	defer srv.Close()

	h := newHarness(t, srv.URL, goodMarketStats())
	ctx := context.Background()

	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xwhale", 3000, 1))

	recs := waitAlerts(t, h, 1)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, domain.TriggerBigSingleBuy, rec.Reason)
	assert.Equal(t, "PEPE", rec.TokenSymbol)
	assert.Equal(t, 1, rec.UniqueBuyers)
	assert.InDelta(t, 3000, rec.TotalVolumeUSD, 0.01)
	assert.InDelta(t, 3000, rec.TriggerUSD, 0.01)
	assert.Equal(t, 88, rec.SafetyScore)
	// 1 whale + 150k liq + 2M mcap + 1 sniper: 5+30+20+10, no combos
	assert.Equal(t, 65, rec.AlphaScore)
	assert.Contains(t, rec.Message, "🐳")
	assert.Contains(t, rec.Message, "PEPE")
}

func TestPipeline_MultiWhaleTrigger(t *testing.T) {
	srv := healthySecurityServer(t)
	defer srv.Close()

	h := newHarness(t, srv.URL, goodMarketStats())
	ctx := context.Background()

	// three distinct wallets under the big-buy bar
	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xaaa", 600, 1))
	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xbbb", 700, 2))
	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xccc", 800, 3))

	recs := waitAlerts(t, h, 1)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, domain.TriggerMultiWhale, rec.Reason)
	assert.Equal(t, 3, rec.UniqueBuyers)
	assert.InDelta(t, 2100, rec.TotalVolumeUSD, 0.01)
	assert.InDelta(t, 800, rec.TriggerUSD, 0.01)
}

// Re-triggering an already alerted token must not produce a second alert.
func TestPipeline_AlertOncePerToken(t *testing.T) {
	srv := healthySecurityServer(t)
	defer srv.Close()

	h := newHarness(t, srv.URL, goodMarketStats())
	ctx := context.Background()

	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xwhale", 3000, 1))
	waitAlerts(t, h, 1)

	// same wallet keeps buying big, trigger fires again
	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xwhale", 4000, 2))
	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xwhale", 5000, 3))
	h.pipeline.Close()

	// give the queue a beat, nothing new may arrive
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), h.queue.Delivered())

	snap := h.pipeline.Snapshot(ctx)
	assert.Equal(t, 1, snap.AlertedTokens)
}

func TestPipeline_DropsAreSilent(t *testing.T) {
	srv := healthySecurityServer(t)
	defer srv.Close()

	h := newHarness(t, srv.URL, goodMarketStats())
	ctx := context.Background()

	h.pipeline.HandleRaw(ctx, []byte("{not json"))

	sell := domain.SwapEvent{
		ChainID: 1, TxHash: "0xdead", LogIndex: 1, Wallet: "0xaaa",
		TokenAddress: "0xpepe", BaseAddress: usdc,
		Side: domain.SideSell, AmountBase: "900",
	}
	data, err := json.Marshal(&sell)
	require.NoError(t, err)
	h.pipeline.HandleRaw(ctx, data)

	// real buy but under the whale floor
	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xbbb", 100, 2))

	snap := h.pipeline.Snapshot(ctx)
	assert.Equal(t, uint64(3), snap.ProcessedEvents)
	assert.Equal(t, uint64(3), snap.DroppedEvents)
	assert.Equal(t, uint64(0), snap.RecordedBuys)
	assert.Equal(t, 0, h.tracker.Tracked())
	assert.Empty(t, h.sender.all())
}

// A blocked token must stay unclaimed so a later re-check can still alert.
func TestPipeline_SafetyBlockSuppressesAndLeavesUnclaimed(t *testing.T) {
	srv := honeypotSecurityServer(t)
	defer srv.Close()

	h := newHarness(t, srv.URL, goodMarketStats())
	ctx := context.Background()

	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xwhale", 3000, 1))
	h.pipeline.Close()

	assert.Empty(t, h.sender.all())
	assert.Equal(t, uint64(0), h.queue.Delivered())

	n, err := h.deduper.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "blocked token must not be marked as alerted")
}

func TestPipeline_Snapshot(t *testing.T) {
	srv := healthySecurityServer(t)
	defer srv.Close()

	h := newHarness(t, srv.URL, goodMarketStats())
	ctx := context.Background()

	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xaaa", 600, 1))
	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xbbb", 100, 2)) // floor drop

	snap := h.pipeline.Snapshot(ctx)
	assert.Equal(t, uint64(2), snap.ProcessedEvents)
	assert.Equal(t, uint64(1), snap.DroppedEvents)
	assert.Equal(t, uint64(1), snap.RecordedBuys)
	assert.Equal(t, 1, snap.TrackedTokens)
	assert.GreaterOrEqual(t, snap.UptimeSec, int64(0))
}

func TestPipeline_WindowLookup(t *testing.T) {
	srv := healthySecurityServer(t)
	defer srv.Close()

	h := newHarness(t, srv.URL, goodMarketStats())
	ctx := context.Background()

	h.pipeline.HandleRaw(ctx, rawStableBuy(t, "0xaaa", 600, 1))

	stats, err := h.pipeline.TokenWindow(domain.TokenKey{ChainID: 1, TokenAddress: "0xpepe"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UniqueBuyers)
	assert.InDelta(t, 600, stats.TotalVolumeUSD, 0.01)

	_, err = h.pipeline.TokenWindow(domain.TokenKey{ChainID: 1, TokenAddress: "0xmissing"})
	assert.ErrorIs(t, err, ErrTokenNotFound)

	top := h.pipeline.Overview(10)
	require.Len(t, top, 1)
	assert.Equal(t, "0xpepe", top[0].Token.TokenAddress)
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(nil, nil, nil)
	assert.Error(t, err)

	_, err = NewPipeline(&PipelineDeps{Logger: newTestLogger()}, nil, nil)
	assert.Error(t, err)
}
