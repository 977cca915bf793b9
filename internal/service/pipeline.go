/*
Event pipeline: normalize -> window -> trigger -> safety -> alert.

It the only point orchestration, one HandleRaw call per raw swap payload
from any source. Everything up to the trigger decision is synchronous
and cheap; the safety evaluation and alert emission run on a bounded
worker pool so a slow provider cannot stall ingest.

Token lifecycle: unseen -> tracking on first qualifying buy -> under
review when the trigger fires -> alerted, or back to tracking when a
filter rejects so the next buy may retrigger. Idle windows are evicted
by housekeeping; alerted tokens stay suppressed until the dedupe set
is bulk-cleared.
*/
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"whalewatch/internal/alerts"
	"whalewatch/internal/alpha"
	"whalewatch/internal/config"
	"whalewatch/internal/dedupe"
	"whalewatch/internal/domain"
	"whalewatch/internal/metrics"
	"whalewatch/internal/normalize"
	"whalewatch/internal/safety"
	"whalewatch/internal/stores/clickhouse"
	"whalewatch/internal/window"

	"gitlab.com/nevasik7/alerting/logger"
)

var ErrTokenNotFound = errors.New("token not tracked")

// upper bound for one full cascade run, providers have own timeouts inside
const evalTimeout = 30 * time.Second

type PipelineDeps struct {
	Logger     logger.Logger
	Normalizer *normalize.Normalizer
	Tracker    *window.Tracker
	Policy     alpha.TriggerPolicy
	Cascade    *safety.Cascade
	Deduper    dedupe.Deduper
	Queue      *alerts.Queue
	Archive    *clickhouse.Writer // optional, nil -> archiving off
	Metrics    *metrics.Metrics
}

type Pipeline struct {
	log        logger.Logger
	normalizer *normalize.Normalizer
	tracker    *window.Tracker
	policy     alpha.TriggerPolicy
	cascade    *safety.Cascade
	deduper    dedupe.Deduper
	queue      *alerts.Queue
	archive    *clickhouse.Writer
	m          *metrics.Metrics

	minBuyUSD float64

	inflight chan struct{}
	wg       sync.WaitGroup

	startedAt time.Time
	processed atomic.Uint64
	dropped   atomic.Uint64
	buys      atomic.Uint64
	evals     atomic.Uint64
}

func NewPipeline(deps *PipelineDeps, windowCfg *config.WindowConfig, safetyCfg *config.SafetyConfig) (*Pipeline, error) {
	if deps == nil {
		return nil, errors.New("pipeline deps are required")
	}
	if deps.Logger == nil || deps.Normalizer == nil || deps.Tracker == nil ||
		deps.Cascade == nil || deps.Deduper == nil || deps.Queue == nil || deps.Metrics == nil {
		return nil, errors.New("pipeline deps are incomplete")
	}

	minBuy := float64(500)
	if windowCfg != nil && windowCfg.MinWhaleBuyUSD > 0 {
		minBuy = windowCfg.MinWhaleBuyUSD
	}

	maxInflight := 8
	if safetyCfg != nil && safetyCfg.MaxInflight > 0 {
		maxInflight = safetyCfg.MaxInflight
	}

	return &Pipeline{
		log:        deps.Logger,
		normalizer: deps.Normalizer,
		tracker:    deps.Tracker,
		policy:     deps.Policy,
		cascade:    deps.Cascade,
		deduper:    deps.Deduper,
		queue:      deps.Queue,
		archive:    deps.Archive,
		m:          deps.Metrics,
		minBuyUSD:  minBuy,
		inflight:   make(chan struct{}, maxInflight),
		startedAt:  time.Now(),
	}, nil
}

// HandleRaw ingest one raw swap payload. Drops are silent: debug log
// and counter, nothing comes back to the source.
func (p *Pipeline) HandleRaw(ctx context.Context, data []byte) {
	p.processed.Add(1)
	p.m.EventsTotal.Inc()

	ev, dropReason := p.normalizer.Decode(data)
	if dropReason != normalize.DropNone {
		p.drop(dropReason)
		return
	}

	buy, dropReason := p.normalizer.Classify(ctx, ev)
	if dropReason != normalize.DropNone {
		p.drop(dropReason)
		return
	}

	if buy.AmountUSD < p.minBuyUSD {
		p.log.Debugf("Buy below whale floor for %s: $%.2f", buy.Token.ID(), buy.AmountUSD)
		p.drop(normalize.DropBelowFloor)
		return
	}

	p.buys.Add(1)
	p.m.BuysTotal.Inc()

	stats := p.tracker.RecordBuy(buy.Token, buy.Wallet, buy.AmountUSD, time.Now())

	reason, fired := p.policy.Evaluate(buy.AmountUSD, stats.UniqueBuyers)
	if !fired {
		return
	}
	p.m.TriggersTotal.WithLabelValues(string(reason)).Inc()

	// cheap peek, the authoritative claim happens after the cascade
	if seen, err := p.deduper.Seen(ctx, buy.Token.ID()); err != nil {
		p.log.Warnf("Dedupe peek failed for %s, error=%v", buy.Token.ID(), err)
	} else if seen {
		p.log.Debugf("Token %s already alerted, skip evaluation", buy.Token.ID())
		return
	}

	p.spawnEvaluation(buy, stats, reason)
}

func (p *Pipeline) drop(reason normalize.DropReason) {
	p.dropped.Add(1)
	p.m.DropsTotal.WithLabelValues(string(reason)).Inc()
}

// spawnEvaluation runs the cascade on the worker pool; when the pool is
// full the trigger is skipped, the next qualifying buy re-fires it
func (p *Pipeline) spawnEvaluation(buy *domain.TokenBuy, stats domain.WindowStats, reason domain.TriggerReason) {
	select {
	case p.inflight <- struct{}{}:
	default:
		p.log.Warnf("Evaluation pool is full, skip %s for now", buy.Token.ID())
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.inflight }()
		defer func() {
			if r := recover(); r != nil {
				p.log.Errorf("Evaluation panic for %s: %v", buy.Token.ID(), r)
			}
		}()

		p.runEvaluation(buy, stats, reason)
	}()
}

func (p *Pipeline) runEvaluation(buy *domain.TokenBuy, stats domain.WindowStats, reason domain.TriggerReason) {
	p.evals.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	started := time.Now()
	report, market, err := p.cascade.Evaluate(ctx, buy.Token)
	p.m.EvalDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		p.log.Errorf("Safety evaluation failed for %s, error=%v", buy.Token.ID(), err)
		return
	}

	if !report.Allowed {
		outcome := "rejected"
		if report.Blocked {
			outcome = "blocked"
		}
		p.m.SafetyOutcomes.WithLabelValues(outcome).Inc()
		p.log.Debugf("Token %s failed safety, composite=%d blocked=%v", buy.Token.ID(), report.Composite, report.Blocked)
		return
	}
	p.m.SafetyOutcomes.WithLabelValues("allowed").Inc()

	var (
		symbol  string
		liq     float64
		mcap    float64
		snipers int
	)
	if market != nil {
		symbol = market.Symbol
		liq = market.LiquidityUSD
		mcap = market.MarketCapUSD
		snipers = market.SniperCount
	}
	if symbol == "" {
		symbol = buy.TokenSymbol
	}

	score := alpha.Score(stats.UniqueBuyers, liq, mcap, snipers)

	// claim before enqueue; on claim failure the alert is held back,
	// a duplicate is worse than a missed one
	first, err := p.deduper.TryMark(ctx, buy.Token.ID())
	if err != nil {
		p.log.Errorf("Dedupe mark failed for %s, error=%v", buy.Token.ID(), err)
		return
	}
	if !first {
		p.log.Debugf("Token %s claimed by a concurrent evaluation", buy.Token.ID())
		return
	}

	rec := &domain.AlertRecord{
		Token:          buy.Token,
		TokenSymbol:    symbol,
		Reason:         reason,
		UniqueBuyers:   stats.UniqueBuyers,
		TotalVolumeUSD: stats.TotalVolumeUSD,
		TriggerUSD:     buy.AmountUSD,
		AlphaScore:     score,
		SafetyScore:    report.Composite,
	}
	rec.Message = alerts.Format(rec)

	p.queue.Enqueue(rec)
	p.m.AlertsEnqueued.Inc()

	if p.archive != nil {
		if err = p.archive.Enqueue(clickhouse.RowFromAlert(rec)); err != nil {
			p.log.Errorf("Failed to archive alert for %s, error=%v", buy.Token.ID(), err)
		}
	}

	p.log.Infof("Whale alert queued: %s", rec.Message)
}

// TokenWindow return current window stats for token; use HTTP handlers for GET method
func (p *Pipeline) TokenWindow(key domain.TokenKey) (domain.WindowStats, error) {
	stats, ok := p.tracker.Stats(key)
	if !ok {
		return domain.WindowStats{}, ErrTokenNotFound
	}
	return stats, nil
}

// Overview return the busiest live windows; use for /api/v1/overview endpoint
func (p *Pipeline) Overview(limit int) []window.TokenWindow {
	return p.tracker.TopByBuyers(limit, time.Now())
}

func (p *Pipeline) Snapshot(ctx context.Context) *domain.StatusSnapshot {
	alerted := 0
	if n, err := p.deduper.Len(ctx); err == nil {
		alerted = n
	}

	return &domain.StatusSnapshot{
		TrackedTokens:   p.tracker.Tracked(),
		AlertedTokens:   alerted,
		ProcessedEvents: p.processed.Load(),
		DroppedEvents:   p.dropped.Load(),
		RecordedBuys:    p.buys.Load(),
		TriggeredEvals:  p.evals.Load(),
		QueueDepth:      p.queue.Depth(),
		DeliveredAlerts: p.queue.Delivered(),
		UptimeSec:       int64(time.Since(p.startedAt).Seconds()),
	}
}

// Close waits for in-flight evaluations; call before closing the queue
func (p *Pipeline) Close() {
	p.wg.Wait()
}
