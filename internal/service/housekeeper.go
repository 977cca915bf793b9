package service

import (
	"context"
	"errors"
	"time"
	"whalewatch/internal/alerts"
	"whalewatch/internal/config"
	"whalewatch/internal/dedupe"
	"whalewatch/internal/market"
	"whalewatch/internal/metrics"
	"whalewatch/internal/safety"
	"whalewatch/internal/window"

	"gitlab.com/nevasik7/alerting/logger"
)

// idle windows are dropped after this many window durations without a buy
const idleFactor = 3

type HousekeeperDeps struct {
	Logger   logger.Logger
	Tracker  *window.Tracker
	Deduper  dedupe.Deduper
	Provider *market.HTTPProvider // optional
	Cascade  *safety.Cascade
	Queue    *alerts.Queue
	Metrics  *metrics.Metrics
}

// Housekeeper is the single periodic janitor: idle window eviction,
// wholesale dedupe reset at the size bound, cache purges and gauge
// refresh all happen on one tick.
//
// The native price cache is deliberately not purged here, expired
// quotes stay around as the stale fallback.
type Housekeeper struct {
	log       logger.Logger
	interval  time.Duration
	maxDedupe int

	tracker  *window.Tracker
	deduper  dedupe.Deduper
	provider *market.HTTPProvider
	cascade  *safety.Cascade
	queue    *alerts.Queue
	m        *metrics.Metrics
}

func NewHousekeeper(deps *HousekeeperDeps, cfg *config.HousekeepingConfig, dedupeCfg *config.DedupeConfig) (*Housekeeper, error) {
	if deps == nil {
		return nil, errors.New("housekeeper deps are required")
	}
	if deps.Logger == nil || deps.Tracker == nil || deps.Deduper == nil ||
		deps.Cascade == nil || deps.Queue == nil || deps.Metrics == nil {
		return nil, errors.New("housekeeper deps are incomplete")
	}

	interval := time.Minute
	if cfg != nil && cfg.Interval > 0 {
		interval = cfg.Interval
	}

	maxDedupe := 10000
	if dedupeCfg != nil && dedupeCfg.MaxEntries > 0 {
		maxDedupe = dedupeCfg.MaxEntries
	}

	return &Housekeeper{
		log:       deps.Logger,
		interval:  interval,
		maxDedupe: maxDedupe,
		tracker:   deps.Tracker,
		deduper:   deps.Deduper,
		provider:  deps.Provider,
		cascade:   deps.Cascade,
		queue:     deps.Queue,
		m:         deps.Metrics,
	}, nil
}

// Run blocks until ctx cancel
func (h *Housekeeper) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	h.log.Infof("Housekeeper running every %s", h.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			h.sweep(ctx, now)
		}
	}
}

func (h *Housekeeper) sweep(ctx context.Context, now time.Time) {
	evicted := h.tracker.EvictIdle(now, idleFactor*h.tracker.Duration())

	cleared := false
	if n, err := h.deduper.Len(ctx); err == nil && n > h.maxDedupe {
		if err = h.deduper.Clear(ctx); err != nil {
			h.log.Errorf("Failed to clear dedupe set, error=%v", err)
		} else {
			cleared = true
		}
	}

	metaPurged := 0
	if h.provider != nil {
		metaPurged = h.provider.Purge()
	}
	reportsPurged := h.cascade.Purge()

	h.refreshGauges(ctx)

	h.log.Debugf("Housekeeping pass: windows_evicted=%d meta_purged=%d reports_purged=%d dedupe_cleared=%v",
		evicted, metaPurged, reportsPurged, cleared)
}

func (h *Housekeeper) refreshGauges(ctx context.Context) {
	h.m.TrackedTokens.Set(float64(h.tracker.Tracked()))
	h.m.QueueDepth.Set(float64(h.queue.Depth()))
	if n, err := h.deduper.Len(ctx); err == nil {
		h.m.DedupeSize.Set(float64(n))
	}
}
