package window

import (
	"errors"
	"sort"
	"sync"
	"time"

	"whalewatch/internal/config"
	"whalewatch/internal/domain"

	"gitlab.com/nevasik7/alerting/logger"
)

/*
	Whale window per token: fixed duration, anchored at first sighting.
	The window never slides. When a buy lands after the window expired,
	state resets wholesale and re-anchors at that buy, so a quiet token
	always starts a fresh count.
	Tracker is the only owner of this state; everything goes through it.
*/

type Tracker struct {
	log      logger.Logger
	duration time.Duration

	mw    sync.RWMutex           // protection from race condition by concurrent access
	state map[string]*tokenState // state all tokens (key = "chainID:address")
}

type tokenState struct {
	key       domain.TokenKey
	anchor    time.Time
	buyers    map[string]float64 // wallet -> cumulative USD inside window
	volumeUSD float64
	lastBuy   time.Time
}

// Token + its current window, for overview listing
type TokenWindow struct {
	Token domain.TokenKey    `json:"token"`
	Stats domain.WindowStats `json:"stats"`
}

func NewTracker(log logger.Logger, cfg *config.WindowConfig) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the window tracker")
	}

	duration := cfg.Duration
	if duration <= 0 {
		duration = 10 * time.Minute
	}

	return &Tracker{
		log:      log,
		duration: duration,
		state:    make(map[string]*tokenState, 1024),
	}, nil
}

func (t *Tracker) Duration() time.Duration {
	return t.duration
}

// Record one qualifying buy and return the window after it landed.
// Expiry is checked before recording: a late buy resets the window and
// becomes the first buy of the fresh one.
func (t *Tracker) RecordBuy(key domain.TokenKey, wallet string, usd float64, now time.Time) domain.WindowStats {
	stateKey := key.ID()

	t.mw.Lock()
	defer t.mw.Unlock()

	ts, exists := t.state[stateKey]
	if !exists {
		ts = &tokenState{
			key:    key,
			anchor: now,
			buyers: make(map[string]float64, 8),
		}
		t.state[stateKey] = ts
	} else if now.Sub(ts.anchor) > t.duration {
		t.log.Debugf("Window expired for %s (anchor=%s), resetting", stateKey, ts.anchor.Format(time.RFC3339))
		ts.anchor = now
		ts.buyers = make(map[string]float64, 8)
		ts.volumeUSD = 0
	}

	ts.buyers[wallet] += usd
	ts.volumeUSD += usd
	ts.lastBuy = now

	return domain.WindowStats{
		UniqueBuyers:   len(ts.buyers),
		TotalVolumeUSD: ts.volumeUSD,
		AnchoredAt:     ts.anchor,
		LastBuyAt:      ts.lastBuy,
	}
}

// Read current window for token; use get http handler.
// A window past its duration reads as absent: it only resets lazily on
// the next buy, but showing it would leak stale counts.
func (t *Tracker) Stats(key domain.TokenKey) (domain.WindowStats, bool) {
	t.mw.RLock()
	defer t.mw.RUnlock()

	ts, exists := t.state[key.ID()]
	if !exists {
		return domain.WindowStats{}, false
	}
	if time.Since(ts.anchor) > t.duration {
		return domain.WindowStats{}, false
	}

	return domain.WindowStats{
		UniqueBuyers:   len(ts.buyers),
		TotalVolumeUSD: ts.volumeUSD,
		AnchoredAt:     ts.anchor,
		LastBuyAt:      ts.lastBuy,
	}, true
}

func (t *Tracker) Tracked() int {
	t.mw.RLock()
	defer t.mw.RUnlock()
	return len(t.state)
}

// Top active windows by unique buyers, volume breaks ties
func (t *Tracker) TopByBuyers(limit int, now time.Time) []TokenWindow {
	t.mw.RLock()

	out := make([]TokenWindow, 0, len(t.state))
	for _, ts := range t.state {
		if now.Sub(ts.anchor) > t.duration {
			continue
		}
		out = append(out, TokenWindow{
			Token: ts.key,
			Stats: domain.WindowStats{
				UniqueBuyers:   len(ts.buyers),
				TotalVolumeUSD: ts.volumeUSD,
				AnchoredAt:     ts.anchor,
				LastBuyAt:      ts.lastBuy,
			},
		})
	}
	t.mw.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Stats.UniqueBuyers != out[j].Stats.UniqueBuyers {
			return out[i].Stats.UniqueBuyers > out[j].Stats.UniqueBuyers
		}
		return out[i].Stats.TotalVolumeUSD > out[j].Stats.TotalVolumeUSD
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Drop tokens idle longer than maxIdle; called from housekeeping sweep
func (t *Tracker) EvictIdle(now time.Time, maxIdle time.Duration) int {
	t.mw.Lock()
	defer t.mw.Unlock()

	evicted := 0
	for k, ts := range t.state {
		if now.Sub(ts.lastBuy) > maxIdle {
			delete(t.state, k)
			evicted++
		}
	}

	if evicted > 0 {
		t.log.Debugf("Evicted %d idle token windows, %d remain", evicted, len(t.state))
	}
	return evicted
}
