package safety

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"whalewatch/internal/cache"
	"whalewatch/internal/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/market"

	"gitlab.com/nevasik7/alerting/logger"
)

/*
	Safety cascade, cheapest first:
	  A. market bounds on cached pair stats (liquidity, mcap, age)
	  B. blocking checks in list order (honeypot/tax veto)
	  C. deep probes concurrently, each with its own deadline
	A bound miss or a veto stops everything after it. Provider failures
	in B/C degrade to "check unavailable" and the composite renormalizes
	over what answered.
*/

type Cascade struct {
	log    logger.Logger
	cfg    config.SafetyConfig
	stats  market.StatsProvider
	checks []Check

	weightOf map[string]float64
	reports  *cache.TTLCache
}

func NewCascade(log logger.Logger, cfg *config.SafetyConfig, providers *config.ProvidersConfig, stats market.StatsProvider, checks []Check) (*Cascade, error) {
	if cfg == nil {
		return nil, errors.New("safety config is required")
	}
	if stats == nil {
		return nil, errors.New("stats provider is required")
	}

	c := *cfg

	// sane defaults
	if c.MinScore <= 0 {
		c.MinScore = 60
	}
	if c.MaxTaxPct <= 0 {
		c.MaxTaxPct = 10
	}
	if c.MinLiquidityUSD <= 0 {
		c.MinLiquidityUSD = 5_000
	}
	if c.MaxLiquidityUSD <= 0 {
		c.MaxLiquidityUSD = 2_000_000
	}
	if c.MinMarketCapUSD <= 0 {
		c.MinMarketCapUSD = 10_000
	}
	if c.MaxMarketCapUSD <= 0 {
		c.MaxMarketCapUSD = 50_000_000
	}
	if c.MaxAgeHours <= 0 {
		c.MaxAgeHours = 72
	}
	if c.HoneypotTimeout <= 0 {
		c.HoneypotTimeout = 5 * time.Second
	}
	if c.DeepTimeout <= 0 {
		c.DeepTimeout = 8 * time.Second
	}

	reportTTL := 5 * time.Minute
	maxEntries := 4096
	if providers != nil {
		if providers.ReportTTL > 0 {
			reportTTL = providers.ReportTTL
		}
		if providers.MaxEntries > 0 {
			maxEntries = providers.MaxEntries
		}
	}

	weightOf := make(map[string]float64, len(checks))
	for _, ch := range checks {
		weightOf[ch.Name()] = ch.Weight()
	}

	return &Cascade{
		log:      log,
		cfg:      c,
		stats:    stats,
		checks:   checks,
		weightOf: weightOf,
		reports:  cache.NewTTL(reportTTL, maxEntries),
	}, nil
}

// Evaluate runs the cascade for one token. Reports are cached for the
// report TTL, pass or fail, to spare the providers on re-triggers.
// Error only on context cancellation.
func (c *Cascade) Evaluate(ctx context.Context, key domain.TokenKey) (*domain.SafetyReport, *domain.MarketStats, error) {
	cacheKey := key.ID()
	if v, ok := c.reports.Get(cacheKey); ok {
		cached := v.(*cachedReport)
		return cached.report, cached.stats, nil
	}

	report := &domain.SafetyReport{Token: key}

	// Stage A: bounds on cached pair stats, no extra provider work
	stats, err := c.stats.Stats(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		// can't verify bounds -> not alertable, normal negative outcome
		c.log.Debugf("Market stats unavailable for %s: %v", cacheKey, err)
		report.Results = append(report.Results, domain.CheckResult{
			Name:   checkMarketBounds,
			Passed: false,
			Reason: "pair stats unavailable",
		})
		c.store(cacheKey, report, nil)
		return report, nil, nil
	}

	if reason, ok := c.checkBounds(stats); !ok {
		report.Results = append(report.Results, domain.CheckResult{
			Name:   checkMarketBounds,
			Passed: false,
			Reason: reason,
		})
		c.store(cacheKey, report, stats)
		return report, stats, nil
	}
	report.Results = append(report.Results, domain.CheckResult{Name: checkMarketBounds, Passed: true})

	// Stage B: blocking checks in order
	for _, ch := range c.checks {
		if ch.Stage() != StageBlock {
			continue
		}

		v, cerr := runChecked(ctx, c.cfg.HoneypotTimeout, ch, key, stats)
		if cerr != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			// degraded: unavailable, not a veto
			c.log.Warnf("Safety check %s degraded for %s: %v", ch.Name(), cacheKey, cerr)
			report.Results = append(report.Results, domain.CheckResult{
				Name:   ch.Name(),
				Passed: true,
				Reason: "provider unavailable",
			})
			continue
		}

		if v.Blocked {
			report.Results = append(report.Results, domain.CheckResult{
				Name:   ch.Name(),
				Passed: false,
				Reason: v.Reason,
			})
			report.Blocked = true
			c.store(cacheKey, report, stats)
			return report, stats, nil
		}

		report.Results = append(report.Results, domain.CheckResult{
			Name:   ch.Name(),
			Score:  intPtr(v.Score),
			Passed: true,
		})
	}

	// Stage C: deep probes, concurrent, optional
	if c.cfg.DeepAnalysis {
		report.Results = append(report.Results, c.runDeep(ctx, key, stats)...)
	}

	report.Composite = composite(report.Results, c.weightOf)
	report.Allowed = !report.Blocked && report.Composite >= c.cfg.MinScore

	c.store(cacheKey, report, stats)
	return report, stats, nil
}

func (c *Cascade) MinScore() int {
	return c.cfg.MinScore
}

// Drop expired cached reports; called from housekeeping sweep
func (c *Cascade) Purge() int {
	return c.reports.PurgeExpired()
}

func (c *Cascade) checkBounds(stats *domain.MarketStats) (string, bool) {
	if stats.LiquidityUSD < c.cfg.MinLiquidityUSD {
		return fmt.Sprintf("liquidity %.0f below min %.0f", stats.LiquidityUSD, c.cfg.MinLiquidityUSD), false
	}
	if stats.LiquidityUSD > c.cfg.MaxLiquidityUSD {
		return fmt.Sprintf("liquidity %.0f above max %.0f", stats.LiquidityUSD, c.cfg.MaxLiquidityUSD), false
	}
	if stats.MarketCapUSD < c.cfg.MinMarketCapUSD {
		return fmt.Sprintf("mcap %.0f below min %.0f", stats.MarketCapUSD, c.cfg.MinMarketCapUSD), false
	}
	if stats.MarketCapUSD > c.cfg.MaxMarketCapUSD {
		return fmt.Sprintf("mcap %.0f above max %.0f", stats.MarketCapUSD, c.cfg.MaxMarketCapUSD), false
	}
	if stats.AgeHours > c.cfg.MaxAgeHours {
		return fmt.Sprintf("pair age %.0fh above max %.0fh", stats.AgeHours, c.cfg.MaxAgeHours), false
	}
	return "", true
}

func (c *Cascade) runDeep(ctx context.Context, key domain.TokenKey, stats *domain.MarketStats) []domain.CheckResult {
	type indexed struct {
		idx int
		res domain.CheckResult
	}

	var deep []Check
	for _, ch := range c.checks {
		if ch.Stage() == StageDeep {
			deep = append(deep, ch)
		}
	}
	if len(deep) == 0 {
		return nil
	}

	out := make(chan indexed, len(deep))
	var wg sync.WaitGroup

	for i, ch := range deep {
		wg.Add(1)
		go func(idx int, ch Check) {
			defer wg.Done()

			v, err := runChecked(ctx, c.cfg.DeepTimeout, ch, key, stats)
			if err != nil {
				c.log.Debugf("Deep check %s unavailable for %s: %v", ch.Name(), key.ID(), err)
				out <- indexed{idx, domain.CheckResult{
					Name:   ch.Name(),
					Passed: true,
					Reason: "provider unavailable",
				}}
				return
			}

			out <- indexed{idx, domain.CheckResult{
				Name:   ch.Name(),
				Score:  intPtr(v.Score),
				Passed: true,
			}}
		}(i, ch)
	}

	wg.Wait()
	close(out)

	// keep list order stable in the report
	results := make([]domain.CheckResult, len(deep))
	for ir := range out {
		results[ir.idx] = ir.res
	}
	return results
}

type cachedReport struct {
	report *domain.SafetyReport
	stats  *domain.MarketStats
}

func (c *Cascade) store(key string, report *domain.SafetyReport, stats *domain.MarketStats) {
	c.reports.Set(key, &cachedReport{report: report, stats: stats})
}
