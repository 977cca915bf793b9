package safety

import (
	"context"
	"time"
	"whalewatch/internal/domain"
)

type Stage int

const (
	// StageBlock checks run in list order, one by one, and can veto the
	// token absolutely (honeypot, tax). First veto stops the cascade.
	StageBlock Stage = iota
	// StageDeep checks run concurrently and only contribute sub-scores.
	StageDeep
)

// Verdict one check for one token
type Verdict struct {
	Score   int
	Blocked bool
	Reason  string
}

// One pluggable safety check. Run errors never abort the cascade: the
// check is recorded as unavailable and drops out of the composite.
type Check interface {
	Name() string
	Stage() Stage
	Weight() float64
	Run(ctx context.Context, key domain.TokenKey, stats *domain.MarketStats) (Verdict, error)
}

const (
	neutralScore = 50

	checkMarketBounds = "market_bounds"
	checkHoneypot     = "honeypot"
	checkHolders      = "holders"
	checkLPLock       = "lp_lock"
	checkSocial       = "social"
	checkMomentum     = "momentum"
)

// Weighted composite over the checks that produced a score. Weight mass
// renormalizes to what is present, so an unavailable provider is
// effectively neutral. Nothing scored at all -> plain neutral.
func composite(results []domain.CheckResult, weightOf map[string]float64) int {
	var sum, mass float64
	for _, r := range results {
		if r.Score == nil {
			continue
		}
		w := weightOf[r.Name]
		if w <= 0 {
			continue
		}
		sum += w * float64(*r.Score)
		mass += w
	}

	if mass == 0 {
		return neutralScore
	}

	c := int(sum/mass + 0.5)
	if c > 100 {
		c = 100
	}
	if c < 0 {
		c = 0
	}
	return c
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func intPtr(v int) *int { return &v }

// run with per-check deadline and panic fence: a crashing check reads
// as a provider failure, nothing more
func runChecked(ctx context.Context, timeout time.Duration, c Check, key domain.TokenKey, stats *domain.MarketStats) (v Verdict, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			v = Verdict{}
			err = &checkPanicError{check: c.Name(), value: r}
		}
	}()

	return c.Run(ctx, key, stats)
}

type checkPanicError struct {
	check string
	value any
}

func (e *checkPanicError) Error() string {
	return "safety check " + e.check + " panicked"
}
