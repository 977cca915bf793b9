package safety

import (
	"context"
	"fmt"
	"whalewatch/internal/config"
	"whalewatch/internal/domain"
)

// Honeypot probe, the only absolute veto besides tax: a token that
// cannot be sold is never alertable no matter how it scores.
type HoneypotCheck struct {
	client    *SecurityClient
	maxTaxPct float64
}

func NewHoneypotCheck(client *SecurityClient, cfg *config.SafetyConfig) *HoneypotCheck {
	maxTax := cfg.MaxTaxPct
	if maxTax <= 0 {
		maxTax = 10
	}
	return &HoneypotCheck{client: client, maxTaxPct: maxTax}
}

func (c *HoneypotCheck) Name() string    { return checkHoneypot }
func (c *HoneypotCheck) Stage() Stage    { return StageBlock }
func (c *HoneypotCheck) Weight() float64 { return 0.35 }

func (c *HoneypotCheck) Run(ctx context.Context, key domain.TokenKey, _ *domain.MarketStats) (Verdict, error) {
	res, err := c.client.Honeypot(ctx, key)
	if err != nil {
		return Verdict{}, err
	}

	if res.IsHoneypot || !res.CanSell {
		return Verdict{Blocked: true, Reason: "honeypot: sell simulation failed"}, nil
	}

	maxTax := res.BuyTaxPct
	if res.SellTaxPct > maxTax {
		maxTax = res.SellTaxPct
	}
	if maxTax > c.maxTaxPct {
		return Verdict{Blocked: true, Reason: fmt.Sprintf("tax %.1f%% above cap %.1f%%", maxTax, c.maxTaxPct)}, nil
	}

	// 5 points per tax percent off a clean 100
	return Verdict{Score: clampScore(100 - int(maxTax*5))}, nil
}

// Holder concentration: top-10 share and creator bag drag the score down
type HoldersCheck struct {
	client *SecurityClient
}

func NewHoldersCheck(client *SecurityClient) *HoldersCheck {
	return &HoldersCheck{client: client}
}

func (c *HoldersCheck) Name() string    { return checkHolders }
func (c *HoldersCheck) Stage() Stage    { return StageDeep }
func (c *HoldersCheck) Weight() float64 { return 0.25 }

func (c *HoldersCheck) Run(ctx context.Context, key domain.TokenKey, _ *domain.MarketStats) (Verdict, error) {
	res, err := c.client.Holders(ctx, key)
	if err != nil {
		return Verdict{}, err
	}

	score := 100 - int(res.Top10Pct) - int(res.CreatorPct*2)
	if res.HolderCount > 0 && res.HolderCount < 50 {
		score -= 20 // barely distributed
	}

	return Verdict{Score: clampScore(score)}, nil
}

// LP lock: burned liquidity is the gold case, short locks score low
type LPLockCheck struct {
	client *SecurityClient
}

func NewLPLockCheck(client *SecurityClient) *LPLockCheck {
	return &LPLockCheck{client: client}
}

func (c *LPLockCheck) Name() string    { return checkLPLock }
func (c *LPLockCheck) Stage() Stage    { return StageDeep }
func (c *LPLockCheck) Weight() float64 { return 0.25 }

func (c *LPLockCheck) Run(ctx context.Context, key domain.TokenKey, _ *domain.MarketStats) (Verdict, error) {
	res, err := c.client.LPLock(ctx, key)
	if err != nil {
		return Verdict{}, err
	}

	var score int
	switch {
	case res.Burned:
		score = 100
	case res.LockedPct >= 80:
		score = 90
	case res.LockedPct >= 50:
		score = 70
	case res.LockedPct >= 25:
		score = 45
	default:
		score = 20
	}

	return Verdict{Score: score}, nil
}

// Social presence: thin signal, small weight
type SocialCheck struct {
	client *SecurityClient
}

func NewSocialCheck(client *SecurityClient) *SocialCheck {
	return &SocialCheck{client: client}
}

func (c *SocialCheck) Name() string    { return checkSocial }
func (c *SocialCheck) Stage() Stage    { return StageDeep }
func (c *SocialCheck) Weight() float64 { return 0.15 }

func (c *SocialCheck) Run(ctx context.Context, key domain.TokenKey, _ *domain.MarketStats) (Verdict, error) {
	res, err := c.client.Social(ctx, key)
	if err != nil {
		return Verdict{}, err
	}

	score := 20
	for _, has := range []bool{res.HasWebsite, res.HasTwitter, res.HasTelegram} {
		if has {
			score += 20
		}
	}
	score += clampScore(res.MentionScore) / 5 // up to +20

	return Verdict{Score: clampScore(score)}, nil
}

// Momentum is informational only (weight 0): shown in the report, never
// part of the composite. Works off pair stats, no extra provider call.
type MomentumCheck struct{}

func NewMomentumCheck() *MomentumCheck { return &MomentumCheck{} }

func (c *MomentumCheck) Name() string    { return checkMomentum }
func (c *MomentumCheck) Stage() Stage    { return StageDeep }
func (c *MomentumCheck) Weight() float64 { return 0 }

func (c *MomentumCheck) Run(_ context.Context, _ domain.TokenKey, stats *domain.MarketStats) (Verdict, error) {
	if stats == nil {
		return Verdict{Score: neutralScore}, nil
	}

	score := neutralScore
	if stats.Buys5m > 2*stats.Sells5m {
		score += 25
	} else if stats.Sells5m > 2*stats.Buys5m {
		score -= 25
	}

	drift := int(stats.PriceChange1h / 2)
	if drift > 25 {
		drift = 25
	}
	if drift < -25 {
		drift = -25
	}
	score += drift

	return Verdict{Score: clampScore(score)}, nil
}

// Default ordered list: veto checks first, deep probes after.
// Deep entries only run when deep_analysis is on.
func DefaultChecks(client *SecurityClient, cfg *config.SafetyConfig) []Check {
	return []Check{
		NewHoneypotCheck(client, cfg),
		NewHoldersCheck(client),
		NewLPLockCheck(client),
		NewSocialCheck(client),
		NewMomentumCheck(),
	}
}
