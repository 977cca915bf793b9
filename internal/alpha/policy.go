package alpha

import (
	"whalewatch/internal/config"
	"whalewatch/internal/domain"
)

// Decides when a window is worth a full safety evaluation.
// Two independent triggers: one wallet buying big while alone in the
// window, or enough distinct whales accumulating inside it.
type TriggerPolicy struct {
	BigBuyUSD float64
	MinWhales int
}

func NewTriggerPolicy(cfg *config.WindowConfig) TriggerPolicy {
	p := TriggerPolicy{
		BigBuyUSD: cfg.BigBuyUSD,
		MinWhales: cfg.MinWhales,
	}

	// sane defaults
	if p.BigBuyUSD <= 0 {
		p.BigBuyUSD = 2500
	}
	if p.MinWhales <= 0 {
		p.MinWhales = 3
	}

	return p
}

func (p TriggerPolicy) Evaluate(buyUSD float64, uniqueBuyers int) (domain.TriggerReason, bool) {
	if buyUSD >= p.BigBuyUSD && uniqueBuyers == 1 {
		return domain.TriggerBigSingleBuy, true
	}
	if uniqueBuyers >= p.MinWhales {
		return domain.TriggerMultiWhale, true
	}
	return "", false
}
