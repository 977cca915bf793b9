package normalize

import (
	"context"
	"encoding/json"
	"strings"
	"whalewatch/internal/domain"
	"whalewatch/internal/market"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

// Why an incoming event did not become a qualifying buy; "" means it did.
// Drops are silent: debug log + counter, never an error up the stack.
type DropReason string

const (
	DropNone       DropReason = ""
	DropMalformed  DropReason = "malformed"
	DropRemoved    DropReason = "removed"
	DropNotBuy     DropReason = "not_buy"
	DropTokenToken DropReason = "token_token"
	DropZeroAmount DropReason = "zero_amount"
	DropNoPrice    DropReason = "no_price"

	// applied by the pipeline, not the normalizer: buy below the whale floor
	DropBelowFloor DropReason = "below_min_buy"
)

// Turns raw network payloads into qualifying buys.
// Decode is tolerant: any undecodable or incomplete payload is dropped.
// Classify keeps only base->token swaps and values them in USD.
type Normalizer struct {
	log      logger.Logger
	registry *Registry
	prices   market.PriceSource
}

func New(log logger.Logger, registry *Registry, prices market.PriceSource) *Normalizer {
	return &Normalizer{
		log:      log,
		registry: registry,
		prices:   prices,
	}
}

func (n *Normalizer) Decode(data []byte) (*domain.SwapEvent, DropReason) {
	var ev domain.SwapEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		n.log.Debugf("Dropping undecodable event: %v", err)
		return nil, DropMalformed
	}

	if ev.TokenAddress == "" || ev.Wallet == "" || ev.TxHash == "" {
		n.log.Debugf("Dropping incomplete event tx=%s", ev.TxHash)
		return nil, DropMalformed
	}

	ev.TokenAddress = strings.ToLower(ev.TokenAddress)
	ev.BaseAddress = strings.ToLower(ev.BaseAddress)
	ev.Wallet = strings.ToLower(ev.Wallet)

	if ev.EventID == "" {
		ev.EventID = domain.MakeEventID(ev.ChainID, ev.TxHash, ev.LogIndex)
	}

	return &ev, DropNone
}

func (n *Normalizer) Classify(ctx context.Context, ev *domain.SwapEvent) (*domain.TokenBuy, DropReason) {
	// reorg compensation is not a buy
	if ev.Removed {
		return nil, DropRemoved
	}

	if ev.Side != domain.SideBuy {
		return nil, DropNotBuy
	}

	kind := n.registry.Kind(ev.ChainID, ev.BaseAddress)
	if kind == BaseNone {
		// neither wrapped native nor stable on the paid side
		return nil, DropTokenToken
	}

	amount, err := decimal.NewFromString(ev.AmountBase)
	if err != nil {
		n.log.Debugf("Dropping event %s: bad amount_base %q: %v", ev.EventID, ev.AmountBase, err)
		return nil, DropMalformed
	}
	if amount.Sign() <= 0 {
		return nil, DropZeroAmount
	}

	var usd decimal.Decimal
	switch kind {
	case BaseStable:
		// stable treated as exactly 1 USD
		usd = amount
	case BaseNative:
		quote, perr := n.prices.NativeUSD(ctx, ev.ChainID)
		if perr != nil {
			n.log.Debugf("Dropping event %s: %v", ev.EventID, perr)
			return nil, DropNoPrice
		}
		usd = amount.Mul(decimal.NewFromFloat(quote))
	}

	return &domain.TokenBuy{
		Token: domain.TokenKey{
			ChainID:      ev.ChainID,
			TokenAddress: ev.TokenAddress,
		},
		TokenSymbol: ev.TokenSymbol,
		Wallet:      ev.Wallet,
		AmountUSD:   usd.InexactFloat64(),
		EventID:     ev.EventID,
		EventTime:   ev.EventTime,
	}, DropNone
}
