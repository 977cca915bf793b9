package domain

import "time"

// Raw swap event from the stream
type SwapEvent struct {
	ChainID      uint32    `json:"chain_id"`
	TxHash       string    `json:"tx_hash"` // 0x-prefixed 66 chars
	LogIndex     uint32    `json:"log_index"`
	EventID      string    `json:"event_id"`      // chain:tx_hash:logIndex(canon)
	Wallet       string    `json:"wallet"`        // buyer/seller address
	TokenAddress string    `json:"token_address"` // 0x-prefixed 42 chars
	TokenSymbol  string    `json:"token_symbol"`
	BaseAddress  string    `json:"base_address"` // paid asset (native/stable/other token)
	PoolAddress  string    `json:"pool_address"`
	Side         Side      `json:"side"`         // buy|sell
	AmountToken  string    `json:"amount_token"` // decimal(38,18) as string
	AmountBase   string    `json:"amount_base"`  // decimal(38,18) as string
	EventTime    time.Time `json:"event_time"`   // RFC3339/UTC
	BlockNumber  uint64    `json:"block_number"`
	Seq          uint64    `json:"seq,omitempty"` // poll sources only, cursor ordering
	Removed      bool      `json:"removed"`       // reorg compensation flag
	SchemaVer    uint16    `json:"schema_version"`
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Canon key token for window/dedupe/alerts
type TokenKey struct {
	ChainID      uint32
	TokenAddress string // 0x42
}

// Qualifying buy extracted from a SwapEvent: wallet paid base asset for token
type TokenBuy struct {
	Token       TokenKey
	TokenSymbol string
	Wallet      string
	AmountUSD   float64
	EventID     string
	EventTime   time.Time
}

// Snapshot current whale window for one token
type WindowStats struct {
	UniqueBuyers   int       `json:"unique_buyers"`
	TotalVolumeUSD float64   `json:"total_volume_usd"`
	AnchoredAt     time.Time `json:"anchored_at"`
	LastBuyAt      time.Time `json:"last_buy_at"`
}

type TriggerReason string

const (
	TriggerBigSingleBuy TriggerReason = "big_single_buy"
	TriggerMultiWhale   TriggerReason = "multi_whale"
)

// Market stats for one token from the stats provider (pair level)
type MarketStats struct {
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	LiquidityUSD   float64 `json:"liquidity_usd"`
	MarketCapUSD   float64 `json:"market_cap_usd"`
	PriceUSD       float64 `json:"price_usd"`
	AgeHours       float64 `json:"age_hours"`
	PriceChange5m  float64 `json:"price_change_5m"`
	PriceChange1h  float64 `json:"price_change_1h"`
	Buys5m         int     `json:"buys_5m"`
	Sells5m        int     `json:"sells_5m"`
	SniperCount    int     `json:"sniper_count"`
	TopHoldersPct  float64 `json:"top_holders_pct"`
	FetchedAt      time.Time
}

// Outcome one safety check; Score=nil -> provider unavailable, excluded from composite
type CheckResult struct {
	Name   string `json:"name"`
	Score  *int   `json:"score,omitempty"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Full result safety cascade for one token; ephemeral, cached short TTL only
type SafetyReport struct {
	Token     TokenKey      `json:"-"`
	Results   []CheckResult `json:"results"`
	Composite int           `json:"composite"`
	Blocked   bool          `json:"blocked"` // honeypot/tax, absolute
	Allowed   bool          `json:"allowed"`
}

// Alert ready for egress queue
type AlertRecord struct {
	Token          TokenKey      `json:"token"`
	TokenSymbol    string        `json:"token_symbol"`
	Reason         TriggerReason `json:"reason"`
	UniqueBuyers   int           `json:"unique_buyers"`
	TotalVolumeUSD float64       `json:"total_volume_usd"`
	TriggerUSD     float64       `json:"trigger_usd"` // buy that fired the trigger
	AlphaScore     int           `json:"alpha_score"`
	SafetyScore    int           `json:"safety_score"`
	Message        string        `json:"message"`
	EnqueuedAt     time.Time     `json:"enqueued_at"`
}

// Counters for /api/v1/status and periodic NATS broadcast
type StatusSnapshot struct {
	TrackedTokens   int    `json:"tracked_tokens"`
	AlertedTokens   int    `json:"alerted_tokens"`
	ProcessedEvents uint64 `json:"processed_events"`
	DroppedEvents   uint64 `json:"dropped_events"`
	RecordedBuys    uint64 `json:"recorded_buys"`
	TriggeredEvals  uint64 `json:"triggered_evals"`
	QueueDepth      int    `json:"queue_depth"`
	DeliveredAlerts uint64 `json:"delivered_alerts"`
	UptimeSec       int64  `json:"uptime_sec"`
}
