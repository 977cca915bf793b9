//go:build ignore

// Run: go run ./build-tools/loadgen.go -url nats://localhost:4222 -subject swaps.events -rps 500 -duration 60s -tokens PEPE,WOJAK,TURBO

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	mrand "math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

type SwapEvent struct {
	ChainID      uint32 `json:"chain_id"`
	TxHash       string `json:"tx_hash"`
	LogIndex     uint32 `json:"log_index"`
	EventID      string `json:"event_id"`
	Wallet       string `json:"wallet"`
	TokenAddress string `json:"token_address"`
	TokenSymbol  string `json:"token_symbol"`
	BaseAddress  string `json:"base_address"`
	PoolAddress  string `json:"pool_address"`
	Side         string `json:"side"`
	AmountToken  string `json:"amount_token"`
	AmountBase   string `json:"amount_base"`
	EventTime    string `json:"event_time"` // RFC3339
	BlockNumber  uint64 `json:"block_number"`
	Removed      bool   `json:"removed"`
	SchemaVer    uint16 `json:"schema_version"`
}

// mainnet USDC; amount_base is then USD as-is
const defaultBase = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"

func main() {
	var (
		url      = flag.String("url", "nats://localhost:4222", "NATS server url")
		subject  = flag.String("subject", "swaps.events", "subject to publish raw swaps")
		rps      = flag.Int("rps", 500, "events per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		tokens   = flag.String("tokens", "PEPE,WOJAK,TURBO,DOGE", "comma-separated token symbols")
		chainID  = flag.Uint("chain", 1, "chain id")
		base     = flag.String("base", defaultBase, "base asset paid in generated buys")
		whales   = flag.Int("whales", 50, "distinct wallets to rotate")
	)
	flag.Parse()

	tokenSymbols := splitTrim(*tokens)
	if len(tokenSymbols) == 0 {
		fmt.Println("no tokens provided")
		os.Exit(1)
	}

	// every symbol keeps one address so windows accumulate
	tokenAddrs := make(map[string]string, len(tokenSymbols))
	for _, s := range tokenSymbols {
		tokenAddrs[s] = "0x" + randHex(40)
	}
	wallets := make([]string, *whales)
	for i := range wallets {
		wallets[i] = "0x" + randHex(40)
	}

	nc, err := nats.Connect(*url, nats.Name("whalewatch-loadgen"))
	if err != nil {
		fmt.Printf("nats connect error: %v\n", err)
		os.Exit(1)
	}
	defer nc.Drain()

	fmt.Printf("loadgen → url=%s subject=%s rps=%d duration=%s\n", *url, *subject, *rps, duration.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	end := start.Add(*duration)

	// steady pace with a little drift
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0 // 10 ticket in sec
	accum := 0.0
	sent := 0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				ev := randomEvent(uint32(*chainID), *base, tokenSymbols, tokenAddrs, wallets)
				val, _ := json.Marshal(ev)
				if err := nc.Publish(*subject, val); err != nil {
					fmt.Printf("publish error: %v\n", err)
					continue
				}
				sent++
			}
		}
	}

	fmt.Println("flushing…")
	_ = nc.Flush()
	fmt.Printf("done, sent=%d\n", sent)
}

func randomEvent(chainID uint32, base string, symbols []string, addrs map[string]string, wallets []string) *SwapEvent {
	now := time.Now().UTC()
	token := symbols[mrand.Intn(len(symbols))]

	tx := "0x" + randHex(64)
	logIndex := uint32(mrand.Intn(20))
	eventID := fmt.Sprintf("%d:%s:%d", chainID, tx, logIndex)
	pool := "0x" + randHex(40)

	side := "buy"
	if mrand.Intn(4) == 0 {
		side = "sell"
	}

	// mostly shrimp, the occasional whale so triggers actually fire
	usd := 10 + mrand.Float64()*400
	if mrand.Intn(20) == 0 {
		usd = 600 + mrand.Float64()*4000
	}

	return &SwapEvent{
		ChainID:      chainID,
		TxHash:       tx,
		LogIndex:     logIndex,
		EventID:      eventID,
		Wallet:       wallets[mrand.Intn(len(wallets))],
		TokenAddress: addrs[token],
		TokenSymbol:  token,
		BaseAddress:  base,
		PoolAddress:  pool,
		Side:         side,
		AmountToken:  fmt.Sprintf("%.6f", 10+mrand.Float64()*1000),
		AmountBase:   fmt.Sprintf("%.2f", usd),
		EventTime:    now.Format(time.RFC3339Nano),
		BlockNumber:  uint64(20_000_000 + mrand.Intn(1_000_000)),
		Removed:      false,
		SchemaVer:    1,
	}
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
