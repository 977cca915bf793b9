package alpha

// Composite alpha score in [0,100]: how interesting the setup is,
// independent of safety. Pure function over banded inputs, no I/O.
//
// whales        <=35: 10+ ->35, 7+ ->30, 5+ ->24, 3+ ->16, 2 ->10, 1 ->5
// liquidityUSD  <=30: 100k+ ->30, 50k+ ->24, 25k+ ->18, 10k+ ->12, 5k+ ->6
// marketCapUSD  <=20: 1M+ ->20, 250k+ ->15, 50k+ ->10, 10k+ ->5
// snipers       <=15: 0 ->15, <=2 ->10, <=5 ->5, else 0 (penalty band)
// combo bonus   +5 whales>=5 with liq>=25k, +5 whales>=3 with mcap 10k..100k
func Score(whales int, liquidityUSD, marketCapUSD float64, snipers int) int {
	score := whalesBand(whales) + liquidityBand(liquidityUSD) + marketCapBand(marketCapUSD) + sniperBand(snipers)

	if whales >= 5 && liquidityUSD >= 25_000 {
		score += 5
	}
	if whales >= 3 && marketCapUSD >= 10_000 && marketCapUSD <= 100_000 {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func whalesBand(n int) int {
	switch {
	case n >= 10:
		return 35
	case n >= 7:
		return 30
	case n >= 5:
		return 24
	case n >= 3:
		return 16
	case n >= 2:
		return 10
	case n >= 1:
		return 5
	default:
		return 0
	}
}

func liquidityBand(usd float64) int {
	switch {
	case usd >= 100_000:
		return 30
	case usd >= 50_000:
		return 24
	case usd >= 25_000:
		return 18
	case usd >= 10_000:
		return 12
	case usd >= 5_000:
		return 6
	default:
		return 0
	}
}

func marketCapBand(usd float64) int {
	switch {
	case usd >= 1_000_000:
		return 20
	case usd >= 250_000:
		return 15
	case usd >= 50_000:
		return 10
	case usd >= 10_000:
		return 5
	default:
		return 0
	}
}

func sniperBand(n int) int {
	switch {
	case n <= 0:
		return 15
	case n <= 2:
		return 10
	case n <= 5:
		return 5
	default:
		return 0
	}
}
