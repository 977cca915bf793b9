package normalize

import (
	"strings"
	"whalewatch/internal/config"
)

type BaseKind int

const (
	BaseNone BaseKind = iota
	BaseNative
	BaseStable
)

// Per-chain base assets. A swap qualifies as a buy only when the paid
// side is one of these; token-to-token swaps are noise.
type Registry struct {
	chains map[uint32]*chainAssets
}

type chainAssets struct {
	wrappedNative string
	stables       map[string]struct{}
}

func NewRegistry(chains []config.ChainAssets) *Registry {
	r := &Registry{chains: make(map[uint32]*chainAssets, len(chains))}

	for _, c := range chains {
		ca := &chainAssets{
			wrappedNative: strings.ToLower(c.WrappedNative),
			stables:       make(map[string]struct{}, len(c.Stables)),
		}
		for _, s := range c.Stables {
			ca.stables[strings.ToLower(s)] = struct{}{}
		}
		r.chains[c.ChainID] = ca
	}

	return r
}

func (r *Registry) Kind(chainID uint32, addr string) BaseKind {
	ca, ok := r.chains[chainID]
	if !ok {
		return BaseNone
	}

	addr = strings.ToLower(addr)
	if addr == "" {
		return BaseNone
	}
	if addr == ca.wrappedNative {
		return BaseNative
	}
	if _, ok = ca.stables[addr]; ok {
		return BaseStable
	}

	return BaseNone
}

func (r *Registry) KnownChain(chainID uint32) bool {
	_, ok := r.chains[chainID]
	return ok
}
