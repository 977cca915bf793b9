package mw

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"whalewatch/internal/config"
	"whalewatch/internal/security"
	rds "whalewatch/internal/stores/redis"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// Two independent buckets: per-IP always, per-JWT subject when the
// request carries a valid token. Redis failure is fail-open, limiter
// must never take the API down with it.
type RateLimitMiddleware struct {
	Cfg      *config.RateLimitConfig
	Rdb      *rds.Client
	Verifier *security.RS256Verifier // not necessarily
}

func NewRateLimit(cfg *config.RateLimitConfig, rdb *rds.Client, verifier *security.RS256Verifier) *RateLimitMiddleware {
	if cfg == nil {
		panic("rate limit config cannot be nil")
	}
	if rdb == nil {
		panic("redis client cannot be nil")
	}

	// sane defaults
	if cfg.ByJWT.TTL == 0 {
		cfg.ByJWT.TTL = 2 * time.Minute
	}
	if cfg.ByIP.TTL == 0 {
		cfg.ByIP.TTL = 2 * time.Minute
	}

	return &RateLimitMiddleware{Cfg: cfg, Rdb: rdb, Verifier: verifier}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now()

		// by ip
		ip := extractClientIP(r, m.Cfg.TrustedProxiesList)
		okIP, leftIP := m.allow(ctx, "rl:ip:"+ip, now, m.Cfg.ByIP)

		w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(m.Cfg.ByIP.Burst))
		w.Header().Set("X-RateLimit-Remaining-IP", strconv.Itoa(int(leftIP)))

		// by JWT subject if exists/valid
		okJWT := true

		sub := subjectFromContext(r)
		if sub == "" && m.Verifier != nil {
			// try to parse ourselves, auth mw may be after us
			if cl, err := m.Verifier.VerifyBearer(r.Header.Get("Authorization")); err == nil {
				if rc, ok := cl.(*jwt.RegisteredClaims); ok && rc.Subject != "" {
					sub = rc.Subject
				}
			}
		}
		if sub != "" {
			var leftJWT float64
			okJWT, leftJWT = m.allow(ctx, "rl:jwt:"+sub, now, m.Cfg.ByJWT)

			w.Header().Set("X-RateLimit-Limit-JWT", strconv.Itoa(m.Cfg.ByJWT.Burst))
			w.Header().Set("X-RateLimit-Remaining-JWT", strconv.Itoa(int(leftJWT)))
		}

		if !(okIP && okJWT) {
			w.Header().Set("Retry-After", strconv.Itoa(m.calculateRetryAfter(okIP, okJWT)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Seconds until the slowest exceeded bucket refills one token, min 1
func (m *RateLimitMiddleware) calculateRetryAfter(okIP, okJWT bool) int {
	retry := 1
	if !okIP && m.Cfg.ByIP.RefillPerSec > 0 {
		if s := int(math.Ceil(1.0 / float64(m.Cfg.ByIP.RefillPerSec))); s > retry {
			retry = s
		}
	}
	if !okJWT && m.Cfg.ByJWT.RefillPerSec > 0 {
		if s := int(math.Ceil(1.0 / float64(m.Cfg.ByJWT.RefillPerSec))); s > retry {
			retry = s
		}
	}
	return retry
}

func subjectFromContext(r *http.Request) string {
	if v := r.Context().Value(claimsCtxKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}

	return ""
}

// --- redis token-bucket (Lua) for atomic and one query ---
var luaTokenBucket = redis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec (integer)
-- ARGV[3] = burst (integer)
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

-- read state
local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

-- replenish
if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tostring(tokens), 'ts', now)
redis.call('EXPIRE', key, ttl)

return {allowed, tostring(tokens)}
`)

func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucket) (bool, float64) {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = 120
	}

	res, err := luaTokenBucket.Run(ctx, m.Rdb.Client, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Result()
	if err != nil { // if failure then don't crash
		return true, 0
	}

	arr, ok := res.([]any)
	if !ok || len(arr) != 2 {
		return true, 0
	}

	allowed, _ := arr[0].(int64)
	tokensLeft := 0.0
	if s, ok := arr[1].(string); ok {
		tokensLeft, _ = strconv.ParseFloat(s, 64)
	}

	return allowed == 1, tokensLeft
}

// Client IP for the bucket key. XFF chain is only walked when we know
// our proxies, an unknown sender can put anything in that header.
func extractClientIP(r *http.Request, trustedProxies []string) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		chain := parseXFF(xff)
		if len(chain) > 0 {
			if len(trustedProxies) > 0 {
				// right to left: first hop that is not our proxy is the client
				for i := len(chain) - 1; i >= 0; i-- {
					if !isTrusted(chain[i], trustedProxies) {
						return chain[i]
					}
				}
				// whole chain is ours, prefer a public hop if any
				for _, hop := range chain {
					if isPublicIP(hop) {
						return hop
					}
				}
			}
			return chain[0]
		}
	}

	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" && net.ParseIP(xrip) != nil {
		return xrip
	}

	return remoteAddrIP(r.RemoteAddr)
}

// Split XFF and keep only parseable addresses
func parseXFF(xff string) []string {
	parts := strings.Split(xff, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		ip := strings.TrimSpace(p)
		if ip != "" && net.ParseIP(ip) != nil {
			out = append(out, ip)
		}
	}
	return out
}

func remoteAddrIP(addr string) string {
	addr = strings.TrimSpace(addr)

	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if net.ParseIP(addr) != nil {
		return addr
	}

	return "unknown"
}

// Exact IP or CIDR membership
func isTrusted(ip string, trusted []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, t := range trusted {
		if strings.Contains(t, "/") {
			if _, ipnet, err := net.ParseCIDR(t); err == nil && ipnet.Contains(parsed) {
				return true
			}
			continue
		}
		if tip := net.ParseIP(t); tip != nil && tip.Equal(parsed) {
			return true
		}
	}

	return false
}

func isPublicIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	return !(parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() || parsed.IsUnspecified() || parsed.IsMulticast())
}
