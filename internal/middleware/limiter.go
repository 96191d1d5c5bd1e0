package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate Limit Tiers
const (
	// Browser return pages (Strict)
	limitStrict = rate.Limit(2)
	burstStrict = 5

	// Gateway IPN callbacks: few source IPs, many orders
	limitGateway = rate.Limit(50)
	burstGateway = 100

	// General (Default)
	limitGeneral = rate.Limit(10)
	burstGeneral = 20

	// Internal / trusted services
	limitInternal = rate.Limit(100)
	burstInternal = 200
)

const visitorIdleTTL = 3 * time.Minute

type tier struct {
	name  string
	limit rate.Limit
	burst int
}

var (
	tierStrict   = tier{"strict", limitStrict, burstStrict}
	tierGateway  = tier{"gateway", limitGateway, burstGateway}
	tierGeneral  = tier{"general", limitGeneral, burstGeneral}
	tierInternal = tier{"internal", limitInternal, burstInternal}
)

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client address and tier.
type RateLimiter struct {
	internalKey    string
	trustedProxies []netip.Prefix

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewRateLimiter builds a limiter; requests whose X-Service-Auth header
// equals internalKey get the internal tier. An empty key disables that tier.
// X-Forwarded-For is only read when the peer is in trustedProxies.
func NewRateLimiter(internalKey string, trustedProxies []netip.Prefix) *RateLimiter {
	return &RateLimiter{
		internalKey:    internalKey,
		trustedProxies: trustedProxies,
		visitors:       make(map[string]*visitor),
	}
}

// ParseTrustedProxies reads a comma separated list of CIDRs or bare IPs.
func ParseTrustedProxies(list string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", item, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", item, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// Run sweeps idle visitors every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.sweep(now)
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(rl.visitors, key)
		}
	}
}

func (rl *RateLimiter) getVisitor(key string, t tier) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(t.limit, t.burst)
		rl.visitors[key] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Middleware rejects requests over their bucket with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return rl.Limit(tooManyRequests)(next)
}

// Limit is Middleware with the rejection written by reject, for callers
// whose protocol does not allow a 429.
func (rl *RateLimiter) Limit(reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := rl.resolveTier(r)

			// Same client gets separate quotas per tier, e.g. "ip:1.2.3.4:strict".
			key := "ip:" + rl.clientIP(r) + ":" + t.name

			if !rl.getVisitor(key, t).Allow() {
				reject(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}

func (rl *RateLimiter) resolveTier(r *http.Request) tier {
	if rl.internalKey != "" && r.Header.Get("X-Service-Auth") == rl.internalKey {
		return tierInternal
	}

	if strings.HasPrefix(r.URL.Path, "/payment/") {
		if strings.HasSuffix(r.URL.Path, "/ipn") {
			return tierGateway
		}
		return tierStrict
	}

	return tierGeneral
}

// clientIP is the TCP peer, or, when the peer is a trusted proxy, the
// right-most X-Forwarded-For hop that is not itself a trusted proxy.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peer, err := netip.ParseAddr(host)
	if err != nil || !rl.isTrusted(peer) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// Anything left of a garbled hop was written by the client.
			break
		}
		if !rl.isTrusted(addr) {
			return addr.Unmap().String()
		}
	}
	return peer.Unmap().String()
}

func (rl *RateLimiter) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range rl.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
