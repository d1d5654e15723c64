package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/embr/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter implements fixed-window rate limiting backed by Redis.
// Limits are keyed per client IP; room creation is the tightest limit since
// every room allocates TTL-bearing keys.
type RateLimiter struct {
	client       *redis.Client
	logger       zerolog.Logger
	limits       map[string]RateLimit
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
}

// NewRateLimiter creates a new rate limiter. whitelist entries may be plain
// IPs or CIDRs.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, whitelist []string) *RateLimiter {
	rl := &RateLimiter{
		client:       client,
		logger:       logger,
		whitelistIPs: make(map[string]bool),
		limits: map[string]RateLimit{
			"POST /room/join":     {30, time.Minute},
			"POST /room/messages": {60, time.Minute},
			"GET /room/messages":  {120, time.Minute},
			"GET /room/events":    {30, time.Minute},
			"GET /room/ttl":       {120, time.Minute},
			"DELETE /room":        {30, time.Minute},
			"POST /room":          {20, time.Hour},
		},
	}

	for _, entry := range whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	return rl
}

// Middleware enforces the configured limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		pattern, limit, ok := rl.findLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", pattern, ip)
		allowed, remaining, resetAt := rl.checkAndIncrement(r.Context(), key, limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())))
			metrics.RateLimitHits.WithLabelValues(pattern).Inc()

			rl.logger.Warn().
				Str("ip", ip).
				Str("endpoint", pattern).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkAndIncrement bumps the window counter and reports whether the request
// fits. Fail-open on store errors: rate limiting never takes the API down.
func (rl *RateLimiter) checkAndIncrement(ctx context.Context, key string, limit RateLimit) (bool, int, time.Time) {
	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, limit.Window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
		return true, limit.Requests, time.Now().Add(limit.Window)
	}

	count := int(incr.Val())
	resetAt := time.Now().Add(ttl.Val())
	remaining := limit.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit.Requests, remaining, resetAt
}

// findLimit matches the request against the limit table using the
// id-normalized path.
func (rl *RateLimiter) findLimit(r *http.Request) (string, RateLimit, bool) {
	path := normalizePath(r.URL.Path)
	path = strings.Replace(path, "/:id", "", 1)
	path = strings.TrimSuffix(path, "/")
	key := r.Method + " " + path

	limit, ok := rl.limits[key]
	return key, limit, ok
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
