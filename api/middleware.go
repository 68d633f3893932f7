package api

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/ledger"
)

// =============================================================================
// AUTHENTICATION
// =============================================================================

// customerContextKey is a custom type for the context key to avoid collisions.
type customerContextKey struct{}

// TokenVerifier resolves a bearer token to the customer it was issued for.
type TokenVerifier interface {
	Verify(token string) (ledger.CustomerID, error)
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// stores the customer id in the request context.
func Authenticate(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw := strings.TrimPrefix(header, "Bearer ")
			if header == "" || raw == header {
				writeError(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}
			id, err := tokens.Verify(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", err)
				return
			}
			ctx := context.WithValue(r.Context(), customerContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CustomerFrom returns the authenticated customer of a request.
func CustomerFrom(ctx context.Context) (ledger.CustomerID, bool) {
	id, ok := ctx.Value(customerContextKey{}).(ledger.CustomerID)
	return id, ok && id != ""
}

var _ TokenVerifier = (*auth.Tokens)(nil)

// =============================================================================
// RATE LIMITING
// =============================================================================

// Limiter counts requests per scope and subject in a fixed window.
type Limiter interface {
	Allow(ctx context.Context, scope, subject string) (allowed bool, retryAfter time.Duration, err error)
}

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter implements Limiter across service instances using Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "backoffice:rate_limit"
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (r *RedisLimiter) Allow(ctx context.Context, scope, subject string) (bool, time.Duration, error) {
	if r == nil || r.client == nil || r.limit <= 0 || r.window <= 0 {
		return true, 0, nil
	}
	windowMs := max(r.window.Milliseconds(), 1000)

	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
	raw, err := rateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return true, 0, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return true, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	count, ok1 := values[0].(int64)
	ttlMs, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return true, 0, fmt.Errorf("unexpected redis limiter value types: %T, %T", values[0], values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	return int(count) <= r.limit, time.Duration(ttlMs) * time.Millisecond, nil
}

// RateLimit rejects requests of an authenticated customer over the limit with 429.
// Limiter failures are logged and the request is let through.
func RateLimit(l Limiter, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customerID, ok := CustomerFrom(r.Context())
			if l == nil || !ok {
				next.ServeHTTP(w, r)
				return
			}
			allowed, retryAfter, err := l.Allow(r.Context(), scope, string(customerID))
			if err != nil {
				logger.Warn("rate limiter unavailable", "component", "api", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				writeError(w, http.StatusTooManyRequests, "Too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
