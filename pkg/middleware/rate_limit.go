package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"staybook/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

type RateLimiter struct {
	middleware *stdlib.Middleware
}

// NewRateLimiter allows limit requests per window for each client IP. It runs
// ahead of authentication, so rejected logins count too. X-Real-IP is only
// read when trustProxy is set. Counters live in Redis when rdb is set so every
// replica shares them.
func NewRateLimiter(limit int, window time.Duration, trustProxy bool, rdb *redis.Client, log *logger.Logger) (*RateLimiter, error) {
	rate := limiter.Rate{
		Period: window,
		Limit:  int64(limit),
	}

	store, err := newLimiterStore(rdb)
	if err != nil {
		return nil, err
	}

	instance := limiter.New(store, rate)
	keyGetter := func(r *http.Request) string {
		return rateLimitKey(r, trustProxy)
	}

	mw := stdlib.NewMiddleware(instance,
		stdlib.WithKeyGetter(keyGetter),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			rejectRateLimited(w, log, r, keyGetter(r))
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("Rate limiter store failed",
				"request_id", RequestID(r.Context()),
				"error", err,
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Service unavailable","code":"SERVICE_UNAVAILABLE"}`))
		}),
	)

	return &RateLimiter{middleware: mw}, nil
}

func newLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	if rdb == nil {
		return memory.NewStore(), nil
	}

	store, err := redisstore.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix:   "rate_limiter:staybook",
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	return store, nil
}

func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return rl.middleware.Handler
}

func rateLimitKey(r *http.Request, trustProxy bool) string {
	return "ip:" + clientIP(r, trustProxy)
}

// clientIP reads X-Real-IP only behind a trusted proxy; any client can set it.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rejectRateLimited(w http.ResponseWriter, log *logger.Logger, r *http.Request, key string) {
	log.Warn("Rate limit exceeded",
		"request_id", RequestID(r.Context()),
		"key", key,
		"path", r.URL.Path,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"Rate limit exceeded","code":"RATE_LIMITED"}`))
}
