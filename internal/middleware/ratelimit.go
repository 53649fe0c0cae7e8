package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
)

const rateLimitPrefix = "oxiforms:ratelimit:"

// RateLimiter limits requests per client IP. The count lives in Redis when
// a URL is configured so replicas share it, and in memory otherwise.
type RateLimiter struct {
	mw     *stdlib.Middleware
	client *redis.Client
}

// NewRateLimiter returns a limiter allowing perMinute requests per client.
// A zero perMinute disables limiting.
func NewRateLimiter(ctx context.Context, perMinute int64, redisURL string, log logger.Logger) (*RateLimiter, error) {
	if perMinute <= 0 {
		return &RateLimiter{}, nil
	}
	rate := limiter.Rate{Period: time.Minute, Limit: perMinute}
	opts := limiter.StoreOptions{Prefix: rateLimitPrefix, MaxRetry: 3, CleanUpInterval: time.Minute}

	rl := &RateLimiter{}
	var store limiter.Store
	if redisURL == "" {
		store = memory.NewStoreWithOptions(opts)
	} else {
		ropts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
		}
		rl.client = redis.NewClient(ropts)
		if err := rl.client.Ping(ctx).Err(); err != nil {
			_ = rl.client.Close()
			return nil, fmt.Errorf("ratelimit: ping redis: %w", err)
		}
		if store, err = sredis.NewStoreWithOptions(rl.client, opts); err != nil {
			_ = rl.client.Close()
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
	}
	rl.mw = stdlib.NewMiddleware(limiter.New(store, rate),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeProblem(w, http.StatusTooManyRequests, "rate_limited", "too many submissions, retry later")
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("ratelimit: store failed", "error", err)
			writeProblem(w, http.StatusServiceUnavailable, "store_unavailable", "rate limiter unavailable")
		}),
	)
	return rl, nil
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	if rl == nil || rl.mw == nil {
		return next
	}
	return rl.mw.Handler(next)
}

func (rl *RateLimiter) Close() error {
	if rl == nil || rl.client == nil {
		return nil
	}
	return rl.client.Close()
}
