package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/venuehq/venue-sdk/pkg/configuration"
	"github.com/venuehq/venue-sdk/pkg/httpapi"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

type RateLimitConfig struct {
	RequestsPerPeriod int
	// Period defaults to one second, making RequestsPerPeriod an RPS.
	Period time.Duration
	Store  limiter.Store
	// KeyFunc defaults to tenant+real-ip so one tenant cannot starve others.
	KeyFunc func(r *http.Request) string
}

// NewMemoryStore is the single-instance fallback. Counters live in process
// memory and reset on restart; deployments with more than one replica must
// use the redis store for the limit to mean anything globally.
func NewMemoryStore() limiter.Store {
	return memory.NewStore()
}

func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "venue:ratelimit",
	})
}

// RateLimit enforces cfg against each request's key and answers 429 with a
// Retry-After header when the window is exhausted.
func RateLimit(cfg RateLimitConfig) mux.MiddlewareFunc {
	conf := configuration.Use()

	period := cfg.Period
	if period == 0 {
		period = time.Second
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(r *http.Request) string {
			return r.Header.Get(conf.TenantIDHeader) + ":" + getRealIP(r, conf)
		}
	}

	instance := limiter.New(cfg.Store, limiter.Rate{
		Period: period,
		Limit:  int64(cfg.RequestsPerPeriod),
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiterCtx, err := instance.Get(r.Context(), keyFunc(r))
			if err != nil {
				// A broken limiter store must not take the API down.
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiterCtx.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", limiterCtx.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", limiterCtx.Reset))

			if limiterCtx.Reached {
				retryAfter := time.Until(time.Unix(limiterCtx.Reset, 0))
				if retryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
				}
				se := serrors.NewRateLimitedError()
				_ = httpapi.WriteError(w, se.Status, se.Code, se.Message, nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
