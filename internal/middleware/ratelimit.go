package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	// DefaultRatelimitRate applies to the whole API when no rate is stored
	DefaultRatelimitRate = "5-S"
	// DefaultAuthRatelimitRate applies to sign-in and sign-up
	DefaultAuthRatelimitRate = "10-M"

	apiLimiterPrefix  = "quickfix:limiter:api"
	authLimiterPrefix = "quickfix:limiter:auth"
)

// RatelimitSource loads and seeds the stored rate; database.RatelimitConfigRepository implements it.
type RatelimitSource interface {
	Get(ctx context.Context) (*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// NewLimiterStore returns a Redis-backed limiter store, or an in-process one
// when redisClient is nil.
func NewLimiterStore(redisClient *redis.Client, prefix string) (limiter.Store, error) {
	opts := limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute}
	if redisClient == nil {
		return memorystore.NewStoreWithOptions(opts), nil
	}
	store, err := redisstore.NewStoreWithOptions(redisClient, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	return store, nil
}

// limitReached answers a rejected request with the standard error envelope.
func limitReached(w http.ResponseWriter, r *http.Request) {
	respondErrorJSON(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down", nil)
}

func newLimiterMiddleware(store limiter.Store, rate limiter.Rate) *stdlibmw.Middleware {
	return stdlibmw.NewMiddleware(limiter.New(store, rate),
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(limitReached),
	)
}

// AuthRateLimit returns a fixed, stricter limiter for credential endpoints.
func AuthRateLimit(redisClient *redis.Client, rate string) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = DefaultAuthRatelimitRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid auth rate %q: %w", rate, err)
	}
	store, err := NewLimiterStore(redisClient, authLimiterPrefix)
	if err != nil {
		return nil, err
	}
	return newLimiterMiddleware(store, parsed).Handler, nil
}

// RateLimitReloader wraps ulule/limiter and periodically reloads the rate from the document store.
type RateLimitReloader struct {
	store       limiter.Store
	source      RatelimitSource
	defaultRate string
	log         *zap.Logger
	interval    time.Duration
	mu          sync.RWMutex
	limiter     *stdlibmw.Middleware
	rate        string
}

// NewRateLimitReloader creates a rate limit middleware that hot-reloads its rate.
// A nil redisClient keeps counters in process memory.
func NewRateLimitReloader(redisClient *redis.Client, source RatelimitSource, defaultRate string, log *zap.Logger, reloadInterval time.Duration) (*RateLimitReloader, error) {
	if defaultRate == "" {
		defaultRate = DefaultRatelimitRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	store, err := NewLimiterStore(redisClient, apiLimiterPrefix)
	if err != nil {
		return nil, err
	}
	return &RateLimitReloader{
		store:       store,
		source:      source,
		defaultRate: defaultRate,
		log:         log,
		interval:    reloadInterval,
	}, nil
}

// Middleware loads the rate once and returns a middleware enforcing the rate
// current at request time.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	if r.current() == nil {
		r.Reload(context.Background())
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			mw := r.current()
			if mw == nil {
				next.ServeHTTP(w, req)
				return
			}
			mw.Handler(next).ServeHTTP(w, req)
		})
	}
}

func (r *RateLimitReloader) current() *stdlibmw.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiter
}

// Start runs the reload loop until ctx is cancelled.
func (r *RateLimitReloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reload(ctx)
		}
	}
}

// Rate returns the formatted rate currently enforced.
func (r *RateLimitReloader) Rate() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rate
}

// Reload rebuilds the limiter from the stored rate, seeding the default when none is stored.
func (r *RateLimitReloader) Reload(ctx context.Context) {
	rateStr := r.defaultRate
	if r.source != nil {
		cfg, err := r.source.Get(ctx)
		switch {
		case err != nil:
			r.log.Warn("failed_to_load_ratelimit_config_using_default",
				zap.Error(err),
				zap.String("default_rate", r.defaultRate),
			)
		case cfg != nil && cfg.Rate != "":
			rateStr = cfg.Rate
		default:
			if err := r.source.Set(ctx, &models.RatelimitConfig{Rate: r.defaultRate}); err != nil {
				r.log.Error("failed_to_save_default_ratelimit_config",
					zap.Error(err),
					zap.String("default_rate", r.defaultRate),
				)
			}
		}
	}

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r.log.Error("failed_to_parse_rate_limit_using_default",
			zap.Error(err),
			zap.String("rate_str", rateStr),
		)
		rateStr = r.defaultRate
		if rate, err = limiter.NewRateFromFormatted(rateStr); err != nil {
			r.log.Error("failed_to_parse_default_rate_limit", zap.Error(err))
			return
		}
	}

	mw := newLimiterMiddleware(r.store, rate)

	r.mu.Lock()
	r.limiter = mw
	r.rate = rateStr
	r.mu.Unlock()
}
