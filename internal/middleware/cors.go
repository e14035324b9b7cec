package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const defaultCORSMaxAge = 86400

// CORSSource loads the stored CORS settings; database.CorsConfigRepository implements it.
type CORSSource interface {
	Get(ctx context.Context) (*models.CorsConfig, error)
}

// CORSReloader wraps rs/cors and periodically reloads its settings from the document store.
type CORSReloader struct {
	source   CORSSource
	fallback string // FRONTEND_URL
	log      *zap.Logger
	interval time.Duration
	mu       sync.RWMutex
	policy   *cors.Cors
}

// NewCORSReloader creates a CORS middleware that hot-reloads its settings.
func NewCORSReloader(source CORSSource, frontendURLFallback string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &CORSReloader{
		source:   source,
		fallback: strings.TrimSpace(frontendURLFallback),
		log:      log,
		interval: reloadInterval,
	}
}

// Middleware loads the settings once and returns a middleware applying the
// policy current at request time. mux applies middleware per request, so the
// wrapped handler is never stored.
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	if r.current() == nil {
		r.Reload(context.Background())
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			policy := r.current()
			if policy == nil {
				next.ServeHTTP(w, req)
				return
			}
			policy.ServeHTTP(w, req, next.ServeHTTP)
		})
	}
}

func (r *CORSReloader) current() *cors.Cors {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// Start runs the reload loop until ctx is cancelled.
func (r *CORSReloader) Start(ctx context.Context) {
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

// Reload rebuilds the CORS policy from the current settings.
func (r *CORSReloader) Reload(ctx context.Context) {
	origins := database.AllowedOriginsSlice(r.fallback)
	allowCreds := false
	maxAge := defaultCORSMaxAge

	var cfg *models.CorsConfig
	var err error
	if r.source != nil {
		cfg, err = r.source.Get(ctx)
	}
	if err != nil {
		r.log.Warn("failed_to_load_cors_config_using_fallback", zap.Error(err))
	} else if cfg != nil {
		origins = database.AllowedOriginsSlice(cfg.AllowedOrigins)
		allowCreds = cfg.AllowCredentials
		maxAge = cfg.MaxAge
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: allowCreds,
		MaxAge:           maxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	r.mu.Lock()
	r.policy = c
	r.mu.Unlock()
}

// OriginAllowed reports whether req's Origin passes the loaded CORS policy.
// Requests without an Origin header are allowed. Used as the websocket
// upgrader's origin check.
func (r *CORSReloader) OriginAllowed(req *http.Request) bool {
	if req.Header.Get("Origin") == "" {
		return true
	}
	policy := r.current()
	if policy == nil {
		return false
	}
	return policy.OriginAllowed(req)
}
