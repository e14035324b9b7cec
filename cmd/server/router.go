package main

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/handlers"
	"github.com/quickfix/quickfix-api/internal/matcher"
	"github.com/quickfix/quickfix-api/internal/middleware"
	"github.com/quickfix/quickfix-api/internal/queue"
	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"github.com/quickfix/quickfix-api/internal/services/identity"
	"github.com/quickfix/quickfix-api/internal/services/listings"
	"github.com/quickfix/quickfix-api/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const (
	requestTimeout = 30 * time.Second
	reloadInterval = time.Minute
)

// routerDeps carries the connected services the HTTP API is built from
type routerDeps struct {
	feed        *docstore.Feed
	identity    *identity.Service
	geocoder    geocode.Geocoder
	jobs        queue.Enqueuer // nil without a broker
	redis       *redis.Client  // nil without Redis
	frontendURL string
	enableHSTS  bool
	tracing     bool
	openAPIPath string
	checks      map[string]handlers.CheckFunc
	logger      *zap.Logger
}

// api is the assembled HTTP API and the reload loops it owns
type api struct {
	handler   http.Handler
	cors      *middleware.CORSReloader
	rateLimit *middleware.RateLimitReloader
}

func newAPI(d routerDeps) (*api, error) {
	log := d.logger
	if d.openAPIPath == "" {
		d.openAPIPath = filepath.Join("api", "openapi", "openapi.yaml")
	}

	providerRepo := database.NewProviderRepository(d.feed)
	profileRepo := database.NewProfileRepository(d.feed)
	listingService := listings.NewService(providerRepo, d.feed, d.geocoder, d.jobs, log)
	finder := matcher.New(d.feed, log)

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order, outermost first
	if d.tracing {
		r.Use(otelmux.Middleware(telemetry.ServiceAPI))
	}
	r.Use(middleware.SecurityHeaders(d.enableHSTS))
	corsReloader := middleware.NewCORSReloader(database.NewCorsConfigRepository(d.feed), d.frontendURL, log, reloadInterval)
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ErrorHandler(log))
	r.Use(middleware.Audit(log))
	r.Use(middleware.Logging(log))

	rateLimitReloader, err := middleware.NewRateLimitReloader(d.redis, database.NewRatelimitConfigRepository(d.feed), middleware.DefaultRatelimitRate, log, reloadInterval)
	if err != nil {
		return nil, err
	}
	rateLimitMW := rateLimitReloader.Middleware()
	authLimitMW, err := middleware.AuthRateLimit(d.redis, middleware.DefaultAuthRatelimitRate)
	if err != nil {
		return nil, err
	}

	handlers.NewHealthChecker(d.checks).RegisterRoutes(r)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	handlers.NewOpenAPIHandler(d.openAPIPath).RegisterRoutes(apiRouter)

	authHandler := handlers.NewAuthHandler(d.identity, profileRepo, providerRepo, log)
	authRouter := apiRouter.PathPrefix("/auth").Subrouter()

	signInRouter := authRouter.PathPrefix("").Subrouter()
	signInRouter.Use(authLimitMW)
	authHandler.RegisterPublicRoutes(signInRouter)

	sessionRouter := authRouter.PathPrefix("").Subrouter()
	sessionRouter.Use(middleware.Auth(d.identity, log))
	sessionRouter.Use(rateLimitMW)
	authHandler.RegisterProtectedRoutes(sessionRouter)

	// The owner's listings; the stream route must precede /providers/{id}
	meRouter := apiRouter.PathPrefix("/me").Subrouter()
	meRouter.Use(middleware.Auth(d.identity, log))
	meRouter.Use(rateLimitMW)
	handlers.NewStreamHandler(listingService, corsReloader.OriginAllowed, log).RegisterRoutes(meRouter)
	handlers.NewListingsHandler(listingService, log).RegisterRoutes(meRouter)

	publicRouter := apiRouter.PathPrefix("").Subrouter()
	publicRouter.Use(middleware.OptionalAuth(d.identity, log))
	publicRouter.Use(rateLimitMW)
	handlers.NewProvidersHandler(finder, listingService, d.geocoder, log).RegisterRoutes(publicRouter)
	handlers.NewLocationHandler(d.geocoder, log).RegisterRoutes(publicRouter)

	// Preflight requests are answered by the CORS middleware
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return &api{handler: r, cors: corsReloader, rateLimit: rateLimitReloader}, nil
}
