// Package commands implements the quickfix client subcommands.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/quickfix/quickfix-api/internal/apperr"
	"github.com/quickfix/quickfix-api/internal/config"
	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/localstore"
	"github.com/quickfix/quickfix-api/internal/location"
	"github.com/quickfix/quickfix-api/internal/logger"
	"github.com/quickfix/quickfix-api/internal/matcher"
	"github.com/quickfix/quickfix-api/internal/platform"
	"github.com/quickfix/quickfix-api/internal/queue"
	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"github.com/quickfix/quickfix-api/internal/services/identity"
	"github.com/quickfix/quickfix-api/internal/services/listings"
	"github.com/quickfix/quickfix-api/internal/services/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Deps are the backends an App is assembled from.
type Deps struct {
	Store    docstore.Store
	Notifier docstore.Notifier
	Tokens   *identity.TokenManager
	Revoked  identity.RevocationList
	Storage  localstore.Storage
	Geocoder geocode.Geocoder
	Jobs     queue.Enqueuer
	Logger   *zap.Logger
}

// App is the client state shared by the subcommands of one invocation.
type App struct {
	Session   *identity.Session
	Profiles  database.ProfileRepositoryInterface
	Feed      *docstore.Feed
	Locations *location.Store
	Locator   *location.Locator
	Finder    *matcher.Matcher
	Listings  *listings.Service
	Logger    *zap.Logger

	closers []func()
}

// NewApp wires the client services over d. A nil Notifier means in-process
// change notification only.
func NewApp(ctx context.Context, d Deps) *App {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = docstore.NewLocalNotifier()
	}
	feed := docstore.NewFeed(d.Store, notifier, log)
	auth := identity.NewService(feed, d.Tokens, d.Revoked, log)
	locations := location.NewStore(d.Storage, log)

	return &App{
		Session:   identity.NewSession(ctx, auth, d.Storage, log),
		Profiles:  database.NewProfileRepository(feed),
		Feed:      feed,
		Locations: locations,
		Locator:   location.NewLocator(locations, d.Geocoder, log),
		Finder:    matcher.New(feed, log),
		Listings:  listings.NewService(database.NewProviderRepository(feed), feed, d.Geocoder, d.Jobs, log),
		Logger:    log,
	}
}

// AuthState follows the session and reports whether the user owns a listing.
// The caller must Close it.
func (a *App) AuthState(ctx context.Context) *session.AuthState {
	return session.New(ctx, a.Session, a.Profiles, a.Feed, a.Logger)
}

// UID returns the signed-in uid, or "".
func (a *App) UID() string {
	if id := a.Session.Current(); id != nil {
		return id.UID
	}
	return ""
}

// Close releases the backends opened for the App.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openApp connects the configured backends. Tests replace it.
var openApp = func(ctx context.Context, log *zap.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := platform.OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect to docstore: %w", err)
	}
	closers := []func(){func() { _ = store.Close(context.Background()) }}

	d := Deps{
		Store:    store,
		Tokens:   identity.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		Geocoder: geocode.NewClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, log),
		Logger:   log,
	}

	redisClient, err := platform.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis_unavailable_changes_are_local_only", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
		d.Notifier = docstore.NewRedisNotifier(redisClient, log)
		d.Revoked = identity.NewRedisRevocationList(redisClient)
		d.Geocoder = geocode.NewCachedGeocoder(d.Geocoder, redisClient, cfg.GeocodeCacheTTL, log)
	}

	jobQueue, err := platform.ConnectQueue(ctx, cfg.RabbitMQURL, 1, log)
	switch {
	case errors.Is(err, platform.ErrQueueDisabled):
	case err != nil:
		log.Warn("job_queue_unavailable", zap.Error(err))
	default:
		closers = append(closers, func() { _ = jobQueue.Close() })
		d.Jobs = jobQueue
	}

	path, err := localstore.DefaultPath(cfg.Home)
	if err != nil {
		runClosers(closers)
		return nil, err
	}
	storage, err := localstore.NewFileStore(path)
	if err != nil {
		runClosers(closers)
		return nil, err
	}
	d.Storage = storage

	app := NewApp(ctx, d)
	app.closers = closers
	return app, nil
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// options are the root flags shared by every subcommand.
type options struct {
	verbose bool
	json    bool
}

// withApp opens the App, runs fn and releases everything afterwards.
func (o *options) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	log, err := logger.NewCLILogger(o.verbose)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync(log) }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx, log)
	if err != nil {
		return err
	}
	defer app.Close()

	return present(fn(ctx, app))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// present turns domain failures into the user-facing message of their kind.
// Unclassified errors pass through unchanged.
func present(err error) error {
	if err == nil {
		return nil
	}
	p := apperr.Classify(err)
	switch p.Kind {
	case apperr.Internal:
		return err
	case apperr.ConfirmationRequired:
		return errors.New("refusing to delete without --yes")
	case apperr.OwnershipRedirect:
		return errors.New("this is your listing; manage it with `quickfix listings mine`")
	}
	if p.Retryable {
		return fmt.Errorf("%s (%s); try again", p.Message, p.Kind)
	}
	return fmt.Errorf("%s (%s)", p.Message, p.Kind)
}

// NewRootCmd assembles the quickfix command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "quickfix",
		Short:         "Find local service providers and manage your listings",
		Long:          "QuickFix client: browse and search providers by city, keep a location preference, and publish provider listings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Print results as JSON")

	root.AddCommand(newSignUpCmd(opts))
	root.AddCommand(newLoginCmd(opts))
	root.AddCommand(newLogoutCmd(opts))
	root.AddCommand(newWhoamiCmd(opts))
	root.AddCommand(newLocationCmd(opts))
	root.AddCommand(newCategoriesCmd(opts))
	root.AddCommand(newCategoryCmd(opts))
	root.AddCommand(newSearchCmd(opts))
	root.AddCommand(newProviderCmd(opts))
	root.AddCommand(newListingsCmd(opts))
	return root
}
