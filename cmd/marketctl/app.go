package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360studio/marketctl/api"
	"github.com/c360studio/marketctl/cart"
	"github.com/c360studio/marketctl/config"
	"github.com/c360studio/marketctl/listing"
	"github.com/c360studio/marketctl/message"
	"github.com/c360studio/marketctl/metrics"
	"github.com/c360studio/marketctl/notify"
	"github.com/c360studio/marketctl/session"
)

// ErrSigninRequired is returned by commands that need a session when there is
// none, and by the sign-in signal path when the session expires mid-command.
var ErrSigninRequired = errors.New("sign-in required")

// App wires together the client core: config, session, HTTP client, cart and
// listing services, and the notification hub the CLI renders from.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *session.FileStore
	Sessions *session.Manager
	Carts    *cart.Service
	Listings *listing.Service
	Messages *message.Service
	Hub      *notify.Hub

	registry *prometheus.Registry
	watcher  *session.Watcher

	metricsDone chan struct{}
	cancel      context.CancelFunc
}

// NewApp creates an application instance from the loaded configuration.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		cfg:    cfg,
		logger: logger,
		Hub:    notify.NewHub(),
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(app.registry)

	httpClient := &http.Client{Timeout: cfg.API.Timeout}

	app.store = session.NewFileStore(cfg.Credentials.Path)
	app.Sessions = session.NewManager(app.store, cfg.API.BaseURL,
		session.WithHTTPClient(httpClient),
		session.WithLogger(logger),
		session.WithSigninSignal(func() {
			fmt.Fprintln(os.Stderr, "Your session has expired. Run 'marketctl login' to sign in again.")
		}))

	client := api.NewClient(cfg.API.BaseURL,
		api.WithHTTPClient(httpClient),
		api.WithTokenSource(app.Sessions),
		api.WithLogger(logger),
		api.WithMetrics(m))

	app.Carts = cart.NewService(client, app.Hub,
		cart.WithLogger(logger),
		cart.WithMetrics(m))
	app.Listings = listing.NewService(client)
	app.Messages = message.NewService(client)

	// The nav badge: re-render the item count whenever any cart mutator
	// publishes, exactly as the navigation bar does in the web client.
	app.Hub.Subscribe("nav-badge", func(n int) {
		fmt.Fprintf(os.Stderr, "cart: %d item(s)\n", n)
	})

	return app
}

// Start launches the background pieces: the credential file watcher and,
// when configured, the metrics listener.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	watcher, err := session.NewWatcher(a.store, a.onCredentialChange, a.logger)
	if err != nil {
		return fmt.Errorf("create credential watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start credential watcher: %w", err)
	}
	a.watcher = watcher

	if a.cfg.Metrics.Addr != "" {
		a.metricsDone = make(chan struct{})
		go func() {
			defer close(a.metricsDone)
			if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.registry, a.logger); err != nil {
				a.logger.Warn("Metrics listener stopped", slog.String("error", err.Error()))
			}
		}()
	}

	return nil
}

// Shutdown stops the background pieces.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("Failed to stop credential watcher", slog.String("error", err.Error()))
		}
	}
	if a.metricsDone != nil {
		<-a.metricsDone
	}
}

// RequireAuth returns ErrSigninRequired when no session is persisted.
func (a *App) RequireAuth() error {
	if !a.Sessions.IsAuthenticated() {
		return ErrSigninRequired
	}
	return nil
}

// onCredentialChange reacts to another process touching the credential file.
// A logout elsewhere resets the cached cart and zeroes the badge; a login
// elsewhere is picked up lazily on the next request.
func (a *App) onCredentialChange(creds session.Credentials) {
	if !creds.Valid() {
		a.logger.Info("Session cleared by another process")
		a.Carts.Reset()
		a.Hub.SetCount(0)
		return
	}
	a.logger.Debug("Credentials updated by another process",
		slog.String("username", creds.Username))
}

// signinHint maps session-expiry errors to an actionable message.
func signinHint(err error) error {
	if errors.Is(err, ErrSigninRequired) || session.IsRefreshError(err) {
		return fmt.Errorf("you are not signed in; run 'marketctl login' first")
	}
	return err
}
