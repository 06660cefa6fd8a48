package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aussiebroadwan/graphconnect/internal/store"
	"github.com/aussiebroadwan/graphconnect/internal/store/drivers/keyring"
	"github.com/aussiebroadwan/graphconnect/internal/store/drivers/redis"
	"github.com/aussiebroadwan/graphconnect/internal/store/drivers/sqlite"
	"github.com/aussiebroadwan/graphconnect/pkg/cryptox"
	"github.com/aussiebroadwan/graphconnect/pkg/formx"
	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
	"github.com/aussiebroadwan/graphconnect/pkg/httpx"
	"github.com/aussiebroadwan/graphconnect/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires configuration, logging, credential storage and the
// browser handoff around one graphsdk.Session.
type Application struct {
	cfg    Config
	logger *slog.Logger
	out    io.Writer

	httpClient  *http.Client
	openBrowser func(string) error

	creds   store.Credentials
	handoff *browserHandoff
	session *graphsdk.Session
}

type Option func(*Application)

// WithOutput sets where user-facing hints (such as the login URL) go.
// Defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(a *Application) { a.out = w }
}

// WithHTTPClient replaces the retrying client built from the config.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Application) { a.httpClient = c }
}

// WithBrowser replaces the system browser launcher.
func WithBrowser(open func(string) error) Option {
	return func(a *Application) { a.openBrowser = open }
}

// WithLogger replaces the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *Application) { a.logger = l }
}

// New creates an Application, opening the configured credential store and
// restoring any saved login into the session.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{cfg: cfg, out: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = slogx.New(slogx.Config{
			Service: "graphctl",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}
	if app.httpClient == nil {
		app.httpClient = httpx.NewClient(
			httpx.WithTimeout(cfg.HTTPTimeout),
			httpx.WithMaxRetries(cfg.HTTPRetries),
			httpx.WithLogger(app.logger),
		)
	}

	app.handoff = &browserHandoff{
		addr:        cfg.LoopbackAddr,
		logger:      app.logger,
		out:         app.out,
		openBrowser: app.openBrowser,
	}

	session, err := graphsdk.NewSession(cfg.AppID,
		graphsdk.WithLocalAppID(cfg.LocalAppID),
		graphsdk.WithEndpoints(graphsdk.Endpoints{
			GraphURL:  cfg.GraphURL,
			RESTURL:   cfg.RESTURL,
			DialogURL: cfg.DialogURL,
		}),
		graphsdk.WithHTTPClient(app.httpClient),
		graphsdk.WithLogger(app.logger),
		graphsdk.WithHandoff(app.handoff),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	app.session = session
	app.handoff.target = session

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// initStore opens the credential store and binds it to the session.
func (app *Application) initStore(ctx context.Context) error {
	creds, err := openStore(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s credential store: %w", app.cfg.Store, err)
	}
	if creds == nil {
		app.logger.Debug("credential store disabled")
		return nil
	}

	if err := store.Bind(ctx, app.session, creds, app.logger); err != nil {
		_ = creds.Close()
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	app.creds = creds
	return nil
}

func openStore(ctx context.Context, cfg Config) (store.Credentials, error) {
	switch cfg.Store {
	case StoreNone:
		return nil, nil

	case StoreSQLite:
		var sealer *cryptox.Sealer
		if cfg.StorePassphrase != "" {
			var err error
			if sealer, err = cryptox.NewSealer(cfg.StorePassphrase); err != nil {
				return nil, err
			}
		}
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn, sealer)
		if err != nil {
			return nil, err
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		return db, nil

	case StoreKeyring:
		return keyring.NewStore(keyring.Config{Passphrase: cfg.StorePassphrase})

	case StoreRedis:
		return redis.NewStore(ctx, redis.Config{URL: cfg.RedisURL})
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// Session returns the session the application drives.
func (app *Application) Session() *graphsdk.Session { return app.session }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Login runs an authorization through the browser and blocks until it
// resolves. Canceling ctx resolves it as canceled.
func (app *Application) Login(ctx context.Context, permissions []string) (graphsdk.Outcome, error) {
	outcome := make(chan graphsdk.Outcome, 1)
	err := app.session.Authorize(ctx, permissions, func(o graphsdk.Outcome) {
		outcome <- o
	})
	if err != nil {
		return graphsdk.Outcome{}, err
	}

	o := <-outcome
	if err := app.handoff.Close(); err != nil {
		app.logger.Warn("error closing loopback server", "error", err)
	}
	return o, nil
}

// Logout clears the session and invalidates the token with the provider.
func (app *Application) Logout(ctx context.Context) graphsdk.Outcome {
	outcome := make(chan graphsdk.Outcome, 1)
	app.session.Logout(ctx, func(o graphsdk.Outcome) { outcome <- o })
	return <-outcome
}

// Status returns the current credentials.
func (app *Application) Status() graphsdk.Credentials {
	return app.session.Snapshot()
}

// Graph performs a Graph API call and waits for the response.
func (app *Application) Graph(ctx context.Context, path string, params *formx.Params, method string) (*graphsdk.Response, error) {
	req, err := app.session.BuildGraphRequest(path, params, method)
	if err != nil {
		return nil, err
	}
	return req.Do(ctx)
}

// REST performs a REST method call and waits for the response.
func (app *Application) REST(ctx context.Context, name string, params *formx.Params, method string) (*graphsdk.Response, error) {
	req, err := app.session.BuildRESTRequest(name, params, method)
	if err != nil {
		return nil, err
	}
	return req.Do(ctx)
}

// DialogURL returns the URL a dialog for action would load.
func (app *Application) DialogURL(action string, params *formx.Params) (string, error) {
	d, err := app.session.BuildDialog(action, params)
	if err != nil {
		return "", err
	}
	return d.URL, nil
}

// Close releases the loopback server and the credential store.
func (app *Application) Close() error {
	var errs []error
	if err := app.handoff.Close(); err != nil {
		errs = append(errs, err)
	}
	if app.creds != nil {
		if err := app.creds.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
