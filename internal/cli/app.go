// Package cli implements the cardswap command line client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cardswap/cardswap/internal/auth"
	"github.com/cardswap/cardswap/internal/background"
	"github.com/cardswap/cardswap/internal/callback"
	"github.com/cardswap/cardswap/internal/config"
	"github.com/cardswap/cardswap/internal/database"
	"github.com/cardswap/cardswap/internal/handlers"
	"github.com/cardswap/cardswap/internal/identity"
	"github.com/cardswap/cardswap/internal/listings"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/cardswap/cardswap/internal/repositories"
	"github.com/cardswap/cardswap/internal/services"
	"github.com/cardswap/cardswap/internal/session"
	"github.com/cardswap/cardswap/internal/sessionstore"
)

// mailer delivers both identity and checkout mail.
type mailer interface {
	identity.Mailer
	services.SellerNotifier
}

// provider is an identity provider that also completes redirects and
// refreshes sessions. Both adapters qualify.
type provider interface {
	identity.Provider
	identity.CodeExchanger
	identity.Refresher
}

// App holds the wired client. Collaborators that talk to the network are
// started on first use so that commands like listings stay offline.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	in     *bufio.Reader

	db       *database.DB
	store    *sessionstore.Store
	mailer   mailer
	provider provider
	manager  *session.Manager
	profiles *repositories.ProfileRepository
	checkout *services.CheckoutService

	startOnce sync.Once
	startErr  error

	catalogOnce sync.Once
	catalog     *listings.Store
	catalogErr  error
}

// NewApp wires the client from cfg. out receives command output, in is read
// for interactive prompts.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer, in io.Reader) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
		out:    out,
		in:     bufio.NewReader(in),
	}

	if cfg.Database.Enabled {
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		a.profiles = repositories.NewProfileRepository(db)
	}

	store, err := sessionstore.Open(ctx, cfg.Storage.SessionPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	a.store = store

	switch cfg.Email.Provider {
	case "ses":
		m, err := services.NewSESMailer(ctx, cfg.Email.Region, cfg.Email.FromAddress, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mailer = m
	default:
		a.mailer = services.NewConsoleMailer(out, logger)
	}

	a.provider, err = newProvider(cfg, a.mailer, store, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	managerCfg := session.Config{
		Provider:    a.provider,
		Logger:      logger,
		RedirectURL: cfg.Server.CallbackURL(),
	}
	if a.profiles != nil {
		managerCfg.Profiles = a.profiles
	}
	a.manager = session.NewManager(managerCfg)

	checkoutCfg := services.CheckoutConfig{
		Gateway: &services.SimulatedGateway{Delay: cfg.Checkout.Delay, DeclineAll: cfg.Checkout.DeclineAll},
		Delay:   cfg.Checkout.Delay,
		Logger:  logger,
	}
	if a.db != nil {
		checkoutCfg.Repo = repositories.NewCheckoutRepository(a.db)
		if cfg.Checkout.NotifySellers {
			checkoutCfg.Notifier = a.mailer
			checkoutCfg.Sellers = a.profiles
		}
	}
	a.checkout = services.NewCheckoutService(checkoutCfg)

	return a, nil
}

func newProvider(cfg *config.Config, m mailer, store identity.SessionStore, logger *slog.Logger) (provider, error) {
	switch cfg.Identity.Mode {
	case config.IdentityMemory:
		return identity.NewMemory(identity.MemoryConfig{
			Tokens:          auth.NewTokenManager(cfg.Identity.JWTSecret, cfg.Identity.AccessTokenExpiry),
			Mailer:          m,
			Store:           store,
			Logger:          logger,
			CallbackURL:     cfg.Server.CallbackURL(),
			CodeTTL:         cfg.Identity.CodeTTL,
			ConfirmationTTL: cfg.Identity.ConfirmationTTL,
			RefreshTokenTTL: cfg.Identity.RefreshTokenExpiry,
			ResendCooldown:  cfg.Identity.ResendCooldown,
			MaxCodeAttempts: cfg.Identity.MaxCodeAttempts,
			FailureDelay:    auth.NewFailureDelay(cfg.Identity.FailureDelay, cfg.Identity.FailureJitter),
		})
	default:
		return identity.NewGoTrue(identity.GoTrueConfig{
			URL:         cfg.Identity.URL,
			APIKey:      cfg.Identity.APIKey,
			RedirectURL: cfg.Server.CallbackURL(),
			Store:       store,
			Logger:      logger,
		})
	}
}

// Session starts the manager on first use and returns it. A provider that
// cannot be reached leaves the manager in the error state; the manager is
// still returned so the caller can report it.
func (a *App) Session(ctx context.Context) (*session.Manager, error) {
	a.startOnce.Do(func() {
		a.startErr = a.manager.Start(ctx)
	})
	return a.manager, a.startErr
}

// Catalog loads the catalog on first use.
func (a *App) Catalog(ctx context.Context) (*listings.Store, error) {
	a.catalogOnce.Do(func() {
		var source listings.Source = listings.NewMemorySource()
		if a.cfg.Storage.CatalogSource == config.CatalogPostgres {
			if a.db == nil {
				a.catalogErr = fmt.Errorf("the postgres catalog needs DB_ENABLED=true")
				return
			}
			source = repositories.NewOfferRepository(a.db)
		}
		a.catalog, a.catalogErr = listings.NewStore(ctx, source, a.logger)
	})
	return a.catalog, a.catalogErr
}

// CurrentUser returns the signed-in identity or models.ErrNotAuthenticated.
func (a *App) CurrentUser(ctx context.Context) (*models.Identity, error) {
	m, err := a.Session(ctx)
	if err != nil {
		return nil, err
	}
	st := m.State()
	if !st.IsAuthenticated() {
		return nil, fmt.Errorf("%w: run cardswap login first", models.ErrNotAuthenticated)
	}
	user := st.Session.User
	return &user, nil
}

// CallbackServer builds a loopback listener for redirects.
func (a *App) CallbackServer() *callback.Server {
	cfg := callback.Config{
		Addr:         a.cfg.Server.Addr,
		Exchanger:    a.provider,
		RateLimit:    a.cfg.Server.RateLimit,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
		Logger:       a.logger,
	}
	if confirmer, ok := a.provider.(handlers.EmailConfirmer); ok {
		cfg.Confirmer = confirmer
	}
	return callback.New(cfg)
}

// Refresher builds the background session refresher.
func (a *App) Refresher() *background.SessionRefresher {
	return background.NewSessionRefresher(
		a.provider,
		func() *models.Session { return a.manager.State().Session },
		a.logger,
		a.cfg.Identity.RefreshInterval,
		a.cfg.Identity.RefreshMargin,
	)
}

// prompt writes label and reads one line of input.
func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Close releases every resource the app opened.
func (a *App) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close session store", slog.Any("error", err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
