package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/handihub/trustgate/internal/access/domain"
	httpapi "github.com/handihub/trustgate/internal/access/http"
	"github.com/handihub/trustgate/internal/access/service"
	"github.com/handihub/trustgate/internal/access/store"
	"github.com/handihub/trustgate/internal/access/store/drivers/sqlite"
	"github.com/handihub/trustgate/pkg/cryptox"
	"github.com/handihub/trustgate/pkg/httpx"
	"github.com/handihub/trustgate/pkg/jwtx"
	"github.com/handihub/trustgate/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the trust-and-access service together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	signer *jwtx.EdDSASigner

	accountService   *service.AccountService
	twoFactorService *service.TwoFactorService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "trustgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)
	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	signer, err := initSessionKey(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session key: %w", err)
	}
	app.signer = signer

	app.initServices()
	if err := app.bootstrapAdmin(); err != nil {
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		return nil, err
	}

	return app, nil
}

// bootstrapAdmin seeds the first admin account from the environment, so the
// admin-only routes are reachable on a fresh deployment. Further admins are
// created through POST /v1/admin/accounts.
func (app *Application) bootstrapAdmin() error {
	if app.cfg.BootstrapAdminEmail == "" || app.cfg.BootstrapAdminPassword == "" {
		return nil
	}

	_, err := app.accountService.Register(context.Background(),
		app.cfg.BootstrapAdminEmail, app.cfg.BootstrapAdminPassword, domain.RoleAdmin)
	switch {
	case err == nil:
		app.logger.Info("bootstrap admin account created",
			"email", app.cfg.BootstrapAdminEmail)
	case errors.Is(err, service.ErrEmailTaken):
		// already seeded on a previous start
	default:
		return fmt.Errorf("failed to bootstrap admin account: %w", err)
	}
	return nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("trustgate starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests and releases resources.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down trustgate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("trustgate stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	app.twoFactorService = &service.TwoFactorService{
		Store:    app.db,
		Issuer:   app.cfg.Issuer,
		Verifier: service.TOTPVerifier{Skew: service.DefaultTOTPSkew},
	}
	app.accountService = &service.AccountService{
		Store:     app.db,
		TwoFactor: app.twoFactorService,
	}
}

func (app *Application) initHTTP() error {
	verifier, err := jwtx.NewVerifierEdDSA(app.signer.PublicKey(), app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize session verifier: %w", err)
	}

	app.router = httpapi.NewRouter(httpapi.Config{
		Issuer:        app.cfg.Issuer,
		Env:           app.cfg.Env,
		BuildVersion:  BuildVersion,
		SessionTTL:    app.cfg.SessionTTL,
		ThrottleRPS:   app.cfg.ThrottleRPS,
		ThrottleBurst: app.cfg.ThrottleBurst,
		Guard: httpx.GuardConfig{
			MaxBodyBytes:      app.cfg.MaxBodyBytes,
			AllowedOrigins:    app.cfg.AllowedOrigins,
			TrustProxyHeaders: app.cfg.TrustProxyHeaders,
		},
	}, app.signer, verifier, app.db, app.logger)
	app.router.Accounts = app.accountService
	app.router.TwoFactor = app.twoFactorService
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: app.router,
	}
	return nil
}
