// Package server initializes and runs the application: it wires the account
// store, the transient TTL store, the token signer and the mail dispatcher
// into the credential service, and serves it over HTTP until a shutdown
// signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/cache"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/httpapi"
	"github.com/dmitrijs2005/authgate/internal/server/limiter"
	"github.com/dmitrijs2005/authgate/internal/server/mail"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authgate/internal/server/reset"
	"github.com/dmitrijs2005/authgate/internal/server/services"
	"github.com/dmitrijs2005/authgate/internal/server/signup"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	cache      *cache.Cache
	dispatcher *mail.Dispatcher
	httpServer *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	c := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	signer := auth.NewSigner([]byte(cfg.SecretKey))

	sender := mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	dispatcher := mail.NewDispatcher(sender, logger, cfg.MailQueueSize, cfg.MailWorkers)

	credentials := services.NewCredentialService(
		db,
		rm,
		signup.NewPendingStore(c, cfg.SignupConfirmationValidity),
		signup.NewCodeStore(c, cfg.SignupConfirmationValidity),
		reset.NewTokenStore(c, cfg.ResetTokenValidity),
		limiter.New(c, cfg.LoginFailWindow, cfg.LoginFailMaxAttempts),
		signer,
		dispatcher,
		logger,
		cfg,
	)

	httpServer := httpapi.NewServer(cfg.EndpointAddrHTTP, credentials, signer, logger, cfg.AllowedOrigins)

	return &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		cache:      c,
		dispatcher: dispatcher,
		httpServer: httpServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpServer.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	// drain queued mail, then release connections
	app.dispatcher.Close()
	if err := app.cache.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}

	app.logger.Info(ctx, "App stopped")
}
