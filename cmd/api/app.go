package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"freight-resale-api-server/config"
	"freight-resale-api-server/internal/api/handlers"
	"freight-resale-api-server/internal/api/routes"
	"freight-resale-api-server/internal/auth"
	"freight-resale-api-server/internal/database"
	"freight-resale-api-server/internal/ledger"
	"freight-resale-api-server/internal/market"
	"freight-resale-api-server/internal/notify"
	"freight-resale-api-server/internal/observability"
	"freight-resale-api-server/internal/s3"
	"freight-resale-api-server/internal/socket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

type userStore interface {
	auth.UserStore
	notify.Directory
}

// backend is the storage the services run on.
type backend struct {
	ledger ledger.Ledger
	users  userStore
	store  notify.MessageStore
	close  func(context.Context) error
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	if cfg.Storage.Driver == "memory" {
		return &backend{
			ledger: ledger.NewMemory(),
			users:  notify.NewMemoryUsers(),
			store:  notify.NewMemoryStore(),
			close:  func(context.Context) error { return nil },
		}, nil
	}

	db, err := database.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.DBName)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureIndexes(ctx, db); err != nil {
		_ = db.Client().Disconnect(ctx)
		return nil, err
	}
	return &backend{
		ledger: database.NewLedger(db),
		users:  database.NewUsers(db),
		store:  database.NewNotifications(db),
		close:  func(ctx context.Context) error { return db.Client().Disconnect(ctx) },
	}, nil
}

// app is the wired server.
type app struct {
	cfg        config.Config
	logger     zerolog.Logger
	backend    *backend
	market     *market.Service
	fanout     *notify.Fanout
	dispatcher *notify.Dispatcher
	server     *http.Server
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	directory, err := notify.NewCachedDirectory(b.users, cfg.Notify.UserCacheSize)
	if err != nil {
		return nil, err
	}
	hub := socket.NewHub(logger.With().Str("component", "socket").Logger())
	fanout := notify.NewFanout(notify.Deps{
		Push:    hub,
		Store:   b.store,
		Users:   directory,
		Ledger:  b.ledger,
		Logger:  logger.With().Str("component", "fanout").Logger(),
		Metrics: metrics,
	}, cfg.Notify.DeliveryConcurrency, cfg.Chain.MaxHops)
	dispatcher := notify.NewDispatcher(fanout, cfg.Notify.QueueSize, cfg.Notify.HandlerTimeout,
		logger.With().Str("component", "dispatcher").Logger(), metrics)

	svc := market.NewService(b.ledger, dispatcher,
		market.WithLogger(logger.With().Str("component", "market").Logger()),
		market.WithMetrics(metrics),
		market.WithUsers(directory),
		market.WithMaxHops(cfg.Chain.MaxHops),
	)

	tokens, err := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Expiration)
	if err != nil {
		return nil, err
	}
	accounts := auth.NewAccounts(b.users, tokens, dispatcher,
		auth.WithAccountsLogger(logger.With().Str("component", "auth").Logger()))

	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		hash, err := auth.HashPassword(cfg.Admin.Password, auth.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		seed := database.AdminSeed{Email: cfg.Admin.Email, PasswordHash: hash, CompanyName: cfg.Admin.CompanyName}
		if _, err := database.SeedAdmin(ctx, b.users, seed, logger); err != nil {
			return nil, err
		}
	}

	var archive handlers.DocumentArchive
	uploader, err := s3.NewUploader(ctx, cfg.S3)
	switch {
	case err == nil:
		archive = uploader
	case errors.Is(err, s3.ErrDisabled):
		logger.Info().Msg("document archive disabled")
	default:
		return nil, err
	}

	router := routes.SetupRouter(routes.Deps{
		Market:        svc,
		Accounts:      accounts,
		Tokens:        tokens,
		Hub:           hub,
		Notifications: b.store,
		Archive:       archive,
		Dashboard:     fanout,
		Gatherer:      reg,
		Logger:        logger.With().Str("component", "http").Logger(),
		AllowOrigins:  cfg.Server.AllowOrigins,
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		backend:    b,
		market:     svc,
		fanout:     fanout,
		dispatcher: dispatcher,
		server: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// run serves until ctx is done, then shuts down the server, drains pending
// notifications and closes storage.
func (a *app) run(ctx context.Context) error {
	workers, stopWorkers := context.WithCancel(context.Background())
	dispatcherDone := make(chan struct{})
	go func() {
		a.dispatcher.Run(workers)
		close(dispatcherDone)
	}()
	go a.market.RunSweeper(workers, a.cfg.Resale.SweepInterval)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.server.Addr).Msg("starting API server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.Error().Err(shutdownErr).Msg("http shutdown")
	}

	stopWorkers()
	<-dispatcherDone
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), a.cfg.Notify.DrainTimeout)
	defer cancelDrain()
	if n := a.dispatcher.Drain(drainCtx); n > 0 {
		a.logger.Info().Int("events", n).Msg("drained pending notifications")
	}

	if closeErr := a.backend.close(shutdownCtx); closeErr != nil {
		a.logger.Error().Err(closeErr).Msg("close storage")
	}
	return err
}
