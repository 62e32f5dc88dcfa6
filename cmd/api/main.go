package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ferremas/orders/internal/clock"
	"github.com/ferremas/orders/internal/config"
	"github.com/ferremas/orders/internal/httpx"
	kafkax "github.com/ferremas/orders/internal/kafka"
	"github.com/ferremas/orders/internal/orders"
	"github.com/ferremas/orders/internal/postgres"
	"github.com/ferremas/orders/internal/redisx"
	"github.com/ferremas/orders/migrations"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("exit", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, cfg.DBHealthInterval)
	if err != nil {
		return err
	}
	defer db.Close()
	go postgres.Monitor(ctx, db, cfg.DBHealthInterval, logger)

	if cfg.MigrateOnStart {
		if err := migrations.Apply(ctx, db); err != nil {
			return err
		}
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	created := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, logger)
	created.Start()
	changed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, logger)
	changed.Start()

	clk := clock.NewSystem()
	repo := &orders.Repo{DB: db, LockTimeout: cfg.LockTimeout}

	router := httpx.NewRouter(logger, cfg.RequestTimeout, repo)
	(&httpx.OrdersHandler{
		Creator: orders.NewProcessor(repo, clk, logger),
		Updater: orders.NewFulfillment(repo, logger),
		Reader:  repo,
		Cache:   redisx.NewStatusCache(rdb),
		Events: &kafkax.OrderEvents{
			Service:       cfg.ServiceName,
			Clock:         clk,
			Created:       created,
			StatusChanged: changed,
		},
		Log: logger,
	}).Register(router)
	(&httpx.StockHandler{Stock: repo}).Register(router)
	(&httpx.PaymentsHandler{Payments: repo}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	created.Close()
	changed.Close()
	return nil
}
