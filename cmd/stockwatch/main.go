package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ferremas/orders/internal/clock"
	"github.com/ferremas/orders/internal/config"
	"github.com/ferremas/orders/internal/inventory"
	kafkax "github.com/ferremas/orders/internal/kafka"
	"github.com/ferremas/orders/internal/orders"
	"github.com/ferremas/orders/internal/postgres"
	"github.com/ferremas/orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	name := cfg.ServiceName + "-stockwatch"
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", name)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, cfg.DBHealthInterval)
	if err != nil {
		logger.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	go postgres.Monitor(ctx, db, cfg.DBHealthInterval, logger)

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	alerts := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockLow, 256, logger)
	alerts.Start()
	defer alerts.Close()

	svc := &inventory.Service{
		Stock:     &orders.Repo{DB: db},
		Dedup:     redisx.NewDedup(rdb, cfg.StockwatchGroup),
		Alerts:    &kafkax.StockEvents{Service: name, Clock: clock.NewSystem(), Publisher: alerts},
		Threshold: cfg.StockLowThreshold,
		Log:       logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StockwatchGroup, orders.TopicOrderCreated,
		cfg.StockwatchWorkers, logger)
	logger.Info("stockwatch started", "group", cfg.StockwatchGroup, "workers", cfg.StockwatchWorkers,
		"threshold", cfg.StockLowThreshold)
	if err := cons.Start(ctx, svc.HandleOrderCreated); err != nil {
		logger.Error("consumer exit", "err", err)
	}
	logger.Info("stockwatch stopped")
}
