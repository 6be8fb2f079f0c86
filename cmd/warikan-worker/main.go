package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"warikan/internal/aggregate"
	"warikan/internal/amqp"
	"warikan/internal/config"
	applog "warikan/internal/log"
	"warikan/internal/services"
	"warikan/internal/storage"
	"warikan/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err, "url", cfg.AMQPURL)
		os.Exit(1)
	}
	defer amqpClient.Close()

	engine := aggregate.NewEngine(repo)
	changeWorker := worker.NewChangeWorker(engine)
	reconciler := services.NewReconciler(repo, services.ReconcilerConfig{
		Interval: cfg.ReconcileInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeExpenseChanges(ctx, changeWorker.HandleMessage)
	})
	g.Go(func() error {
		return reconciler.Run(ctx)
	})

	logger.Info("Starting warikan worker",
		"queue", cfg.AMQPQueue,
		"exchange", cfg.AMQPExchange,
		"reconcile_interval", cfg.ReconcileInterval)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
