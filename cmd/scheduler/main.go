package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SirClappington/textintel/internal/config"
	"github.com/SirClappington/textintel/internal/logging"
	"github.com/SirClappington/textintel/internal/queue"
	"github.com/SirClappington/textintel/internal/scheduler"
	"github.com/SirClappington/textintel/internal/storage"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := storage.Migrate(ctx, cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})

	store := storage.NewPostgresStore(db)
	q := queue.New(rdb, queue.RedisConfig{
		Stream:     cfg.QueueStream,
		Group:      cfg.QueueGroup,
		Visibility: cfg.VisibilityTimeout(),
		Block:      cfg.QueueBlockTimeout(),
	})
	if err := q.EnsureGroup(ctx); err != nil {
		logger.Fatal("redis consumer group", zap.Error(err))
	}

	rec := scheduler.New(store, store, store, q, scheduler.Config{
		Interval:   cfg.ReconcileEvery(),
		StaleAfter: cfg.StaleAfter(),
		Batch:      cfg.ReconcileBatch,
	}, logger)
	if err := rec.Run(ctx); err != nil {
		logger.Error("reconciler", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		logger.Error("close redis", zap.Error(err))
	}
	db.Close()
}
