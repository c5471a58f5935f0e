package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SirClappington/textintel/internal/analyzer/backend"
	"github.com/SirClappington/textintel/internal/api"
	"github.com/SirClappington/textintel/internal/config"
	"github.com/SirClappington/textintel/internal/logging"
	"github.com/SirClappington/textintel/internal/pipeline"
	"github.com/SirClappington/textintel/internal/queue"
	"github.com/SirClappington/textintel/internal/storage"
	"github.com/SirClappington/textintel/internal/worker"
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

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() {
		db.Close()
		if err := rdb.Close(); err != nil {
			logger.Error("close redis", zap.Error(err))
		}
	}()

	store := storage.NewPostgresStore(db)
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("postgres ping", zap.Error(err))
	}
	q := queue.New(rdb, queue.RedisConfig{
		Stream:     cfg.QueueStream,
		Group:      cfg.QueueGroup,
		Visibility: cfg.VisibilityTimeout(),
		Block:      cfg.QueueBlockTimeout(),
	})
	if err := q.EnsureGroup(ctx); err != nil {
		logger.Fatal("redis consumer group", zap.Error(err))
	}

	suite, err := backend.New(cfg, logger)
	if err != nil {
		logger.Fatal("analyzer", zap.Error(err))
	}
	exec := pipeline.NewExecutor(store, suite, logger,
		pipeline.WithTargetLanguage(cfg.TargetLanguage),
		pipeline.WithStageTimeout(cfg.StageDeadline()),
	)

	health := &http.Server{
		Addr:              cfg.WorkerHealthAddr,
		Handler:           api.HealthRouter("worker", logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		w := worker.New(fmt.Sprintf("%s-%d", q.Consumer(), i), q, exec, logger)
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("health server listening", zap.String("addr", cfg.WorkerHealthAddr))
		if err := health.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return health.Shutdown(shutdownCtx)
	})

	logger.Info("worker running", zap.Int("concurrency", cfg.WorkerConcurrency), zap.String("consumer", q.Consumer()))
	if err := g.Wait(); err != nil {
		logger.Error("worker exited", zap.Error(err))
	}
}
