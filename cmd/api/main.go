package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SirClappington/textintel/internal/analyzer/backend"
	"github.com/SirClappington/textintel/internal/api"
	"github.com/SirClappington/textintel/internal/config"
	"github.com/SirClappington/textintel/internal/gateway"
	"github.com/SirClappington/textintel/internal/logging"
	"github.com/SirClappington/textintel/internal/pipeline"
	"github.com/SirClappington/textintel/internal/queue"
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

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})

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
	gw := gateway.New(store, q, exec, gateway.Config{
		SyncThreshold: cfg.SyncThreshold,
		MaxTextLength: cfg.MaxTextLength,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewRouter(gw, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = multierr.Combine(srv.Shutdown(shutdownCtx), rdb.Close())
	db.Close()
	if err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
