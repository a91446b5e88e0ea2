package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haulbid/haulbid-backend/internal/auction"
	"github.com/haulbid/haulbid-backend/internal/cron"
	"github.com/haulbid/haulbid-backend/internal/leaderboard"
	"github.com/haulbid/haulbid-backend/internal/ledger"
	"github.com/haulbid/haulbid-backend/internal/notifications"
	"github.com/haulbid/haulbid-backend/pkg/config"
	"github.com/haulbid/haulbid-backend/pkg/db"
	"github.com/haulbid/haulbid-backend/pkg/logger"
	"github.com/haulbid/haulbid-backend/pkg/metrics"
	"github.com/haulbid/haulbid-backend/pkg/migrate"
	"github.com/haulbid/haulbid-backend/pkg/outbox"
	"github.com/haulbid/haulbid-backend/pkg/redis"
)

const lockKeyFormat = "hb:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	notify, err := notifications.NewOutboxDispatcher(outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	loadRepo := auction.NewRepository(dbClient.DB())
	auctionSvc, err := auction.NewService(loadRepo, dbClient, outboxSvc, notify, ledgerSvc, logg, auction.Settings{
		ExtensionThreshold: cfg.Auction.ExtensionThreshold,
		ExtensionDuration:  cfg.Auction.ExtensionDuration,
		DefaultMaxAttempts: cfg.Auction.DefaultMaxAttempts,
	}, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create auction service", err)
		os.Exit(1)
	}

	boardSvc, err := leaderboard.NewService(
		leaderboard.NewRedisBoard(redisClient, cfg.Auction.LeaderboardTTL),
		ledgerSvc,
		leaderboard.NewCarrierDirectory(dbClient.DB()),
		auctionSvc,
		metrics.NewBiddingMetrics(nil),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create leaderboard service", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()

	initiateJob, err := cron.NewAuctionInitiateJob(cron.AuctionInitiateJobParams{
		Logger:  logg,
		Loads:   auctionSvc,
		PerTick: cfg.Scheduler.TransitionCap,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auction initiate job", err)
		os.Exit(1)
	}
	registry.Register(initiateJob)

	closeJob, err := cron.NewAuctionCloseJob(cron.AuctionCloseJobParams{
		Logger:  logg,
		Loads:   auctionSvc,
		Board:   boardSvc,
		PerTick: cfg.Scheduler.TransitionCap,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auction close job", err)
		os.Exit(1)
	}
	registry.Register(closeJob)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outbox.NewRepository(dbClient.DB()),
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	registry.Register(retentionJob)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Scheduler.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Scheduler.TickInterval,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
