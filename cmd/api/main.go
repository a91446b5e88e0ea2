package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haulbid/haulbid-backend/api/routes"
	"github.com/haulbid/haulbid-backend/internal/assignment"
	"github.com/haulbid/haulbid-backend/internal/auction"
	"github.com/haulbid/haulbid-backend/internal/bidding"
	"github.com/haulbid/haulbid-backend/internal/broadcast"
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

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	metricsReg := prometheus.NewRegistry()
	biddingMetrics := metrics.NewBiddingMetrics(metricsReg)

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
		biddingMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create leaderboard service", err)
		os.Exit(1)
	}

	hub := broadcast.NewHub()
	biddingSvc, err := bidding.NewService(auctionSvc, ledgerSvc, boardSvc, bidding.NewCarrierPool(dbClient.DB()), hub, logg, biddingMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create bidding service", err)
		os.Exit(1)
	}

	assignmentSvc, err := assignment.NewService(
		assignment.NewRepository(dbClient.DB()),
		loadRepo,
		dbClient,
		outboxSvc,
		notify,
		logg,
		nil,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create assignment service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, metricsReg, routes.Services{
			Auction:     auctionSvc,
			Bidding:     biddingSvc,
			Leaderboard: boardSvc,
			Ledger:      ledgerSvc,
			Assignment:  assignmentSvc,
			Hub:         hub,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
