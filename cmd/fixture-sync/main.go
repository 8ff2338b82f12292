package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/broadcast"
	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/internal/ingestion"
	"github.com/radieske/sports-prediction-pipeline/internal/provider"
	"github.com/radieske/sports-prediction-pipeline/internal/reconcile"
	sharedcache "github.com/radieske/sports-prediction-pipeline/internal/shared/cache"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/config"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/db"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/logger"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/metrics"
)

func main() {
	once := flag.Bool("once", false, "sincroniza uma vez e sai")
	flag.Parse()

	cfg := config.LoadService("fixture-sync")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	kind, err := provider.ParseKind(cfg.Provider)
	if err != nil {
		log.Fatal("provider", zap.Error(err))
	}
	prov, err := provider.New(kind, provider.Options{
		APIKey:     cfg.ProviderAPIKey,
		BaseURL:    cfg.ProviderBaseURL,
		RatePerSec: cfg.ProviderRatePerS,
	})
	if err != nil {
		log.Fatal("provider", zap.Error(err))
	}

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Migrate {
		if err := db.Migrate(context.Background(), pg); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	svc := &ingestion.Service{
		Provider:          prov,
		Resolver:          reconcile.New(reconcile.NewPostgresStore(pg), log),
		Repo:              ingestion.NewPostgresRepo(pg),
		Bus:               bus.NewRedisStreams(redisClient, cfg.StreamMaxLen),
		Pub:               broadcast.NewRedisBroadcaster(redisClient),
		SettlementChannel: cfg.SettlementChannel,
		LeagueIDs:         cfg.LeagueIDs,
		Log:               log,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		st, err := svc.SyncAll(ctx, cfg.Season)
		if err != nil {
			log.Fatal("sync failed", zap.Error(err))
		}
		log.Info("sync done", zap.Int("fixtures", st.Fixtures), zap.Int("skipped", st.Skipped))
		return
	}

	srv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.All(
		pg.PingContext,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	))
	defer srv.Close()

	log.Info("fixture-sync started",
		zap.String("provider", prov.Name()),
		zap.Int("season", cfg.Season),
		zap.Duration("interval", cfg.SyncInterval),
	)
	if err := svc.Run(ctx, cfg.Season, cfg.SyncInterval); err != nil {
		log.Fatal("sync stopped with error", zap.Error(err))
	}
	log.Info("fixture-sync stopped")
}
