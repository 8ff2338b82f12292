package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/internal/collector"
	"github.com/radieske/sports-prediction-pipeline/internal/provider"
	"github.com/radieske/sports-prediction-pipeline/internal/reconcile"
	sharedcache "github.com/radieske/sports-prediction-pipeline/internal/shared/cache"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/config"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/db"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/logger"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/metrics"
)

func main() {
	cfg := config.LoadService("live-collector")
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

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	published := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "collector_messages_published_total", Help: "mensagens publicadas por stream"}, []string{"stream"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "collector_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(published, errorsBy)

	c := collector.New(
		prov,
		reconcile.New(reconcile.NewPostgresStore(pg), log),
		&collector.PostgresFixtures{DB: pg, Provider: prov.Name()},
		bus.NewRedisStreams(redisClient, cfg.StreamMaxLen),
		log,
		cfg.PollInterval,
	)
	c.OnPublished = func(stream string) { published.WithLabelValues(stream).Inc() }
	c.OnError = func(stage string) { errorsBy.WithLabelValues(stage).Inc() }

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		log.Fatal("collector connect", zap.Error(err))
	}

	srv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.All(
		pg.PingContext,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	))
	defer srv.Close()

	log.Info("live-collector started", zap.String("provider", prov.Name()), zap.Duration("interval", cfg.PollInterval))
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("collector stopped with error", zap.Error(err))
	}
	log.Info("live-collector stopped")
}
