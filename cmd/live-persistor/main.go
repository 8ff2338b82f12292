package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/internal/oddscache"
	"github.com/radieske/sports-prediction-pipeline/internal/persistor"
	sharedcache "github.com/radieske/sports-prediction-pipeline/internal/shared/cache"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/config"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/db"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/logger"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/metrics"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

func main() {
	cfg := config.LoadService("live-persistor")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
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

	streams := bus.NewRedisStreams(redisClient, cfg.StreamMaxLen)
	cache := oddscache.NewRedisCache(redisClient, cfg.OddsCacheTTL)
	p := persistor.New(log, streams, topics.GroupPersistor, persistor.NewPostgresRepo(pg), cache, cfg.OddsBatchSize, cfg.OddsFlushInterval)

	// Métricas Prometheus do consumo e das gravações
	counters := metrics.NewStreamCounters(prometheus.DefaultRegisterer, "persistor")
	persisted := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "persistor_rows_written_total", Help: "linhas gravadas por tipo"}, []string{"kind"})
	prometheus.MustRegister(persisted)
	p.OnPersist = func(kind string, n int) { persisted.WithLabelValues(kind).Add(float64(n)) }
	p.OnError = counters.OnError

	loop := p.Loop(cfg.ConsumerName, cfg.StreamCount, cfg.StreamBlock, cfg.ReclaimMinIdle)
	loop.OnConsumed = counters.OnConsumed
	loop.OnAcked = counters.OnAcked
	loop.OnError = counters.OnError

	// Servidor HTTP para métricas e health check
	srv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.All(
		pg.PingContext,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	))
	defer srv.Close()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("live-persistor started", zap.String("consumer", cfg.ConsumerName), zap.Int("batch_size", cfg.OddsBatchSize))
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("persistor stopped with error", zap.Error(err))
	}
	log.Info("live-persistor stopped")
}
