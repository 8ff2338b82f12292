package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	"github.com/radieske/sports-prediction-pipeline/internal/execution"
	"github.com/radieske/sports-prediction-pipeline/internal/oddscache"
	"github.com/radieske/sports-prediction-pipeline/internal/prediction"
	"github.com/radieske/sports-prediction-pipeline/internal/risk"
	sharedcache "github.com/radieske/sports-prediction-pipeline/internal/shared/cache"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/config"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/db"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/logger"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/metrics"
)

func main() {
	cfg := config.LoadService("prediction-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

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

	// Execução simulada só quando há portfólio configurado
	var placer prediction.Placer
	if cfg.PortfolioID != "" {
		policy := risk.NewPolicy(risk.NewPostgresStore(pg), log, cfg.ExposureLimit)
		placer = execution.NewPlacer(execution.NewRepo(pg), policy, log)
	}

	w := prediction.NewWorker(
		log,
		bus.NewRedisStreams(redisClient, cfg.StreamMaxLen),
		prediction.NewPostgresStore(pg),
		prediction.NewOracleClient(cfg.OracleURL, cfg.OracleTimeout),
		oddscache.NewRedisCache(redisClient, cfg.OddsCacheTTL),
		placer,
		prediction.Sizing{
			MinEdge:          cfg.MinEdge,
			KellyFraction:    cfg.KellyFraction,
			MaxStakeFraction: cfg.MaxStakeFraction,
			PortfolioID:      cfg.PortfolioID,
		},
	)

	counters := metrics.NewStreamCounters(prometheus.DefaultRegisterer, "prediction")
	predicted := prometheus.NewCounter(prometheus.CounterOpts{Name: "prediction_rows_written_total", Help: "previsões gravadas"})
	signals := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "prediction_signals_total", Help: "sinais por resultado de execução"}, []string{"status"})
	prometheus.MustRegister(predicted, signals)
	w.OnPredicted = func(_ string, n int) { predicted.Add(float64(n)) }
	w.OnSignal = func(s execution.Status) { signals.WithLabelValues(string(s)).Inc() }

	loop := w.Loop(cfg.ConsumerName, cfg.StreamCount, cfg.StreamBlock, cfg.ReclaimMinIdle)
	loop.OnConsumed = counters.OnConsumed
	loop.OnAcked = counters.OnAcked
	loop.OnError = counters.OnError

	srv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.All(
		pg.PingContext,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	))
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("prediction-worker started",
		zap.String("oracle", cfg.OracleURL),
		zap.Bool("execution", placer != nil),
	)
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("prediction worker stopped with error", zap.Error(err))
	}
	log.Info("prediction-worker stopped")
}
