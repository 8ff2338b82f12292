package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/settlement"
	sharedcache "github.com/radieske/sports-prediction-pipeline/internal/shared/cache"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/config"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/db"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/kafka"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/logger"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/metrics"
)

func main() {
	cfg := config.LoadService("settlement-worker")
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

	// Tópico bet_settled; em local o tópico é criado na subida
	if cfg.Env == "local" {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := kafka.EnsureTopic(tctx, cfg.Brokers(), cfg.TopicBetSettled); err != nil {
			log.Warn("ensure topic", zap.String("topic", cfg.TopicBetSettled), zap.Error(err))
		}
		cancel()
	}
	writer := kafka.NewWriter(cfg.Brokers(), cfg.TopicBetSettled)
	defer writer.Close()

	engine := settlement.NewEngine(settlement.NewPostgresStore(pg), &settlement.KafkaNotifier{W: writer}, log)
	runner := settlement.NewRunner(engine, log, cfg.SettlementInterval)

	// Métricas por sweep
	sweeps := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_sweeps_total", Help: "sweeps concluídos"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_settled_total", Help: "itens liquidados"}, []string{"kind"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_fixture_failures_total", Help: "partidas com falha na liquidação"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "settlement_sweep_duration_seconds", Help: "duração de cada sweep"})
	prometheus.MustRegister(sweeps, settled, failures, duration)
	runner.OnReport = func(r settlement.Report) {
		sweeps.Inc()
		duration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
		settled.WithLabelValues("prediction").Add(float64(r.PredictionsSettled))
		settled.WithLabelValues("bet").Add(float64(r.BetsSettled))
		failures.Add(float64(r.Failures))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Partidas encerradas no sync disparam um sweep imediato
	if err := runner.Subscribe(ctx, redisClient, cfg.SettlementChannel); err != nil {
		log.Fatal("settlement subscribe", zap.Error(err))
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.All(
		pg.PingContext,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	))
	defer msrv.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           settlement.Router(runner),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("settlement admin listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin http server", zap.Error(err))
		}
	}()
	defer srv.Close()

	log.Info("settlement-worker started", zap.Duration("interval", runner.Interval))
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("settlement stopped with error", zap.Error(err))
	}
	log.Info("settlement-worker stopped")
}
