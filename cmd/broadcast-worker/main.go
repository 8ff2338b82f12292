package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/broadcast"
	"github.com/radieske/sports-prediction-pipeline/internal/bus"
	sharedcache "github.com/radieske/sports-prediction-pipeline/internal/shared/cache"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/config"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/logger"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/metrics"
)

func main() {
	cfg := config.LoadService("broadcast-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	counters := metrics.NewStreamCounters(prometheus.DefaultRegisterer, "broadcast")
	forwarded := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "broadcast_forwarded_total", Help: "envelopes repassados ao gateway"}, []string{"event"})
	prometheus.MustRegister(forwarded)

	// Previsões e sinais seguem para o gateway WS via Redis Pub/Sub
	fwd := &broadcast.Forwarder{
		Log:       log,
		Pub:       broadcast.NewRedisBroadcaster(redisClient),
		Channel:   cfg.BroadcastChannel,
		OnForward: func(event string) { forwarded.WithLabelValues(event).Inc() },
	}
	loop := fwd.Loop(bus.NewRedisStreams(redisClient, cfg.StreamMaxLen), cfg.ConsumerName, cfg.StreamCount, cfg.StreamBlock, cfg.ReclaimMinIdle)
	loop.OnConsumed = counters.OnConsumed
	loop.OnAcked = counters.OnAcked
	loop.OnError = counters.OnError

	srv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("broadcast-worker started", zap.String("channel", cfg.BroadcastChannel))
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("broadcast stopped with error", zap.Error(err))
	}
	log.Info("broadcast-worker stopped")
}
