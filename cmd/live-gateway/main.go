package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/gateway"
	"github.com/radieske/sports-prediction-pipeline/internal/gateway/ws"
	sharedcache "github.com/radieske/sports-prediction-pipeline/internal/shared/cache"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/config"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/logger"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/metrics"
)

func main() {
	cfg := config.LoadService("live-gateway")
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Hub WS: aceita qualquer origem em ambiente local
	hub := ws.NewHub(func(r *http.Request) bool { return true }, log)
	ws.StartRedisSubscriber(ctx, redisClient, cfg.BroadcastChannel, hub, log)

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	defer msrv.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           gateway.Router(hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("live-gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("live-gateway stopped")
}
