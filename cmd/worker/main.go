package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visitordesk/internal/backend"
	"visitordesk/internal/config"
	"visitordesk/internal/logging"
	"visitordesk/internal/metrics"
	"visitordesk/internal/queue"
	"visitordesk/internal/store"
)

// Worker consumes desk jobs and forwards them to the backend.
func main() {
	cfg := config.Load()
	log := logging.Setup(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the desk drains a memory queue itself")
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	if !redisClient.Healthy(ctx) {
		log.Warnf("redis not reachable at %s, consumer will keep retrying", cfg.RedisAddr)
	}
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)

	m := metrics.New(prometheus.DefaultRegisterer)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.LogError(log, "worker", "main", "metrics listener", cfg.WorkerMetricsPort, err)
		}
	}()

	client := backend.New(cfg.UpstreamURL, cfg.UpstreamTimeout)
	sender := backend.NewServiceAccount(client, cfg.UpstreamToken, backend.Credentials{
		Username: cfg.UpstreamUsername,
		Password: cfg.UpstreamPassword,
	})
	if cfg.UpstreamToken == "" && cfg.UpstreamUsername != "" {
		if err := sender.Login(ctx); err != nil {
			log.Fatalf("service account login failed: %v", err)
		}
	}

	log.Info("worker started, waiting for jobs")
	if err := queue.Serve(ctx, q, sender, time.Second, m, log); err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("worker stopped")
}
