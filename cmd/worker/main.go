package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Bhavikpatel576/timely/internal/bootstrap"
	"github.com/Bhavikpatel576/timely/internal/config"
	"github.com/Bhavikpatel576/timely/internal/outbox"
	"github.com/Bhavikpatel576/timely/internal/worker"
)

const defaultDLQBatchSize = 50

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Open(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	loc, _ := cfg.Location()
	scheduler := worker.NewScheduler(loc, logger)
	if _, err := scheduler.Schedule("classify", cfg.ClassifySchedule, app.Service.ClassifyPending); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	var dispatcher *outbox.Dispatcher
	if app.Pool != nil {
		manager := outbox.NewDLQManager(app.Pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)
		dlqJob := func(ctx context.Context) (int64, error) {
			n, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			return int64(n), err
		}
		if _, err := scheduler.Schedule("dlq", cfg.DLQSchedule, dlqJob); err != nil {
			logger.Error("startup failed", "error", err)
			os.Exit(1)
		}

		if cfg.OutboxEnabled {
			acks, err := outbox.ParseRequiredAcks(cfg.OutboxRequiredAcks)
			if err != nil {
				logger.Error("startup failed", "error", err)
				os.Exit(1)
			}
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithRequiredAcks(acks), outbox.WithBatchTimeout(cfg.OutboxBatchTimeout))
			defer producer.Close()
			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(app.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithLogger(logger))
			go dispatcher.Start(ctx)
		}
	} else {
		logger.Warn("outbox and dlq jobs need the postgres store; skipping")
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("worker metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	scheduler.Start()
	logger.Info("worker started", "outbox", cfg.OutboxEnabled)

	<-ctx.Done()
	logger.Info("shutdown requested")
	scheduler.Stop()
	if dispatcher != nil {
		dispatcher.Wait()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}
}
