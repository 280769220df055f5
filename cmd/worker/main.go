package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/secguide/internal/bootstrap"
	"github.com/kirillkom/secguide/internal/config"
	"github.com/kirillkom/secguide/internal/observability/logging"
	"github.com/kirillkom/secguide/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Logger:     logger,
		Registerer: workerMetrics.Registerer(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSIngestSubject)
	err = app.Queue.SubscribeIngestRequested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()

		var createdAt time.Time
		if doc, err := app.Repo.GetByID(processCtx, documentID); err == nil {
			createdAt = doc.CreatedAt
		}

		started := time.Now()
		done := workerMetrics.Track(createdAt)
		if err := app.ProcessUC.ProcessByID(processCtx, documentID); err != nil {
			done(0, err)
			logger.Error("document_process_failed",
				"document_id", documentID,
				"outcome", metrics.IngestOutcome(err),
				"error", err,
			)
			return err
		}

		passages := 0
		if doc, err := app.Repo.GetByID(processCtx, documentID); err == nil {
			passages = doc.PassageCount
		}
		done(passages, nil)
		logger.Info("document_processed", "document_id", documentID, "passages", passages, "duration_ms", time.Since(started).Milliseconds())
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
