package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/secguide/internal/adapters/http"
	"github.com/kirillkom/secguide/internal/bootstrap"
	"github.com/kirillkom/secguide/internal/config"
	"github.com/kirillkom/secguide/internal/observability/logging"
	"github.com/kirillkom/secguide/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Logger:     logger,
		Registerer: httpMetrics.Registerer(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.CorpusRefreshOnStart {
		if n, err := app.RefreshUC.Refresh(ctx); err != nil {
			// hybrid queries degrade to dense until the next corpus event
			logger.Warn("initial_corpus_refresh_failed", "error", err)
		} else {
			logger.Info("initial_corpus_refresh", "passages", n)
		}
	}

	go func() {
		err := app.Queue.SubscribeCorpusUpdated(ctx, func(handlerCtx context.Context, documentID string) error {
			refreshCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
			defer cancel()
			return app.RefreshUC.HandleCorpusUpdated(refreshCtx, documentID)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("corpus_subscription_failed", "error", err)
			stop()
		}
	}()

	router := httpadapter.NewRouter(httpadapter.Options{
		Service:        serviceName,
		DefaultTopK:    app.Orchestrator.Options().DefaultTopK,
		RateLimitRPS:   cfg.HTTPRateLimitRPS,
		RateLimitBurst: cfg.HTTPRateLimitBurst,
		MaxInFlight:    cfg.HTTPMaxInFlight,
		QueueWait:      250 * time.Millisecond,
		RequestTimeout: cfg.HTTPRequestTimeout,
		Logger:         logger,
		Recorder:       httpMetrics,
		MetricsHandler: httpMetrics.Handler(),
	}, app.Orchestrator, app.GuidanceUC, app.Repo, app.RefreshUC, app.ControlsUC)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      httpMetrics.Middleware(serviceName, router.Handler()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
