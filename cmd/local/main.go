package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nemanja-m/inferq/internal/api/rest"
	"github.com/nemanja-m/inferq/internal/bootstrap"
	brokerservice "github.com/nemanja-m/inferq/internal/broker/service"
	"github.com/nemanja-m/inferq/internal/feedback"
	"github.com/nemanja-m/inferq/internal/inference"
	"github.com/nemanja-m/inferq/internal/inference/gemini"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/logging"
	"github.com/nemanja-m/inferq/internal/shared/observability"
	"github.com/nemanja-m/inferq/internal/worker/core"
	"github.com/nemanja-m/inferq/internal/worker/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.LoadLocal(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, "inferq-local")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", "error", err)
	}
	defer shutdownTracing(context.Background())

	b, err := bootstrap.NewBroker(ctx, cfg.Broker, logger)
	if err != nil {
		logger.Fatal("Failed to create broker", "error", err)
	}
	defer b.Close()

	payloads, err := bootstrap.NewPayloadStore(ctx, cfg.Payloads)
	if err != nil {
		logger.Fatal("Failed to open payload store", "backend", cfg.Payloads.Backend, "error", err)
	}

	classifier, err := gemini.NewClassifier(ctx, gemini.Config{
		APIKey:     cfg.Gemini.APIKey,
		Model:      cfg.Gemini.Model,
		MaxRetries: cfg.Gemini.MaxRetries,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create classifier", "error", err)
	}
	inferencer := inference.NewService(payloads, classifier, logger)

	sink, err := feedback.OpenFileSink(cfg.Feedback.Path)
	if err != nil {
		logger.Fatal("Failed to open feedback sink", "error", err)
	}
	defer sink.Close()

	pool := service.NewPool(cfg.Worker.Concurrency, func(i int) core.WorkerService {
		return service.NewWorkerService(b.Queue, b.Store, inferencer, service.Config{
			ID:               fmt.Sprintf("%s-%d", cfg.Worker.ID, i),
			DequeueTimeout:   cfg.Worker.DequeueTimeout,
			InferenceTimeout: cfg.Worker.InferenceTimeout,
			ResultTTL:        cfg.Broker.ResultTTL,
		}, logger)
	})
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		if err := pool.Run(ctx); err != nil {
			logger.Error("Worker pool stopped with error", "error", err)
		}
	}()

	janitor := brokerservice.NewJanitor(cfg.Broker.JanitorInterval, b.Queue, b.Store, logger)
	go janitor.Start(ctx)

	opts := []rest.Option{
		rest.WithQueueLength(b.Queue),
		rest.WithMaxWait(cfg.REST.WriteTimeout - time.Second),
	}
	if cfg.REST.EnableUploads {
		opts = append(opts, rest.WithPayloadUploader(payloads))
	}
	api := rest.NewAPI(b.Client(cfg.Broker, logger), sink, logger, opts...)
	server := rest.NewServer(cfg.REST, api)

	go func() {
		logger.Info("Starting local inferq",
			"addr", cfg.REST.Addr,
			"workers", pool.Size(),
			"payloads", cfg.Payloads.Backend,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	<-poolDone

	logger.Info("Stopped")
}
