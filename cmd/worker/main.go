package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nemanja-m/inferq/internal/bootstrap"
	broker "github.com/nemanja-m/inferq/internal/broker/core"
	brokerservice "github.com/nemanja-m/inferq/internal/broker/service"
	"github.com/nemanja-m/inferq/internal/inference"
	"github.com/nemanja-m/inferq/internal/inference/gemini"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/logging"
	"github.com/nemanja-m/inferq/internal/shared/observability"
	"github.com/nemanja-m/inferq/internal/worker/api/grpc"
	"github.com/nemanja-m/inferq/internal/worker/core"
	"github.com/nemanja-m/inferq/internal/worker/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.LoadWorker(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = defaultWorkerID()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, "inferq-worker")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", "error", err)
	}
	defer shutdownTracing(context.Background())

	b, err := bootstrap.NewBroker(ctx, cfg.Broker, logger)
	if err != nil {
		logger.Fatal("Failed to connect to broker", "error", err)
	}
	defer b.Close()

	inferencer, closer, err := newInferencer(ctx, cfg.Inference, logger)
	if err != nil {
		logger.Fatal("Failed to create inferencer", "mode", cfg.Inference.Mode, "error", err)
	}
	defer closer.Close()

	janitor := brokerservice.NewJanitor(cfg.Broker.JanitorInterval, b.Queue, b.Store, logger)
	go janitor.Start(ctx)

	pool := service.NewPool(cfg.Worker.Concurrency, func(i int) core.WorkerService {
		return service.NewWorkerService(b.Queue, b.Store, inferencer, service.Config{
			ID:               fmt.Sprintf("%s-%d", workerID, i),
			DequeueTimeout:   cfg.Worker.DequeueTimeout,
			InferenceTimeout: cfg.Worker.InferenceTimeout,
			ResultTTL:        cfg.Broker.ResultTTL,
		}, logger)
	})

	logger.Info("Worker started",
		"worker_id", workerID,
		"concurrency", pool.Size(),
		"inference_mode", cfg.Inference.Mode,
		"queue", cfg.Broker.Queue.Backend,
		"store", cfg.Broker.Store.Backend,
	)

	if err := pool.Run(ctx); err != nil {
		logger.Error("Worker pool stopped with error", "error", err)
	}

	logger.Info("Shutting down worker", "worker_id", workerID)
}

func newInferencer(ctx context.Context, cfg config.WorkerInferenceConfig, logger logging.Logger) (broker.Inferencer, io.Closer, error) {
	if cfg.Mode == "local" {
		payloads, err := bootstrap.NewPayloadStore(ctx, cfg.Payloads)
		if err != nil {
			return nil, nil, err
		}
		classifier, err := gemini.NewClassifier(ctx, gemini.Config{
			APIKey:     cfg.Gemini.APIKey,
			Model:      cfg.Gemini.Model,
			MaxRetries: cfg.Gemini.MaxRetries,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return inference.NewService(payloads, classifier, logger), nopCloser{}, nil
	}

	client, err := grpc.NewInferenceClient(cfg.Remote)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// defaultWorkerID is hostname:pid, or a random id when the hostname is unknown.
func defaultWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return uuid.NewString()
	}
	return hostname + ":" + strconv.Itoa(os.Getpid())
}
