package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nemanja-m/inferq/internal/bootstrap"
	"github.com/nemanja-m/inferq/internal/inference"
	"github.com/nemanja-m/inferq/internal/inference/api/grpc"
	"github.com/nemanja-m/inferq/internal/inference/gemini"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/logging"
	"github.com/nemanja-m/inferq/internal/shared/observability"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.LoadInference(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, "inferq-inference")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", "error", err)
	}
	defer shutdownTracing(context.Background())

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

	server := grpc.NewServer(cfg.GRPC, inference.NewService(payloads, classifier, logger), logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to serve gRPC", "error", err)
		}
	}()

	logger.Info("Inference server started",
		"addr", cfg.GRPC.Addr,
		"model", cfg.Gemini.Model,
		"payloads", cfg.Payloads.Backend,
	)

	<-ctx.Done()
	logger.Info("Shutting down inference server")
	server.Stop()
	logger.Info("Inference server stopped")
}
