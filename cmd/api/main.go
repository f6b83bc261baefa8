package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nemanja-m/inferq/internal/api/rest"
	"github.com/nemanja-m/inferq/internal/bootstrap"
	"github.com/nemanja-m/inferq/internal/broker/service"
	"github.com/nemanja-m/inferq/internal/feedback"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/logging"
	"github.com/nemanja-m/inferq/internal/shared/observability"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.LoadAPI(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, "inferq-api")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", "error", err)
	}
	defer shutdownTracing(context.Background())

	b, err := bootstrap.NewBroker(ctx, cfg.Broker, logger)
	if err != nil {
		logger.Fatal("Failed to connect to broker", "error", err)
	}
	defer b.Close()

	sink, err := feedback.OpenFileSink(cfg.Feedback.Path)
	if err != nil {
		logger.Fatal("Failed to open feedback sink", "error", err)
	}
	defer sink.Close()

	opts := []rest.Option{
		rest.WithQueueLength(b.Queue),
		rest.WithMaxWait(cfg.REST.WriteTimeout - time.Second),
	}
	if cfg.REST.EnableUploads {
		payloads, err := bootstrap.NewPayloadStore(ctx, cfg.Payloads)
		if err != nil {
			logger.Fatal("Failed to open payload store", "backend", cfg.Payloads.Backend, "error", err)
		}
		opts = append(opts, rest.WithPayloadUploader(payloads))
	}

	api := rest.NewAPI(b.Client(cfg.Broker, logger), sink, logger, opts...)
	server := rest.NewServer(cfg.REST, api)

	janitor := service.NewJanitor(cfg.Broker.JanitorInterval, b.Queue, b.Store, logger)
	go janitor.Start(ctx)

	go func() {
		logger.Info("Starting API server",
			"addr", cfg.REST.Addr,
			"queue", cfg.Broker.Queue.Backend,
			"store", cfg.Broker.Store.Backend,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("API server stopped")
}
