package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nemanja-m/inferq/internal/bootstrap"
	"github.com/nemanja-m/inferq/internal/broker/client"
	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/inference/payload"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

type outcome struct {
	file   string
	result core.Result
	err    error
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file")
		payloadDir  = flag.String("payload-dir", "", "local payload directory shared with the model server (overrides payloads.dir)")
		timeout     = flag.Duration("timeout", 0, "per-file wait timeout (defaults to broker.submit_timeout)")
		concurrency = flag.Int("concurrency", 4, "number of files in flight")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: submit [flags] <glob> [<glob>...]")
		os.Exit(2)
	}
	if *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency must be > 0")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.LoadAPI(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *payloadDir != "" {
		cfg.Payloads.Backend = "local"
		cfg.Payloads.Dir = *payloadDir
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	files, err := payload.FindFiles(flag.Args())
	if err != nil {
		logger.Fatal("Invalid glob pattern", "error", err)
	}
	if len(files) == 0 {
		logger.Fatal("No files matched", "patterns", flag.Args())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	payloads, err := bootstrap.NewPayloadStore(ctx, cfg.Payloads)
	if err != nil {
		logger.Fatal("Failed to open payload store", "backend", cfg.Payloads.Backend, "error", err)
	}

	b, err := bootstrap.NewBroker(ctx, cfg.Broker, logger)
	if err != nil {
		logger.Fatal("Failed to connect to broker", "error", err)
	}
	defer b.Close()

	c := b.Client(cfg.Broker, logger)
	start := time.Now()
	outcomes := submitAll(ctx, c, payloads, files, *timeout, *concurrency)

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			fmt.Printf("%s\terror\t%v\n", o.file, o.err)
			continue
		}
		fmt.Printf("%s\t%s\t%.2f\n", o.file, o.result.Label, o.result.Score)
	}

	logger.Info("Batch finished",
		"files", len(files),
		"failed", failed,
		"duration", time.Since(start).String(),
	)
	if failed > 0 {
		os.Exit(1)
	}
}

// submitAll uploads each file and waits for its result, keeping at most
// concurrency files in flight. Outcomes are returned in input order.
func submitAll(
	ctx context.Context,
	c *client.Client,
	payloads payload.Store,
	files []string,
	timeout time.Duration,
	concurrency int,
) []outcome {
	outcomes := make([]outcome, len(files))
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, file := range files {
		wg.Go(func() {
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = outcome{file: file}
			ref, err := payload.PutFile(ctx, payloads, file)
			if err != nil {
				outcomes[i].err = err
				return
			}
			outcomes[i].result, outcomes[i].err = c.SubmitAndAwait(ctx, ref, timeout)
		})
	}
	wg.Wait()
	return outcomes
}
