package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"cadence/internal/archive"
	"cadence/internal/artifacts"
	"cadence/internal/config"
	"cadence/internal/daemon"
	"cadence/internal/downloader"
	"cadence/internal/executor"
	"cadence/internal/extractor"
	"cadence/internal/jobs"
	"cadence/internal/logging"
	"cadence/internal/normalize"
	"cadence/internal/pipeline"
	"cadence/internal/retry"
)

func main() {
	configFlag := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	arch, err := archive.Open(cfg)
	if err != nil {
		logger.Error("open download archive", logging.Error(err))
		return
	}

	store := jobs.NewStore(jobs.LimitsFromConfig(cfg))

	pl := &pipeline.Pipeline{
		Extractor:  extractor.NewClient(cfg, logger),
		Downloader: downloader.New(cfg, arch, logger),
		Composer:   artifacts.New(cfg, logger),
		Retry: &retry.Executor{
			MaxRetries: cfg.Downloads.MaxRetries,
			Backoff:    cfg.RetryBackoff(),
			Logger:     logger,
		},
		Logger:  logger,
		ItemCap: cfg.Downloads.ItemCap,
	}
	if cfg.Normalize.Enabled {
		pl.Normalizer = normalize.New(cfg, logger)
	}

	exec := executor.New(store, pl, logger)

	d, err := daemon.New(cfg, store, exec, arch, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("cadenced shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := d.Close(shutdownCtx); err != nil {
		logger.Warn("daemon close", logging.Error(err))
	}
}
