package main

import (
	"context"
	"os"

	"receitas/internal/amqp"
	"receitas/internal/backend"
	"receitas/internal/cli"
	applog "receitas/internal/log"
	gsheet "receitas/internal/sheets/google"
	"receitas/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		applog.New(applog.DefaultConfig()).Warn("Could not load .env file", applog.FieldError, err)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)
	logger.Info("Starting receitas-worker", applog.FieldBackend, cfg.DataBackend)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	if !backendCfg.Type.IsSQL() {
		logger.Error("The sync worker needs a sqlite or postgres backend", applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required to run the sync worker")
		os.Exit(1)
	}

	repo, err := backend.OpenRepository(backendCfg)
	if err != nil {
		logger.Error("Failed to open repository", applog.FieldError, err)
		os.Exit(1)
	}
	defer repo.Close()

	sheetsClient, err := gsheet.NewFromConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, cfg.SyncBatchSize, logger)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Warn("AMQP disabled - only the scheduled replay will sync incomes")
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownGrace, nil)

	// Recover rows left pending while the worker was down
	if n, err := syncWorker.ProcessPending(ctx); err != nil {
		logger.Error("Startup sync failed", applog.FieldError, err)
	} else {
		logger.Info("Startup sync completed", applog.FieldCount, n)
	}

	scheduler := worker.NewScheduler(logger, cfg.ShutdownGrace*3)
	if err := scheduler.AddJob("pending-sync", cfg.SyncCron, func(ctx context.Context) error {
		_, err := syncWorker.ProcessPending(ctx)
		return err
	}); err != nil {
		logger.Error("Failed to schedule pending sync", applog.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	if amqpClient != nil {
		g.Go(func() error {
			logger.Info("Starting AMQP consumer", "queue", cfg.AMQPQueue)
			return amqpClient.ConsumeIncomeMessages(gctx, syncWorker.HandleMessage)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("Worker stopped unexpectedly", applog.FieldError, err)
		os.Exit(1)
	}
	<-done
	logger.Info("receitas-worker stopped")
}
