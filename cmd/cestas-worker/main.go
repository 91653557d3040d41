package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cestas/internal/amqp"
	"cestas/internal/cli"
	applog "cestas/internal/log"
	"cestas/internal/services"
	gsheet "cestas/internal/sheets/google"
	"cestas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting cestas-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend != "sqlite" {
		logger.Error("The worker needs the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, nothing to sync")
		cli.WaitForShutdown(ctx, done)
		return
	}

	sheetsClient, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	syncWorker := worker.NewSyncWorker(sqliteRepo, sheetsClient, cfg.SyncBatchSize)

	// The periodic sweep also runs once at startup to catch deliveries
	// written while the worker was down.
	processor := services.NewSyncProcessor(syncWorker, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
		RunOnStart:   true,
	})
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", applog.FieldError, err)
		os.Exit(1)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client, relying on periodic sweep", applog.FieldError, err)
		} else {
			defer amqpClient.Close()
			go func() {
				err := amqpClient.ConsumeDeliverySync(ctx, func(msg *amqp.DeliverySyncMessage) error {
					return syncWorker.HandleSyncMessage(ctx, msg)
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", applog.FieldError, err)
				}
			}()
		}
	} else {
		logger.Info("AMQP disabled - relying on periodic sweep", "interval", cfg.SyncInterval)
	}

	cli.WaitForShutdown(ctx, done)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		logger.Warn("Sync processor did not stop cleanly", applog.FieldError, err)
	}
	logger.Info("Worker shutdown complete")
}
