package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cestas/internal/backend"
	"cestas/internal/cli"
	apphttp "cestas/internal/http"
	applog "cestas/internal/log"
	"cestas/internal/report"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	loc := cli.LoadLocation(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	ctx := context.Background()
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend)).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	now := func() time.Time { return time.Now().In(loc) }
	reporter := report.NewReporter(res.Backend, res.Backend,
		report.WithClock(now),
		report.WithLabeler(report.NewMonthLabeler(cfg.ReportLocale)),
		report.WithLogger(logger.WithComponent(applog.ComponentReport)))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Reports:      reporter,
		Institutions: res.Backend,
		Families:     res.Backend,
		Deliveries:   res.Backend,
		Summary:      res.Backend,
		Suppliers:    res.Backend,
		Ready:        res.Ready,
		Logger:       logger.WithComponent(applog.ComponentHTTP),
		Now:          now,
		Location:     loc,
	})
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", applog.FieldError, err)
			}
		}
	})

	logger.Info("Starting cestas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"locale", cfg.ReportLocale,
		"location", loc.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
