// Package main запускает HTTP-сервер и планировщик сервиса учёта бронирований и счетов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/config"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/handler"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/metrics"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/ratesource"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/repository"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/scheduler"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	var repo service.Repository
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo = repository.NewMemoryRepository()
	} else {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	}

	var rates service.RateSource
	if cfg.RateSourceAddress != "" {
		rates = ratesource.NewClient(cfg.RateSourceAddress)
	}

	m := metrics.New()

	svc := service.NewService(repo, rates, metrics.NewEventSink(logger, m), logger,
		service.WithGracePeriod(time.Duration(cfg.InvoiceGraceDays)*24*time.Hour),
	)
	defer svc.Close()

	sched, err := scheduler.New(svc, logger, m, scheduler.Config{
		InvoiceSpec:   cfg.InvoiceSchedule,
		AnalyticsSpec: cfg.AnalyticsSchedule,
	})
	if err != nil {
		sugar.Fatalw("scheduler initialization error", "error", err.Error())
	}

	h := handler.NewHandler(svc, logger, m.Handler())

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting bookingledger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
