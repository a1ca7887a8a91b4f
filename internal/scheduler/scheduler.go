// Package scheduler запускает периодические задачи сервиса: выставление счетов за прошедший
// месяц и пересчёт сводного отчёта.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/analytics"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

const (
	JobInvoices  = "invoices"
	JobAnalytics = "analytics"

	DefaultInvoiceSpec   = "0 2 1 * *"
	DefaultAnalyticsSpec = "@hourly"
)

const jobTimeout = 10 * time.Minute

// Jobs описывает операции сервиса, которые запускаются по расписанию.
type Jobs interface {
	GenerateDueInvoices(ctx context.Context, period model.BillingPeriod) ([]*model.Invoice, error)
	RefreshLatestReport(ctx context.Context) (*analytics.Report, error)
}

// Observer учитывает запуски задач.
type Observer interface {
	ObserveJob(job string, d time.Duration, err error)
}

// Config задаёт расписания в формате cron.
type Config struct {
	InvoiceSpec   string
	AnalyticsSpec string
}

// Scheduler выполняет задачи по расписанию в UTC.
type Scheduler struct {
	cron     *cron.Cron
	jobs     Jobs
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	baseCtx context.Context
}

// New создаёт планировщик и проверяет расписания. observer может быть nil.
func New(jobs Jobs, logger *zap.Logger, observer Observer, cfg Config) (*Scheduler, error) {
	if cfg.InvoiceSpec == "" {
		cfg.InvoiceSpec = DefaultInvoiceSpec
	}
	if cfg.AnalyticsSpec == "" {
		cfg.AnalyticsSpec = DefaultAnalyticsSpec
	}

	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:     jobs,
		logger:   logger,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
		baseCtx:  context.Background(),
	}

	if _, err := s.cron.AddFunc(cfg.InvoiceSpec, func() { _ = s.RunInvoices(s.baseCtx) }); err != nil {
		return nil, fmt.Errorf("invoice schedule %q: %w", cfg.InvoiceSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.AnalyticsSpec, func() { _ = s.RunAnalytics(s.baseCtx) }); err != nil {
		return nil, fmt.Errorf("analytics schedule %q: %w", cfg.AnalyticsSpec, err)
	}

	return s, nil
}

// Run строит сводный отчёт, запускает расписание и блокируется до отмены ctx. После отмены
// дожидается завершения выполняющихся задач.
func (s *Scheduler) Run(ctx context.Context) error {
	s.baseCtx = ctx

	_ = s.RunAnalytics(ctx)

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))

	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunInvoices выставляет счета за предыдущий календарный месяц.
func (s *Scheduler) RunInvoices(ctx context.Context) error {
	period := model.PreviousMonth(s.now())
	return s.run(ctx, JobInvoices, func(ctx context.Context) error {
		invoices, err := s.jobs.GenerateDueInvoices(ctx, period)
		if err != nil {
			return err
		}
		s.logger.Info("invoices generated",
			zap.String("period", period.String()),
			zap.Int("count", len(invoices)),
		)
		return nil
	})
}

// RunAnalytics пересчитывает сводный отчёт.
func (s *Scheduler) RunAnalytics(ctx context.Context) error {
	return s.run(ctx, JobAnalytics, func(ctx context.Context) error {
		_, err := s.jobs.RefreshLatestReport(ctx)
		return err
	})
}

func (s *Scheduler) run(ctx context.Context, job string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if s.observer != nil {
		s.observer.ObserveJob(job, time.Since(start), err)
	}
	if err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", job), zap.Error(err))
		return err
	}
	return nil
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
