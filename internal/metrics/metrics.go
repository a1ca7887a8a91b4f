// Package metrics публикует метрики сервиса в формате Prometheus и принимает доменные события.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

const namespace = "bookingledger"

const (
	JobResultOK    = "ok"
	JobResultError = "error"
)

// Metrics хранит коллекторы сервиса.
type Metrics struct {
	gatherer prometheus.Gatherer

	events      *prometheus.CounterVec
	amounts     *prometheus.CounterVec
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// New регистрирует коллекторы в отдельном реестре. Реестр также содержит метрики процесса и Go runtime.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	m := &Metrics{
		gatherer: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Applied booking and invoice operations by event type.",
		}, []string{"type"}),
		amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_units_total",
			Help:      "Commission amounts in whole currency units by event type.",
		}, []string{"type"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}

	reg.MustRegister(m.events, m.amounts, m.jobRuns, m.jobDuration)
	return m
}

// Handler отдаёт метрики для scrape.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveJob учитывает запуск фоновой задачи.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	result := JobResultOK
	if err != nil {
		result = JobResultError
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// EventSink пишет доменные события в лог и учитывает их в метриках.
type EventSink struct {
	logger  *zap.Logger
	metrics *Metrics
}

// NewEventSink создаёт приёмник событий. metrics может быть nil.
func NewEventSink(logger *zap.Logger, m *Metrics) *EventSink {
	return &EventSink{logger: logger, metrics: m}
}

// Emit принимает событие.
func (s *EventSink) Emit(_ context.Context, e model.Event) {
	s.logger.Info("event",
		zap.String("type", string(e.Type)),
		zap.String("booking_id", e.BookingID),
		zap.String("invoice", e.InvoiceID),
		zap.String("partner_id", e.PartnerID),
		zap.String("status", e.Status),
		zap.Int64("amount", e.Amount),
		zap.Time("occurred_at", e.OccurredAt),
	)

	if s.metrics == nil {
		return
	}
	s.metrics.events.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case model.EventPaymentRecorded, model.EventInvoiceGenerated, model.EventInvoicePaid:
		s.metrics.amounts.WithLabelValues(string(e.Type)).Add(float64(e.Amount))
	}
}
