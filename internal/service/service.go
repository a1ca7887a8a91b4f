// Package service реализует бизнес-логику учёта бронирований, комиссий и счетов партнёров.
package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/analytics"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/invoice"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreatePartner(ctx context.Context, p *model.Partner) error
	GetPartner(ctx context.Context, id string) (*model.Partner, error)
	ListPartners(ctx context.Context) ([]model.Partner, error)
	UpdatePartnerRate(ctx context.Context, id string, rate decimal.Decimal) error

	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListBookingsByPartner(ctx context.Context, partnerID string) ([]model.Booking, error)
	ListBookings(ctx context.Context, to time.Time) ([]model.Booking, error)
	UpdateBooking(ctx context.Context, b *model.Booking, expectedVersion int64) error

	CreateClassSession(ctx context.Context, cs *model.ClassSession) error
	ListClassSessions(ctx context.Context, to time.Time) ([]model.ClassSession, error)

	PartnersWithUnbilled(ctx context.Context, from, to time.Time) ([]string, error)
	FoldInvoice(ctx context.Context, partnerID string, period model.BillingPeriod, build repository.FoldFunc) (*model.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*model.Invoice, error)
	ListInvoicesByPartner(ctx context.Context, partnerID string) ([]model.Invoice, error)
	ListInvoices(ctx context.Context, to time.Time) ([]model.Invoice, error)
	UpdateInvoicePayment(ctx context.Context, inv *model.Invoice) error
}

// RateSource отдаёт текущую ставку комиссии партнёра из внешнего источника.
type RateSource interface {
	GetCommissionRate(ctx context.Context, partnerID string) (decimal.Decimal, error)
}

// EventSink получает события об успешно применённых операциях.
type EventSink interface {
	Emit(ctx context.Context, e model.Event)
}

// Clock возвращает текущее время.
type Clock func() time.Time

type nopSink struct{}

func (nopSink) Emit(context.Context, model.Event) {}

// Option настраивает сервис.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(c Clock) Option {
	return func(s *Service) { s.now = c }
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithGracePeriod задаёт срок оплаты счёта. Нулевой срок делает счёт подлежащим оплате в момент
// выставления; отрицательный игнорируется.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.gracePeriod = d
		}
	}
}

// WithInvoiceWorkers ограничивает число партнёров, счета которых формируются параллельно.
func WithInvoiceWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.invoiceWorkers = n
		}
	}
}

// WithMaxRateWait задаёт максимальную паузу, которую сервис выдержит по Retry-After источника ставок.
func WithMaxRateWait(d time.Duration) Option {
	return func(s *Service) { s.maxRateWait = d }
}

// Service содержит бизнес-логику учёта бронирований, комиссий и счетов.
type Service struct {
	repo   Repository
	rates  RateSource
	events EventSink
	logger *zap.Logger

	now            Clock
	newID          func() string
	gracePeriod    time.Duration
	invoiceWorkers int
	maxRateWait    time.Duration

	latest atomic.Pointer[analytics.Report]
}

// NewService создаёт новый сервис. rates и events могут быть nil.
func NewService(repo Repository, rates RateSource, events EventSink, logger *zap.Logger, opts ...Option) *Service {
	if events == nil {
		events = nopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:           repo,
		rates:          rates,
		events:         events,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		gracePeriod:    invoice.DefaultGracePeriod,
		invoiceWorkers: 4,
		maxRateWait:    2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) emit(ctx context.Context, e model.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	s.events.Emit(ctx, e)
}
