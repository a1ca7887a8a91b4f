package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/commission"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/lifecycle"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/ratesource"
)

// NewPartner описывает данные для регистрации партнёра.
type NewPartner struct {
	ID             string
	Kind           model.PartnerKind
	Name           string
	CommissionRate decimal.Decimal
}

// NewClassSession описывает оплаченное занятие у тренера.
type NewClassSession struct {
	ID           string
	TrainerID    string
	EnthusiastID string
	Amount       int64
	BookedAt     time.Time
}

// CreatePartner регистрирует тренера или лабораторию.
func (s *Service) CreatePartner(ctx context.Context, req NewPartner) (*model.Partner, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown partner kind %q", model.ErrValidation, req.Kind)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: partner name is empty", model.ErrValidation)
	}
	if err := commission.ValidateRate(req.CommissionRate); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = s.newID()
	}

	p := &model.Partner{
		ID:             id,
		Kind:           req.Kind,
		Name:           name,
		CommissionRate: req.CommissionRate,
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreatePartner(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPartner возвращает партнёра.
func (s *Service) GetPartner(ctx context.Context, id string) (*model.Partner, error) {
	return s.repo.GetPartner(ctx, id)
}

// SetCommissionRate меняет текущую ставку партнёра. Уже начисленные комиссии сохраняют свою ставку.
func (s *Service) SetCommissionRate(ctx context.Context, partnerID string, rate decimal.Decimal) error {
	if err := commission.ValidateRate(rate); err != nil {
		return err
	}
	return s.repo.UpdatePartnerRate(ctx, partnerID, rate)
}

// CreateBooking создаёт бронирование анализов у лаборатории в статусе pending.
func (s *Service) CreateBooking(ctx context.Context, req lifecycle.NewBookingRequest) (*model.Booking, error) {
	if req.ID == "" {
		req.ID = s.newID()
	}

	partner, err := s.repo.GetPartner(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner.Kind != model.PartnerKindLab {
		return nil, fmt.Errorf("%w: partner %s is not a lab", model.ErrValidation, partner.ID)
	}

	b, err := lifecycle.NewBooking(req, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return nil, err
	}

	s.emit(ctx, model.Event{
		Type:      model.EventBookingCreated,
		BookingID: b.ID,
		PartnerID: b.PartnerID,
		Status:    string(b.Status),
		Amount:    b.TotalAmount,
	})
	return b, nil
}

// GetBooking возвращает бронирование.
func (s *Service) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ListBookingsByPartner возвращает бронирования партнёра, при непустом status только в этом статусе.
func (s *Service) ListBookingsByPartner(ctx context.Context, partnerID string, status model.BookingStatus) ([]model.Booking, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown booking status %q", model.ErrValidation, status)
	}
	if _, err := s.repo.GetPartner(ctx, partnerID); err != nil {
		return nil, err
	}

	bookings, err := s.repo.ListBookingsByPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return bookings, nil
	}

	res := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == status {
			res = append(res, b)
		}
	}
	return res, nil
}

// updateBooking читает бронирование, применяет mutate и сохраняет результат с проверкой версии.
func (s *Service) updateBooking(ctx context.Context, id string, mutate func(b *model.Booking, now time.Time) error) (*model.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	version := b.Version
	if err := mutate(b, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBooking(ctx, b, version); err != nil {
		return nil, err
	}
	return b, nil
}

// Transition переводит бронирование в статус target.
func (s *Service) Transition(ctx context.Context, id string, target model.BookingStatus, estimate string) (*model.Booking, error) {
	var from model.BookingStatus
	b, err := s.updateBooking(ctx, id, func(b *model.Booking, now time.Time) error {
		from = b.Status
		return lifecycle.Transition(b, target, lifecycle.TransitionContext{DeliveryEstimate: estimate}, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("booking transitioned",
		zap.String("booking_id", b.ID),
		zap.String("from", string(from)),
		zap.String("to", string(b.Status)),
	)
	s.emit(ctx, model.Event{
		Type:      model.EventBookingTransitioned,
		BookingID: b.ID,
		PartnerID: b.PartnerID,
		Status:    string(b.Status),
	})
	return b, nil
}

// EditDeliveryEstimate меняет срок готовности отчёта.
func (s *Service) EditDeliveryEstimate(ctx context.Context, id, estimate string) (*model.Booking, error) {
	return s.updateBooking(ctx, id, func(b *model.Booking, now time.Time) error {
		return lifecycle.EditDeliveryEstimate(b, estimate, now)
	})
}

// AttachReport сохраняет ссылку на загруженный отчёт.
func (s *Service) AttachReport(ctx context.Context, id, url string) (*model.Booking, error) {
	return s.updateBooking(ctx, id, func(b *model.Booking, now time.Time) error {
		return lifecycle.AttachReport(b, url, now)
	})
}

// RecordUserPayment фиксирует оплату энтузиастом лаборатории и начисляет комиссию по текущей
// ставке партнёра. Проигравший гонку параллельный вызов получает ErrConcurrentModification.
func (s *Service) RecordUserPayment(ctx context.Context, id string, method model.PaymentMethod) (*model.Booking, error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserPaidToLab {
		return nil, fmt.Errorf("%w: booking %s: user payment", model.ErrAlreadyRecorded, id)
	}

	partner, err := s.repo.GetPartner(ctx, current.PartnerID)
	if err != nil {
		return nil, err
	}
	rate := s.commissionRate(ctx, partner)

	version := current.Version
	if err := lifecycle.RecordUserPayment(current, method, rate, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBooking(ctx, current, version); err != nil {
		return nil, err
	}

	s.emit(ctx, model.Event{
		Type:      model.EventPaymentRecorded,
		BookingID: current.ID,
		PartnerID: current.PartnerID,
		Status:    string(current.CommissionStatus),
		Amount:    current.CommissionAmount,
	})
	return current, nil
}

// RecordClassSession сохраняет оплаченное занятие у тренера с комиссией по текущей ставке.
func (s *Service) RecordClassSession(ctx context.Context, req NewClassSession) (*model.ClassSession, error) {
	if req.EnthusiastID == "" {
		return nil, fmt.Errorf("%w: class session needs an enthusiast", model.ErrValidation)
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: class session amount %d is negative", model.ErrValidation, req.Amount)
	}

	partner, err := s.repo.GetPartner(ctx, req.TrainerID)
	if err != nil {
		return nil, err
	}
	if partner.Kind != model.PartnerKindTrainer {
		return nil, fmt.Errorf("%w: partner %s is not a trainer", model.ErrValidation, partner.ID)
	}

	res, err := commission.Compute(req.Amount, s.commissionRate(ctx, partner))
	if err != nil {
		return nil, err
	}

	cs := &model.ClassSession{
		ID:               req.ID,
		TrainerID:        partner.ID,
		EnthusiastID:     req.EnthusiastID,
		Amount:           req.Amount,
		CommissionRate:   res.Rate,
		CommissionAmount: res.Amount,
		BookedAt:         req.BookedAt.UTC(),
	}
	if cs.ID == "" {
		cs.ID = s.newID()
	}
	if req.BookedAt.IsZero() {
		cs.BookedAt = s.now()
	}

	if err := s.repo.CreateClassSession(ctx, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// commissionRate возвращает ставку партнёра на текущий момент: из источника ставок, если он
// настроен и знает партнёра, иначе из записи партнёра.
func (s *Service) commissionRate(ctx context.Context, partner *model.Partner) decimal.Decimal {
	if s.rates == nil {
		return partner.CommissionRate
	}

	rate, err := s.rates.GetCommissionRate(ctx, partner.ID)

	var limited *ratesource.RateLimitedError
	if errors.As(err, &limited) && limited.RetryAfter <= s.maxRateWait {
		timer := time.NewTimer(limited.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return partner.CommissionRate
		case <-timer.C:
		}
		rate, err = s.rates.GetCommissionRate(ctx, partner.ID)
	}

	if err != nil {
		if !errors.Is(err, ratesource.ErrRateNotFound) {
			s.logger.Warn("rate source unavailable, using stored partner rate",
				zap.String("partner_id", partner.ID),
				zap.Error(err),
			)
		}
		return partner.CommissionRate
	}
	return rate
}
