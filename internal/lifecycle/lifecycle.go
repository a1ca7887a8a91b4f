// Package lifecycle реализует жизненный цикл бронирования: создание, переходы статусов,
// правку срока готовности отчёта, загрузку отчёта и фиксацию платёжных фактов.
//
// Все функции работают с переданным бронированием и явными входными данными (ставка,
// текущее время). При ошибке бронирование не изменяется.
package lifecycle

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/commission"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

var edges = map[model.BookingStatus][]model.BookingStatus{
	model.BookingStatusPending:   {model.BookingStatusConfirmed, model.BookingStatusCancelled},
	model.BookingStatusConfirmed: {model.BookingStatusCompleted},
}

// TransitionContext содержит дополнительные данные запроса на переход.
type TransitionContext struct {
	DeliveryEstimate string
}

// NewBookingRequest описывает данные для создания бронирования.
type NewBookingRequest struct {
	ID             string
	EnthusiastID   string
	EnthusiastName string
	PartnerID      string
	SelectedTests  []model.SelectedTest
}

// NewBooking создаёт бронирование в статусе pending. Итоговая сумма фиксируется как сумма
// цен выбранных анализов.
func NewBooking(req NewBookingRequest, now time.Time) (*model.Booking, error) {
	if req.ID == "" || req.EnthusiastID == "" || req.PartnerID == "" {
		return nil, fmt.Errorf("%w: booking needs id, enthusiast and partner", model.ErrValidation)
	}
	if len(req.SelectedTests) == 0 {
		return nil, fmt.Errorf("%w: booking needs at least one test", model.ErrValidation)
	}

	var total int64
	tests := make([]model.SelectedTest, 0, len(req.SelectedTests))
	for i, t := range req.SelectedTests {
		name := strings.TrimSpace(t.TestName)
		if name == "" {
			return nil, fmt.Errorf("%w: test #%d has no name", model.ErrValidation, i+1)
		}
		if t.Price < 0 {
			return nil, fmt.Errorf("%w: test %q has negative price", model.ErrValidation, name)
		}
		if t.Price > math.MaxInt64-total {
			return nil, fmt.Errorf("%w: booking total overflows at test %q", model.ErrValidation, name)
		}
		total += t.Price
		tests = append(tests, model.SelectedTest{TestName: name, Price: t.Price})
	}

	return &model.Booking{
		ID:             req.ID,
		EnthusiastID:   req.EnthusiastID,
		EnthusiastName: strings.TrimSpace(req.EnthusiastName),
		PartnerID:      req.PartnerID,
		SelectedTests:  tests,
		TotalAmount:    total,
		Status:         model.BookingStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CanTransition сообщает, существует ли ребро from -> to.
func CanTransition(from, to model.BookingStatus) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition применяет переход статуса. Подтверждение требует срока готовности отчёта либо в
// бронировании, либо в tc. Повторный запрос того же статуса считается ошибкой.
func Transition(b *model.Booking, target model.BookingStatus, tc TransitionContext, now time.Time) error {
	if !target.Valid() || !CanTransition(b.Status, target) {
		return fmt.Errorf("%w: booking %s: %s -> %s", model.ErrInvalidTransition, b.ID, b.Status, target)
	}

	estimate := strings.TrimSpace(tc.DeliveryEstimate)
	if target == model.BookingStatusConfirmed {
		if estimate == "" && strings.TrimSpace(b.ExpectedReportDeliveryTime) == "" {
			return fmt.Errorf("%w: booking %s", model.ErrMissingDeliveryEstimate, b.ID)
		}
	}

	if estimate != "" {
		b.ExpectedReportDeliveryTime = estimate
	}
	b.Status = target
	b.UpdatedAt = now
	return nil
}

// EditDeliveryEstimate меняет срок готовности отчёта независимо от статуса.
func EditDeliveryEstimate(b *model.Booking, estimate string, now time.Time) error {
	estimate = strings.TrimSpace(estimate)
	if estimate == "" {
		return fmt.Errorf("%w: booking %s: delivery estimate is empty", model.ErrValidation, b.ID)
	}
	b.ExpectedReportDeliveryTime = estimate
	b.UpdatedAt = now
	return nil
}

// AttachReport прикрепляет ссылку на отчёт. Для отменённых бронирований запрещено.
func AttachReport(b *model.Booking, url string, now time.Time) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("%w: booking %s: report url is empty", model.ErrValidation, b.ID)
	}
	if b.Status == model.BookingStatusCancelled {
		return fmt.Errorf("%w: booking %s", model.ErrReportNotAllowed, b.ID)
	}
	b.ReportURL = &url
	uploaded := now
	b.ReportUploadedAt = &uploaded
	b.UpdatedAt = now
	return nil
}

// RecordUserPayment фиксирует оплату энтузиастом лаборатории и одновременно, как явный побочный
// эффект, начисляет комиссию платформы по ставке rate, действующей на момент now.
// Факт оплаты устанавливается однократно.
func RecordUserPayment(b *model.Booking, method model.PaymentMethod, rate decimal.Decimal, now time.Time) error {
	if b.UserPaidToLab {
		return fmt.Errorf("%w: booking %s: user payment", model.ErrAlreadyRecorded, b.ID)
	}
	if !method.Valid() {
		return fmt.Errorf("%w: booking %s: unknown payment method %q", model.ErrValidation, b.ID, method)
	}
	if b.Status == model.BookingStatusCancelled {
		return fmt.Errorf("%w: booking %s: payment on cancelled booking", model.ErrInvalidTransition, b.ID)
	}
	if b.TotalAmount != model.SumTests(b.SelectedTests) {
		return fmt.Errorf("%w: booking %s: total %d does not match selected tests", model.ErrComputation, b.ID, b.TotalAmount)
	}

	res, err := commission.Compute(b.TotalAmount, rate)
	if err != nil {
		return fmt.Errorf("booking %s: %w", b.ID, err)
	}

	paidAt := now
	b.UserPaidToLab = true
	b.UserPaymentDate = &paidAt
	b.UserPaymentMethod = method

	receivedAt := now
	b.PaymentReceivedByLab = true
	b.CommissionAmount = res.Amount
	b.CommissionRate = res.Rate
	b.CommissionStatus = model.CommissionStatusUnbilled
	b.PaymentReceivedDate = &receivedAt
	b.UpdatedAt = now
	return nil
}
