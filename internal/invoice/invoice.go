// Package invoice собирает счета на комиссию платформы из бронирований партнёра за расчётный
// период и ведёт их оплату.
package invoice

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/validation"
)

// DefaultGracePeriod задаёт срок оплаты счёта по умолчанию, отсчитывается от даты выставления.
const DefaultGracePeriod = 15 * 24 * time.Hour

// Params содержит реквизиты формируемого счёта.
type Params struct {
	ID          string
	Number      string
	PartnerID   string
	Period      model.BillingPeriod
	IssuedAt    time.Time
	// GracePeriod при нулевом значении делает счёт подлежащим оплате в день выставления.
	GracePeriod time.Duration
}

// Eligible сообщает, может ли бронирование войти в счёт партнёра за окно [from, to).
func Eligible(b model.Booking, partnerID string, from, to time.Time) bool {
	if b.PartnerID != partnerID || b.CommissionStatus != model.CommissionStatusUnbilled {
		return false
	}
	if b.UserPaymentDate == nil {
		return false
	}
	paid := *b.UserPaymentDate
	return !paid.Before(from) && paid.Before(to)
}

// SelectEligible отбирает подходящие для счёта бронирования.
func SelectEligible(bookings []model.Booking, partnerID string, period model.BillingPeriod) ([]model.Booking, error) {
	from, to, err := period.Window()
	if err != nil {
		return nil, err
	}

	var res []model.Booking
	for _, b := range bookings {
		if Eligible(b, partnerID, from, to) {
			res = append(res, b)
		}
	}
	return res, nil
}

// Build формирует счёт из переданных бронирований. Все бронирования должны быть подходящими,
// иначе возвращается ErrComputation. Итоговая комиссия складывается из уже округлённых комиссий строк.
// Build не меняет бронирования: пометка billed выполняется хранилищем в той же транзакции.
func Build(p Params, bookings []model.Booking) (*model.Invoice, error) {
	from, to, err := p.Period.Window()
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, fmt.Errorf("%w: partner %s, period %s", model.ErrNoEligibleBookings, p.PartnerID, p.Period)
	}
	if p.GracePeriod < 0 {
		return nil, fmt.Errorf("%w: negative grace period %s", model.ErrValidation, p.GracePeriod)
	}

	sorted := append([]model.Booking(nil), bookings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := *sorted[i].UserPaymentDate, *sorted[j].UserPaymentDate
		if !a.Equal(b) {
			return a.Before(b)
		}
		return sorted[i].ID < sorted[j].ID
	})

	inv := &model.Invoice{
		ID:                  p.ID,
		InvoiceNumber:       p.Number,
		PartnerID:           p.PartnerID,
		BillingPeriod:       p.Period,
		CommissionBreakdown: make([]model.CommissionEntry, 0, len(sorted)),
		Status:              model.InvoiceStatusPaymentDue,
		IssuedAt:            p.IssuedAt,
		DueDate:             p.IssuedAt.Add(p.GracePeriod),
	}

	seen := make(map[string]struct{}, len(sorted))
	for _, b := range sorted {
		if !Eligible(b, p.PartnerID, from, to) {
			return nil, fmt.Errorf("%w: booking %s is not eligible for invoice of partner %s", model.ErrComputation, b.ID, p.PartnerID)
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("%w: booking %s folded twice", model.ErrComputation, b.ID)
		}
		seen[b.ID] = struct{}{}
		if b.CommissionAmount < 0 || b.TotalAmount < 0 {
			return nil, fmt.Errorf("%w: booking %s has negative amounts", model.ErrComputation, b.ID)
		}

		inv.CommissionBreakdown = append(inv.CommissionBreakdown, model.CommissionEntry{
			BookingID:        b.ID,
			EnthusiastName:   b.EnthusiastName,
			BookingDate:      b.CreatedAt,
			TotalAmount:      b.TotalAmount,
			CommissionRate:   b.CommissionRate,
			CommissionAmount: b.CommissionAmount,
			TestNames:        b.TestNames(),
		})
		inv.TotalBookingValue += b.TotalAmount
		inv.TotalCommission += b.CommissionAmount
	}
	inv.NumberOfBookings = len(inv.CommissionBreakdown)

	return inv, nil
}

// FormatNumber формирует номер счёта из месяца выставления, порядкового номера и контрольной цифры.
// Порядковый номер дополняется нулями до шести цифр; после 999999 номер становится длиннее.
func FormatNumber(issuedAt time.Time, seq int64) (string, error) {
	if seq < 1 {
		return "", fmt.Errorf("%w: invoice sequence %d out of range", model.ErrValidation, seq)
	}

	payload := fmt.Sprintf("%s%06d", issuedAt.UTC().Format("200601"), seq)
	digit, ok := validation.LuhnCheckDigit(payload)
	if !ok {
		return "", fmt.Errorf("%w: invoice number payload %q", model.ErrValidation, payload)
	}
	return payload + string(digit), nil
}

// MarkPaid фиксирует оплату счёта партнёром. Бронирования счёта не затрагиваются.
func MarkPaid(inv *model.Invoice, method, reference string, paidAt time.Time) error {
	if inv.Status == model.InvoiceStatusPaid {
		return fmt.Errorf("%w: invoice %s is already paid", model.ErrAlreadyRecorded, inv.InvoiceNumber)
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return fmt.Errorf("%w: invoice %s: payment method is empty", model.ErrValidation, inv.InvoiceNumber)
	}

	at := paidAt
	inv.Status = model.InvoiceStatusPaid
	inv.PaidAt = &at
	inv.PaymentMethod = method
	inv.PaymentReference = strings.TrimSpace(reference)
	return nil
}

// VerifyTotals проверяет согласованность итогов счёта с расшифровкой.
func VerifyTotals(inv model.Invoice) error {
	var value, commissionTotal int64
	for _, e := range inv.CommissionBreakdown {
		value += e.TotalAmount
		commissionTotal += e.CommissionAmount
	}
	if inv.NumberOfBookings != len(inv.CommissionBreakdown) || value != inv.TotalBookingValue || commissionTotal != inv.TotalCommission {
		return fmt.Errorf("%w: invoice %s totals do not match breakdown", model.ErrComputation, inv.InvoiceNumber)
	}
	return nil
}
