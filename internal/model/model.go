// Package model содержит доменные сущности сервиса учёта лабораторных бронирований,
// комиссий платформы и счетов партнёров.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus описывает статус бронирования лабораторных анализов.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Valid сообщает, является ли статус одним из известных.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// Terminal сообщает, является ли статус конечным.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// CommissionStatus описывает состояние комиссии платформы по бронированию.
// Пустое значение означает, что комиссия ещё не начислена.
type CommissionStatus string

const (
	CommissionStatusNone     CommissionStatus = ""
	CommissionStatusUnbilled CommissionStatus = "unbilled"
	CommissionStatusBilled   CommissionStatus = "billed"
	CommissionStatusPaid     CommissionStatus = "paid"
)

// PaymentMethod описывает способ оплаты, которым энтузиаст рассчитался с лабораторией.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodUPI          PaymentMethod = "upi"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodOther        PaymentMethod = "other"
)

// Valid сообщает, является ли способ оплаты допустимым.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodUPI, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodOther:
		return true
	}
	return false
}

// SelectedTest фиксирует анализ и его цену на момент бронирования.
type SelectedTest struct {
	TestName string
	Price    int64
}

// Booking описывает бронирование анализов у лабораторного партнёра.
// Суммы хранятся в целых единицах валюты.
type Booking struct {
	ID             string
	EnthusiastID   string
	EnthusiastName string
	PartnerID      string

	SelectedTests []SelectedTest
	TotalAmount   int64

	Status                     BookingStatus
	ExpectedReportDeliveryTime string

	ReportURL        *string
	ReportUploadedAt *time.Time

	UserPaidToLab     bool
	UserPaymentDate   *time.Time
	UserPaymentMethod PaymentMethod

	PaymentReceivedByLab bool
	CommissionAmount     int64
	CommissionRate       decimal.Decimal
	CommissionStatus     CommissionStatus
	PaymentReceivedDate  *time.Time
	InvoiceID            *string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone возвращает глубокую копию бронирования.
func (b Booking) Clone() Booking {
	c := b
	c.SelectedTests = append([]SelectedTest(nil), b.SelectedTests...)
	c.ReportURL = cloneString(b.ReportURL)
	c.InvoiceID = cloneString(b.InvoiceID)
	c.ReportUploadedAt = cloneTime(b.ReportUploadedAt)
	c.UserPaymentDate = cloneTime(b.UserPaymentDate)
	c.PaymentReceivedDate = cloneTime(b.PaymentReceivedDate)
	return c
}

// SumTests возвращает сумму цен выбранных анализов.
func SumTests(tests []SelectedTest) int64 {
	var total int64
	for _, t := range tests {
		total += t.Price
	}
	return total
}

// TestNames возвращает названия анализов в порядке добавления.
func (b Booking) TestNames() []string {
	names := make([]string, 0, len(b.SelectedTests))
	for _, t := range b.SelectedTests {
		names = append(names, t.TestName)
	}
	return names
}

// PartnerKind описывает тип партнёра платформы.
type PartnerKind string

const (
	PartnerKindTrainer PartnerKind = "trainer"
	PartnerKindLab     PartnerKind = "lab"
)

// Valid сообщает, является ли тип партнёра известным.
func (k PartnerKind) Valid() bool {
	return k == PartnerKindTrainer || k == PartnerKindLab
}

// Partner описывает тренера или лабораторию с текущей ставкой комиссии в процентах.
type Partner struct {
	ID             string
	Kind           PartnerKind
	Name           string
	CommissionRate decimal.Decimal
	CreatedAt      time.Time
}

// ClassSession описывает оплаченное бронирование занятия у тренера.
type ClassSession struct {
	ID               string
	TrainerID        string
	EnthusiastID     string
	Amount           int64
	CommissionRate   decimal.Decimal
	CommissionAmount int64
	BookedAt         time.Time
}

// InvoiceStatus описывает статус счёта партнёру.
type InvoiceStatus string

const (
	InvoiceStatusPaymentDue InvoiceStatus = "payment_due"
	InvoiceStatusPaid       InvoiceStatus = "paid"
	// InvoiceStatusOverdue никогда не хранится, а вычисляется при чтении.
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// CommissionEntry описывает строку расшифровки комиссии в счёте.
type CommissionEntry struct {
	BookingID        string
	EnthusiastName   string
	BookingDate      time.Time
	TotalAmount      int64
	CommissionRate   decimal.Decimal
	CommissionAmount int64
	TestNames        []string
}

// Invoice описывает счёт на комиссию платформы за расчётный период.
type Invoice struct {
	ID            string
	InvoiceNumber string
	PartnerID     string
	BillingPeriod BillingPeriod

	CommissionBreakdown []CommissionEntry
	NumberOfBookings    int
	TotalBookingValue   int64
	TotalCommission     int64

	Status           InvoiceStatus
	IssuedAt         time.Time
	DueDate          time.Time
	PaidAt           *time.Time
	PaymentMethod    string
	PaymentReference string
}

// StatusAt возвращает статус счёта на момент now с учётом просрочки.
func (i Invoice) StatusAt(now time.Time) InvoiceStatus {
	if i.Status == InvoiceStatusPaid {
		return InvoiceStatusPaid
	}
	if now.After(i.DueDate) {
		return InvoiceStatusOverdue
	}
	return InvoiceStatusPaymentDue
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
