package model

import "time"

// EventType описывает тип доменного события.
type EventType string

const (
	EventBookingCreated      EventType = "booking.created"
	EventBookingTransitioned EventType = "booking.transitioned"
	EventPaymentRecorded     EventType = "payment.recorded"
	EventInvoiceGenerated    EventType = "invoice.generated"
	EventInvoicePaid         EventType = "invoice.paid"
)

// Event описывает успешно применённую операцию над бронированием или счётом.
type Event struct {
	Type       EventType
	BookingID  string
	InvoiceID  string
	PartnerID  string
	Status     string
	Amount     int64
	OccurredAt time.Time
}
