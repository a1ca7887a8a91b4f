// Package handler содержит HTTP-обработчики API сервиса учёта бронирований и счетов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/analytics"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/lifecycle"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/repository"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreatePartner(ctx context.Context, req service.NewPartner) (*model.Partner, error)
	GetPartner(ctx context.Context, id string) (*model.Partner, error)
	SetCommissionRate(ctx context.Context, partnerID string, rate decimal.Decimal) error

	CreateBooking(ctx context.Context, req lifecycle.NewBookingRequest) (*model.Booking, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListBookingsByPartner(ctx context.Context, partnerID string, status model.BookingStatus) ([]model.Booking, error)
	Transition(ctx context.Context, id string, target model.BookingStatus, estimate string) (*model.Booking, error)
	EditDeliveryEstimate(ctx context.Context, id, estimate string) (*model.Booking, error)
	AttachReport(ctx context.Context, id, url string) (*model.Booking, error)
	RecordUserPayment(ctx context.Context, id string, method model.PaymentMethod) (*model.Booking, error)
	RecordClassSession(ctx context.Context, req service.NewClassSession) (*model.ClassSession, error)

	GenerateInvoice(ctx context.Context, partnerID string, period model.BillingPeriod) (*model.Invoice, error)
	GetInvoice(ctx context.Context, number string) (*model.Invoice, error)
	ListInvoices(ctx context.Context, partnerID string) ([]model.Invoice, error)
	MarkInvoicePaid(ctx context.Context, number, method, reference string, paidAt time.Time) (*model.Invoice, error)

	RevenueReport(ctx context.Context, from, to time.Time, metric analytics.Metric, topN int) (*analytics.Report, error)
	LatestReport() *analytics.Report
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service Service
	logger  *zap.Logger
	metrics http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. metrics может быть nil.
func NewHandler(s Service, logger *zap.Logger, metrics http.Handler) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		metrics: metrics,
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
	Retry  bool   `json:"retry,omitempty"`
}

type errorClass struct {
	target error
	status int
	code   string
	retry  bool
}

var errorClasses = []errorClass{
	{target: model.ErrMissingDeliveryEstimate, status: http.StatusUnprocessableEntity, code: "missing_delivery_estimate"},
	{target: model.ErrInvalidTransition, status: http.StatusConflict, code: "invalid_transition"},
	{target: model.ErrAlreadyRecorded, status: http.StatusConflict, code: "already_recorded"},
	{target: model.ErrConcurrentModification, status: http.StatusConflict, code: "concurrent_modification", retry: true},
	{target: model.ErrReportNotAllowed, status: http.StatusConflict, code: "report_not_allowed"},
	{target: repository.ErrDuplicate, status: http.StatusConflict, code: "duplicate"},
	{target: model.ErrNoEligibleBookings, status: http.StatusNotFound, code: "no_eligible_bookings"},
	{target: model.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	{target: model.ErrComputation, status: http.StatusUnprocessableEntity, code: "computation_error"},
	{target: model.ErrValidation, status: http.StatusBadRequest, code: "validation_error"},
}

// writeServiceError отображает ошибку сервиса в HTTP-ответ. Неизвестные ошибки логируются и
// возвращаются как 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			writeJSON(w, c.status, errorResponse{
				Error:  c.target.Error(),
				Code:   c.code,
				Detail: err.Error(),
				Retry:  c.retry,
			})
			return
		}
	}

	if errors.Is(err, context.Canceled) {
		return
	}

	h.logger.Error(op+" error", append(fields, zap.Error(err))...)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "validation_error", msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Healthz сообщает, что процесс обслуживает запросы.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
