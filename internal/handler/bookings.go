package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/lifecycle"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/service"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/validation"
)

// validSuppliedID допускает пустой идентификатор, который сервис сгенерирует сам.
func validSuppliedID(id string) bool {
	return id == "" || validation.IsValidID(id)
}

type createPartnerRequest struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Name           string          `json:"name"`
	CommissionRate decimal.Decimal `json:"commissionRate"`
}

// CreatePartner регистрирует тренера или лабораторию.
func (h *Handler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var req createPartnerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if !validSuppliedID(req.ID) {
		badRequest(w, "id must be a UUID")
		return
	}

	p, err := h.service.CreatePartner(r.Context(), service.NewPartner{
		ID:             req.ID,
		Kind:           model.PartnerKind(req.Kind),
		Name:           req.Name,
		CommissionRate: req.CommissionRate,
	})
	if err != nil {
		h.writeServiceError(w, "create partner", err)
		return
	}

	writeJSON(w, http.StatusCreated, newPartnerResponse(p))
}

// GetPartner возвращает партнёра.
func (h *Handler) GetPartner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.service.GetPartner(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get partner", err, zap.String("partner_id", id))
		return
	}

	writeJSON(w, http.StatusOK, newPartnerResponse(p))
}

type commissionRateRequest struct {
	CommissionRate *decimal.Decimal `json:"commissionRate"`
}

// SetCommissionRate меняет текущую ставку комиссии партнёра.
func (h *Handler) SetCommissionRate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commissionRateRequest
	if err := decodeJSON(r, &req); err != nil || req.CommissionRate == nil {
		badRequest(w, "commissionRate is required")
		return
	}

	if err := h.service.SetCommissionRate(r.Context(), id, *req.CommissionRate); err != nil {
		h.writeServiceError(w, "set commission rate", err, zap.String("partner_id", id))
		return
	}

	p, err := h.service.GetPartner(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get partner", err, zap.String("partner_id", id))
		return
	}

	writeJSON(w, http.StatusOK, newPartnerResponse(p))
}

type createBookingRequest struct {
	ID             string            `json:"id"`
	EnthusiastID   string            `json:"enthusiastId"`
	EnthusiastName string            `json:"enthusiastName"`
	PartnerID      string            `json:"partnerId"`
	SelectedTests  []selectedTestDTO `json:"selectedTests"`
}

// CreateBooking создаёт бронирование анализов.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if !validSuppliedID(req.ID) {
		badRequest(w, "id must be a UUID")
		return
	}

	tests := make([]model.SelectedTest, 0, len(req.SelectedTests))
	for _, t := range req.SelectedTests {
		tests = append(tests, model.SelectedTest{TestName: t.TestName, Price: t.Price})
	}

	b, err := h.service.CreateBooking(r.Context(), lifecycle.NewBookingRequest{
		ID:             req.ID,
		EnthusiastID:   req.EnthusiastID,
		EnthusiastName: req.EnthusiastName,
		PartnerID:      req.PartnerID,
		SelectedTests:  tests,
	})
	if err != nil {
		h.writeServiceError(w, "create booking", err, zap.String("partner_id", req.PartnerID))
		return
	}

	writeJSON(w, http.StatusCreated, newBookingResponse(b))
}

// GetBooking возвращает бронирование.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get booking", err, zap.String("booking_id", id))
		return
	}

	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

// ListPartnerBookings возвращает бронирования партнёра; параметр status фильтрует по статусу.
func (h *Handler) ListPartnerBookings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status := model.BookingStatus(r.URL.Query().Get("status"))

	bookings, err := h.service.ListBookingsByPartner(r.Context(), id, status)
	if err != nil {
		h.writeServiceError(w, "list bookings", err, zap.String("partner_id", id))
		return
	}

	if len(bookings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		resp = append(resp, newBookingResponse(&bookings[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type transitionRequest struct {
	Status                     string `json:"status"`
	ExpectedReportDeliveryTime string `json:"expectedReportDeliveryTime"`
}

// TransitionBooking переводит бронирование в новый статус.
func (h *Handler) TransitionBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil || req.Status == "" {
		badRequest(w, "status is required")
		return
	}

	b, err := h.service.Transition(r.Context(), id, model.BookingStatus(req.Status), req.ExpectedReportDeliveryTime)
	if err != nil {
		h.writeServiceError(w, "transition booking", err, zap.String("booking_id", id), zap.String("status", req.Status))
		return
	}

	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

type deliveryEstimateRequest struct {
	ExpectedReportDeliveryTime string `json:"expectedReportDeliveryTime"`
}

// EditDeliveryEstimate меняет срок готовности отчёта.
func (h *Handler) EditDeliveryEstimate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req deliveryEstimateRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	b, err := h.service.EditDeliveryEstimate(r.Context(), id, req.ExpectedReportDeliveryTime)
	if err != nil {
		h.writeServiceError(w, "edit delivery estimate", err, zap.String("booking_id", id))
		return
	}

	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

type reportRequest struct {
	ReportURL string `json:"reportUrl"`
}

// AttachReport сохраняет ссылку на отчёт лаборатории.
func (h *Handler) AttachReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	b, err := h.service.AttachReport(r.Context(), id, req.ReportURL)
	if err != nil {
		h.writeServiceError(w, "attach report", err, zap.String("booking_id", id))
		return
	}

	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

type userPaymentRequest struct {
	Method string `json:"method"`
}

// RecordUserPayment фиксирует оплату энтузиастом лаборатории.
func (h *Handler) RecordUserPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req userPaymentRequest
	if err := decodeJSON(r, &req); err != nil || req.Method == "" {
		badRequest(w, "method is required")
		return
	}

	b, err := h.service.RecordUserPayment(r.Context(), id, model.PaymentMethod(req.Method))
	if err != nil {
		h.writeServiceError(w, "record user payment", err, zap.String("booking_id", id))
		return
	}

	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

type classSessionRequest struct {
	ID           string `json:"id"`
	TrainerID    string `json:"trainerId"`
	EnthusiastID string `json:"enthusiastId"`
	Amount       int64  `json:"amount"`
	BookedAt     string `json:"bookedAt"`
}

// RecordClassSession сохраняет оплаченное занятие у тренера.
func (h *Handler) RecordClassSession(w http.ResponseWriter, r *http.Request) {
	var req classSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if !validSuppliedID(req.ID) {
		badRequest(w, "id must be a UUID")
		return
	}

	var bookedAt time.Time
	if req.BookedAt != "" {
		t, err := time.Parse(time.RFC3339, req.BookedAt)
		if err != nil {
			badRequest(w, "bookedAt must be RFC 3339")
			return
		}
		bookedAt = t
	}

	cs, err := h.service.RecordClassSession(r.Context(), service.NewClassSession{
		ID:           req.ID,
		TrainerID:    req.TrainerID,
		EnthusiastID: req.EnthusiastID,
		Amount:       req.Amount,
		BookedAt:     bookedAt,
	})
	if err != nil {
		h.writeServiceError(w, "record class session", err, zap.String("trainer_id", req.TrainerID))
		return
	}

	writeJSON(w, http.StatusCreated, newClassSessionResponse(cs))
}
