package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/validation"
)

type generateInvoiceRequest struct {
	BillingPeriod *billingPeriodDTO `json:"billingPeriod"`
}

// GenerateInvoice выставляет партнёру счёт за расчётный период.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "id")

	var req generateInvoiceRequest
	if err := decodeJSON(r, &req); err != nil || req.BillingPeriod == nil {
		badRequest(w, "billingPeriod is required")
		return
	}

	period, ok := req.BillingPeriod.toModel()
	if !ok {
		badRequest(w, "billingPeriod must be either month and year or startDate and endDate (YYYY-MM-DD)")
		return
	}

	inv, err := h.service.GenerateInvoice(r.Context(), partnerID, period)
	if err != nil {
		h.writeServiceError(w, "generate invoice", err, zap.String("partner_id", partnerID), zap.String("period", period.String()))
		return
	}

	writeJSON(w, http.StatusCreated, newInvoiceResponse(inv))
}

// ListPartnerInvoices возвращает счета партнёра.
func (h *Handler) ListPartnerInvoices(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "id")

	invoices, err := h.service.ListInvoices(r.Context(), partnerID)
	if err != nil {
		h.writeServiceError(w, "list invoices", err, zap.String("partner_id", partnerID))
		return
	}

	if len(invoices) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]invoiceResponse, 0, len(invoices))
	for i := range invoices {
		resp = append(resp, newInvoiceResponse(&invoices[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetInvoice возвращает счёт с расшифровкой комиссий.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if !validation.IsValidInvoiceNumber(number) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_invoice_number", "invalid invoice number")
		return
	}

	inv, err := h.service.GetInvoice(r.Context(), number)
	if err != nil {
		h.writeServiceError(w, "get invoice", err, zap.String("invoice", number))
		return
	}

	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
}

type invoicePaymentRequest struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
	PaidAt    string `json:"paidAt"`
}

// MarkInvoicePaid фиксирует оплату счёта партнёром.
func (h *Handler) MarkInvoicePaid(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if !validation.IsValidInvoiceNumber(number) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_invoice_number", "invalid invoice number")
		return
	}

	var req invoicePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	var paidAt time.Time
	if req.PaidAt != "" {
		t, err := time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			badRequest(w, "paidAt must be RFC 3339")
			return
		}
		paidAt = t
	}

	inv, err := h.service.MarkInvoicePaid(r.Context(), number, req.Method, req.Reference, paidAt)
	if err != nil {
		h.writeServiceError(w, "mark invoice paid", err, zap.String("invoice", number))
		return
	}

	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
}
