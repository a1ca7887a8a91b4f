package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/patelatwork/REVIBEFIT-sub001/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)

		r.Route("/partners", func(r chi.Router) {
			r.Post("/", h.CreatePartner)
			r.Get("/{id}", h.GetPartner)
			r.Put("/{id}/commission-rate", h.SetCommissionRate)
			r.Get("/{id}/bookings", h.ListPartnerBookings)
			r.Post("/{id}/invoices", h.GenerateInvoice)
			r.Get("/{id}/invoices", h.ListPartnerInvoices)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/transition", h.TransitionBooking)
			r.Put("/{id}/delivery-estimate", h.EditDeliveryEstimate)
			r.Put("/{id}/report", h.AttachReport)
			r.Post("/{id}/user-payment", h.RecordUserPayment)
		})

		r.Post("/class-sessions", h.RecordClassSession)

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/{number}", h.GetInvoice)
			r.Post("/{number}/payment", h.MarkInvoicePaid)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/revenue", h.RevenueReport)
			r.Get("/latest", h.LatestReport)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
