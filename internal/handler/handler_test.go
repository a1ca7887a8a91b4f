package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/analytics"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/invoice"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/lifecycle"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/repository"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/service"
)

type stubService struct {
	partner    *model.Partner
	partnerErr error
	rateErr    error

	booking      *model.Booking
	bookingErr   error
	bookings     []model.Booking
	bookingsErr  error
	classSession *model.ClassSession
	classErr     error

	invoice     *model.Invoice
	invoiceErr  error
	invoices    []model.Invoice
	invoicesErr error

	report    *analytics.Report
	reportErr error
	latest    *analytics.Report

	gotBookingRequest lifecycle.NewBookingRequest
	gotTarget         model.BookingStatus
	gotEstimate       string
	gotPeriod         model.BillingPeriod
	gotFrom, gotTo    time.Time
	gotTopN           int
	gotMetric         analytics.Metric
}

func (s *stubService) CreatePartner(ctx context.Context, req service.NewPartner) (*model.Partner, error) {
	return s.partner, s.partnerErr
}

func (s *stubService) GetPartner(ctx context.Context, id string) (*model.Partner, error) {
	return s.partner, s.partnerErr
}

func (s *stubService) SetCommissionRate(ctx context.Context, partnerID string, rate decimal.Decimal) error {
	return s.rateErr
}

func (s *stubService) CreateBooking(ctx context.Context, req lifecycle.NewBookingRequest) (*model.Booking, error) {
	s.gotBookingRequest = req
	return s.booking, s.bookingErr
}

func (s *stubService) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return s.booking, s.bookingErr
}

func (s *stubService) ListBookingsByPartner(ctx context.Context, partnerID string, status model.BookingStatus) ([]model.Booking, error) {
	return s.bookings, s.bookingsErr
}

func (s *stubService) Transition(ctx context.Context, id string, target model.BookingStatus, estimate string) (*model.Booking, error) {
	s.gotTarget, s.gotEstimate = target, estimate
	return s.booking, s.bookingErr
}

func (s *stubService) EditDeliveryEstimate(ctx context.Context, id, estimate string) (*model.Booking, error) {
	return s.booking, s.bookingErr
}

func (s *stubService) AttachReport(ctx context.Context, id, url string) (*model.Booking, error) {
	return s.booking, s.bookingErr
}

func (s *stubService) RecordUserPayment(ctx context.Context, id string, method model.PaymentMethod) (*model.Booking, error) {
	return s.booking, s.bookingErr
}

func (s *stubService) RecordClassSession(ctx context.Context, req service.NewClassSession) (*model.ClassSession, error) {
	return s.classSession, s.classErr
}

func (s *stubService) GenerateInvoice(ctx context.Context, partnerID string, period model.BillingPeriod) (*model.Invoice, error) {
	s.gotPeriod = period
	return s.invoice, s.invoiceErr
}

func (s *stubService) GetInvoice(ctx context.Context, number string) (*model.Invoice, error) {
	return s.invoice, s.invoiceErr
}

func (s *stubService) ListInvoices(ctx context.Context, partnerID string) ([]model.Invoice, error) {
	return s.invoices, s.invoicesErr
}

func (s *stubService) MarkInvoicePaid(ctx context.Context, number, method, reference string, paidAt time.Time) (*model.Invoice, error) {
	return s.invoice, s.invoiceErr
}

func (s *stubService) RevenueReport(ctx context.Context, from, to time.Time, metric analytics.Metric, topN int) (*analytics.Report, error) {
	s.gotFrom, s.gotTo, s.gotMetric, s.gotTopN = from, to, metric, topN
	return s.report, s.reportErr
}

func (s *stubService) LatestReport() *analytics.Report {
	return s.latest
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})

	return NewHandler(svc, logger, metrics)
}

func serve(t *testing.T, h *Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func sampleBooking() *model.Booking {
	created := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	return &model.Booking{
		ID:             "b-1",
		EnthusiastID:   "user-1",
		EnthusiastName: "Asha",
		PartnerID:      "lab-1",
		SelectedTests: []model.SelectedTest{
			{TestName: "CBC", Price: 500},
			{TestName: "Lipid Panel", Price: 800},
		},
		TotalAmount:    1300,
		Status:         model.BookingStatusPending,
		CommissionRate: decimal.Zero,
		Version:        1,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func sampleInvoice(t *testing.T) *model.Invoice {
	t.Helper()
	issued := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	number, err := invoice.FormatNumber(issued, 1)
	require.NoError(t, err)
	return &model.Invoice{
		ID:                "inv-1",
		InvoiceNumber:     number,
		PartnerID:         "lab-1",
		BillingPeriod:     model.MonthlyPeriod(2025, time.December),
		NumberOfBookings:  1,
		TotalBookingValue: 1300,
		TotalCommission:   130,
		Status:            model.InvoiceStatusPaymentDue,
		IssuedAt:          issued,
		DueDate:           issued.Add(invoice.DefaultGracePeriod),
	}
}

func TestCreateBooking_Created(t *testing.T) {
	svc := &stubService{booking: sampleBooking()}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodPost, "/api/bookings", createBookingRequest{
		EnthusiastID:  "user-1",
		PartnerID:     "lab-1",
		SelectedTests: []selectedTestDTO{{TestName: "CBC", Price: 500}, {TestName: "Lipid Panel", Price: 800}},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp bookingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(1300), resp.TotalAmount)
	assert.Equal(t, "pending", resp.Status)
	require.Len(t, svc.gotBookingRequest.SelectedTests, 2)
	assert.Equal(t, int64(800), svc.gotBookingRequest.SelectedTests[1].Price)
}

func TestCreateBooking_BadBody(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Code)
}

func TestTransitionBooking_MissingEstimate(t *testing.T) {
	svc := &stubService{bookingErr: fmt.Errorf("%w: booking b-1", model.ErrMissingDeliveryEstimate)}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodPost, "/api/bookings/b-1/transition", transitionRequest{Status: "confirmed"})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "set a delivery estimate before confirming", resp.Error)
	assert.Equal(t, "missing_delivery_estimate", resp.Code)
	assert.Equal(t, model.BookingStatusConfirmed, svc.gotTarget)
}

func TestTransitionBooking_PassesEstimate(t *testing.T) {
	b := sampleBooking()
	b.Status = model.BookingStatusConfirmed
	b.ExpectedReportDeliveryTime = "2 days"
	svc := &stubService{booking: b}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodPost, "/api/bookings/b-1/transition", transitionRequest{
		Status:                     "confirmed",
		ExpectedReportDeliveryTime: "2 days",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2 days", svc.gotEstimate)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		retry  bool
	}{
		{name: "invalid transition", err: model.ErrInvalidTransition, status: http.StatusConflict, code: "invalid_transition"},
		{name: "already recorded", err: model.ErrAlreadyRecorded, status: http.StatusConflict, code: "already_recorded"},
		{name: "concurrent modification", err: model.ErrConcurrentModification, status: http.StatusConflict, code: "concurrent_modification", retry: true},
		{name: "report not allowed", err: model.ErrReportNotAllowed, status: http.StatusConflict, code: "report_not_allowed"},
		{name: "duplicate", err: repository.ErrDuplicate, status: http.StatusConflict, code: "duplicate"},
		{name: "no eligible bookings", err: model.ErrNoEligibleBookings, status: http.StatusNotFound, code: "no_eligible_bookings"},
		{name: "not found", err: model.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
		{name: "computation", err: model.ErrComputation, status: http.StatusUnprocessableEntity, code: "computation_error"},
		{name: "validation", err: model.ErrValidation, status: http.StatusBadRequest, code: "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{bookingErr: fmt.Errorf("%w: booking b-1", tt.err)}
			h := newTestHandler(t, svc)

			rec := serve(t, h, http.MethodPost, "/api/bookings/b-1/user-payment", userPaymentRequest{Method: "cash"})

			require.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.err.Error(), resp.Error)
			assert.Equal(t, tt.retry, resp.Retry)
		})
	}
}

func TestServiceError_Internal(t *testing.T) {
	svc := &stubService{bookingErr: errors.New("database is on fire")}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodGet, "/api/bookings/b-1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecordUserPayment_MethodRequired(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := serve(t, h, http.MethodPost, "/api/bookings/b-1/user-payment", userPaymentRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPartnerBookings_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{bookings: []model.Booking{}})

	rec := serve(t, h, http.MethodGet, "/api/partners/lab-1/bookings?status=pending", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListPartnerBookings_OK(t *testing.T) {
	h := newTestHandler(t, &stubService{bookings: []model.Booking{*sampleBooking()}})

	rec := serve(t, h, http.MethodGet, "/api/partners/lab-1/bookings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []bookingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "b-1", resp[0].ID)
}

func TestCreatePartner_Created(t *testing.T) {
	svc := &stubService{partner: &model.Partner{
		ID:             "lab-1",
		Kind:           model.PartnerKindLab,
		Name:           "City Diagnostics",
		CommissionRate: decimal.RequireFromString("12.5"),
	}}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodPost, "/api/partners", map[string]any{
		"id": "5f0c6d1e-8f3a-4c2b-9a43-6d7a1b2c3d4e", "kind": "lab", "name": "City Diagnostics", "commissionRate": 12.5,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp partnerResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.CommissionRate.Equal(decimal.RequireFromString("12.5")))
}

func TestCreateHandlers_RejectNonUUIDID(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   map[string]any
	}{
		{name: "partner", target: "/api/partners", body: map[string]any{"id": "lab-1", "kind": "lab", "name": "City Diagnostics", "commissionRate": 10}},
		{name: "booking", target: "/api/bookings", body: map[string]any{"id": "b-1", "enthusiastId": "user-1", "partnerId": "lab-1"}},
		{name: "class session", target: "/api/class-sessions", body: map[string]any{"id": "c-1", "trainerId": "trainer-1", "enthusiastId": "user-1", "amount": 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{})
			rec := serve(t, h, http.MethodPost, tt.target, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "id must be a UUID", decodeError(t, rec).Error)
		})
	}
}

func TestSetCommissionRate_Required(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := serve(t, h, http.MethodPut, "/api/partners/lab-1/commission-rate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateInvoice(t *testing.T) {
	t.Run("monthly", func(t *testing.T) {
		svc := &stubService{invoice: sampleInvoice(t)}
		h := newTestHandler(t, svc)

		rec := serve(t, h, http.MethodPost, "/api/partners/lab-1/invoices", generateInvoiceRequest{
			BillingPeriod: &billingPeriodDTO{Month: 12, Year: 2025},
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, model.MonthlyPeriod(2025, time.December), svc.gotPeriod)

		var resp invoiceResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, int64(130), resp.TotalCommission)
		assert.Equal(t, "payment_due", resp.Status)
	})

	t.Run("date range", func(t *testing.T) {
		svc := &stubService{invoice: sampleInvoice(t)}
		h := newTestHandler(t, svc)

		rec := serve(t, h, http.MethodPost, "/api/partners/lab-1/invoices", generateInvoiceRequest{
			BillingPeriod: &billingPeriodDTO{StartDate: "2025-12-01", EndDate: "2025-12-15"},
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		require.False(t, svc.gotPeriod.IsMonthly())
		assert.Equal(t, "2025-12-01..2025-12-15", svc.gotPeriod.String())
	})

	t.Run("mixed period", func(t *testing.T) {
		h := newTestHandler(t, &stubService{})

		rec := serve(t, h, http.MethodPost, "/api/partners/lab-1/invoices", generateInvoiceRequest{
			BillingPeriod: &billingPeriodDTO{Month: 12, Year: 2025, StartDate: "2025-12-01", EndDate: "2025-12-15"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no eligible bookings", func(t *testing.T) {
		h := newTestHandler(t, &stubService{invoiceErr: model.ErrNoEligibleBookings})

		rec := serve(t, h, http.MethodPost, "/api/partners/lab-1/invoices", generateInvoiceRequest{
			BillingPeriod: &billingPeriodDTO{Month: 12, Year: 2025},
		})
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "no_eligible_bookings", decodeError(t, rec).Code)
	})
}

func TestGetInvoice(t *testing.T) {
	inv := sampleInvoice(t)

	t.Run("ok", func(t *testing.T) {
		h := newTestHandler(t, &stubService{invoice: inv})

		rec := serve(t, h, http.MethodGet, "/api/invoices/"+inv.InvoiceNumber, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp invoiceResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, inv.InvoiceNumber, resp.InvoiceNumber)
		assert.Equal(t, 12, resp.BillingPeriod.Month)
	})

	t.Run("bad check digit", func(t *testing.T) {
		h := newTestHandler(t, &stubService{invoice: inv})

		bad := []byte(inv.InvoiceNumber)
		bad[len(bad)-1] = '0' + (bad[len(bad)-1]-'0'+1)%10
		rec := serve(t, h, http.MethodGet, "/api/invoices/"+string(bad), nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestMarkInvoicePaid_AlreadyPaid(t *testing.T) {
	inv := sampleInvoice(t)
	h := newTestHandler(t, &stubService{invoiceErr: model.ErrAlreadyRecorded})

	rec := serve(t, h, http.MethodPost, "/api/invoices/"+inv.InvoiceNumber+"/payment", invoicePaymentRequest{Method: "bank_transfer"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_recorded", decodeError(t, rec).Code)
}

func TestMarkInvoicePaid_BadPaidAt(t *testing.T) {
	inv := sampleInvoice(t)
	h := newTestHandler(t, &stubService{invoice: inv})

	rec := serve(t, h, http.MethodPost, "/api/invoices/"+inv.InvoiceNumber+"/payment", invoicePaymentRequest{Method: "upi", PaidAt: "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevenueReport(t *testing.T) {
	report := &analytics.Report{
		From:    time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Metric:  analytics.MetricBookings,
		Buckets: []analytics.Bucket{{Start: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)}, {Start: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), LabBookings: 2}},
		Rates:   analytics.Rates{GrowthRate: 100},
	}
	svc := &stubService{report: report}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodGet, "/api/analytics/revenue?from=2025-11-01&to=2025-12-31&metric=bookings&top=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC), svc.gotFrom)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), svc.gotTo)
	assert.Equal(t, analytics.MetricBookings, svc.gotMetric)
	assert.Equal(t, 3, svc.gotTopN)

	var resp reportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Buckets, 2)
	assert.Equal(t, "2025-12", resp.Buckets[1].Month)
	assert.Equal(t, 100.0, resp.Rates.GrowthRate)
}

func TestRevenueReport_BadQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "missing from", query: "to=2025-12-31"},
		{name: "bad to", query: "from=2025-11-01&to=31.12.2025"},
		{name: "bad top", query: "from=2025-11-01&to=2025-12-31&top=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{})
			rec := serve(t, h, http.MethodGet, "/api/analytics/revenue?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLatestReport(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	rec := serve(t, h, http.MethodGet, "/api/analytics/latest", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	h = newTestHandler(t, &stubService{latest: &analytics.Report{Metric: analytics.MetricCommission}})
	rec = serve(t, h, http.MethodGet, "/api/analytics/latest", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ServiceEndpoints(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := serve(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, http.MethodDelete, "/api/bookings/b-1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
