package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/analytics"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

type partnerResponse struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Name           string          `json:"name"`
	CommissionRate decimal.Decimal `json:"commissionRate"`
	CreatedAt      string          `json:"createdAt"`
}

func newPartnerResponse(p *model.Partner) partnerResponse {
	return partnerResponse{
		ID:             p.ID,
		Kind:           string(p.Kind),
		Name:           p.Name,
		CommissionRate: p.CommissionRate,
		CreatedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type selectedTestDTO struct {
	TestName string `json:"testName"`
	Price    int64  `json:"price"`
}

type bookingResponse struct {
	ID                         string            `json:"id"`
	EnthusiastID               string            `json:"enthusiastId"`
	EnthusiastName             string            `json:"enthusiastName"`
	PartnerID                  string            `json:"partnerId"`
	SelectedTests              []selectedTestDTO `json:"selectedTests"`
	TotalAmount                int64             `json:"totalAmount"`
	Status                     string            `json:"status"`
	ExpectedReportDeliveryTime string            `json:"expectedReportDeliveryTime,omitempty"`
	ReportURL                  *string           `json:"reportUrl,omitempty"`
	ReportUploadedAt           *string           `json:"reportUploadedAt,omitempty"`
	UserPaidToLab              bool              `json:"userPaidToLab"`
	UserPaymentDate            *string           `json:"userPaymentDate,omitempty"`
	UserPaymentMethod          string            `json:"userPaymentMethod,omitempty"`
	PaymentReceivedByLab       bool              `json:"paymentReceivedByLab"`
	CommissionAmount           int64             `json:"commissionAmount"`
	CommissionRate             decimal.Decimal   `json:"commissionRate"`
	CommissionStatus           string            `json:"commissionStatus,omitempty"`
	PaymentReceivedDate        *string           `json:"paymentReceivedDate,omitempty"`
	InvoiceID                  *string           `json:"invoiceId,omitempty"`
	Version                    int64             `json:"version"`
	CreatedAt                  string            `json:"createdAt"`
	UpdatedAt                  string            `json:"updatedAt"`
}

func newBookingResponse(b *model.Booking) bookingResponse {
	tests := make([]selectedTestDTO, 0, len(b.SelectedTests))
	for _, t := range b.SelectedTests {
		tests = append(tests, selectedTestDTO{TestName: t.TestName, Price: t.Price})
	}

	return bookingResponse{
		ID:                         b.ID,
		EnthusiastID:               b.EnthusiastID,
		EnthusiastName:             b.EnthusiastName,
		PartnerID:                  b.PartnerID,
		SelectedTests:              tests,
		TotalAmount:                b.TotalAmount,
		Status:                     string(b.Status),
		ExpectedReportDeliveryTime: b.ExpectedReportDeliveryTime,
		ReportURL:                  b.ReportURL,
		ReportUploadedAt:           formatTime(b.ReportUploadedAt),
		UserPaidToLab:              b.UserPaidToLab,
		UserPaymentDate:            formatTime(b.UserPaymentDate),
		UserPaymentMethod:          string(b.UserPaymentMethod),
		PaymentReceivedByLab:       b.PaymentReceivedByLab,
		CommissionAmount:           b.CommissionAmount,
		CommissionRate:             b.CommissionRate,
		CommissionStatus:           string(b.CommissionStatus),
		PaymentReceivedDate:        formatTime(b.PaymentReceivedDate),
		InvoiceID:                  b.InvoiceID,
		Version:                    b.Version,
		CreatedAt:                  b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:                  b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type classSessionResponse struct {
	ID               string          `json:"id"`
	TrainerID        string          `json:"trainerId"`
	EnthusiastID     string          `json:"enthusiastId"`
	Amount           int64           `json:"amount"`
	CommissionRate   decimal.Decimal `json:"commissionRate"`
	CommissionAmount int64           `json:"commissionAmount"`
	BookedAt         string          `json:"bookedAt"`
}

func newClassSessionResponse(cs *model.ClassSession) classSessionResponse {
	return classSessionResponse{
		ID:               cs.ID,
		TrainerID:        cs.TrainerID,
		EnthusiastID:     cs.EnthusiastID,
		Amount:           cs.Amount,
		CommissionRate:   cs.CommissionRate,
		CommissionAmount: cs.CommissionAmount,
		BookedAt:         cs.BookedAt.UTC().Format(time.RFC3339),
	}
}

// billingPeriodDTO задаёт период либо месяцем и годом, либо датами YYYY-MM-DD включительно.
type billingPeriodDTO struct {
	Month     int    `json:"month,omitempty"`
	Year      int    `json:"year,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

func newBillingPeriodDTO(p model.BillingPeriod) billingPeriodDTO {
	if p.IsMonthly() {
		return billingPeriodDTO{Month: p.Month, Year: p.Year}
	}
	var dto billingPeriodDTO
	if p.StartDate != nil {
		dto.StartDate = p.StartDate.Format(time.DateOnly)
	}
	if p.EndDate != nil {
		dto.EndDate = p.EndDate.Format(time.DateOnly)
	}
	return dto
}

func (d billingPeriodDTO) toModel() (model.BillingPeriod, bool) {
	if d.StartDate == "" && d.EndDate == "" {
		return model.BillingPeriod{Month: d.Month, Year: d.Year}, true
	}
	if d.Month != 0 || d.Year != 0 {
		return model.BillingPeriod{}, false
	}
	start, err := time.Parse(time.DateOnly, d.StartDate)
	if err != nil {
		return model.BillingPeriod{}, false
	}
	end, err := time.Parse(time.DateOnly, d.EndDate)
	if err != nil {
		return model.BillingPeriod{}, false
	}
	return model.RangePeriod(start, end), true
}

type commissionEntryResponse struct {
	BookingID        string          `json:"bookingId"`
	EnthusiastName   string          `json:"enthusiastName"`
	BookingDate      string          `json:"bookingDate"`
	TotalAmount      int64           `json:"totalAmount"`
	CommissionRate   decimal.Decimal `json:"commissionRate"`
	CommissionAmount int64           `json:"commissionAmount"`
	TestNames        []string        `json:"testNames"`
}

type invoiceResponse struct {
	ID                  string                    `json:"id"`
	InvoiceNumber       string                    `json:"invoiceNumber"`
	PartnerID           string                    `json:"partnerId"`
	BillingPeriod       billingPeriodDTO          `json:"billingPeriod"`
	CommissionBreakdown []commissionEntryResponse `json:"commissionBreakdown,omitempty"`
	NumberOfBookings    int                       `json:"numberOfBookings"`
	TotalBookingValue   int64                     `json:"totalBookingValue"`
	TotalCommission     int64                     `json:"totalCommission"`
	Status              string                    `json:"status"`
	IssuedAt            string                    `json:"issuedAt"`
	DueDate             string                    `json:"dueDate"`
	PaidAt              *string                   `json:"paidAt,omitempty"`
	PaymentMethod       string                    `json:"paymentMethod,omitempty"`
	PaymentReference    string                    `json:"paymentReference,omitempty"`
}

func newInvoiceResponse(inv *model.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:                inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		PartnerID:         inv.PartnerID,
		BillingPeriod:     newBillingPeriodDTO(inv.BillingPeriod),
		NumberOfBookings:  inv.NumberOfBookings,
		TotalBookingValue: inv.TotalBookingValue,
		TotalCommission:   inv.TotalCommission,
		Status:            string(inv.Status),
		IssuedAt:          inv.IssuedAt.UTC().Format(time.RFC3339),
		DueDate:           inv.DueDate.UTC().Format(time.RFC3339),
		PaidAt:            formatTime(inv.PaidAt),
		PaymentMethod:     inv.PaymentMethod,
		PaymentReference:  inv.PaymentReference,
	}
	for _, e := range inv.CommissionBreakdown {
		resp.CommissionBreakdown = append(resp.CommissionBreakdown, commissionEntryResponse{
			BookingID:        e.BookingID,
			EnthusiastName:   e.EnthusiastName,
			BookingDate:      e.BookingDate.UTC().Format(time.RFC3339),
			TotalAmount:      e.TotalAmount,
			CommissionRate:   e.CommissionRate,
			CommissionAmount: e.CommissionAmount,
			TestNames:        e.TestNames,
		})
	}
	return resp
}

type bucketResponse struct {
	Month             string `json:"month,omitempty"`
	LabBookings       int    `json:"labBookings"`
	LabBookingValue   int64  `json:"labBookingValue"`
	LabCommissions    int    `json:"labCommissions"`
	LabCommission     int64  `json:"labCommission"`
	ClassSessions     int    `json:"classSessions"`
	ClassValue        int64  `json:"classValue"`
	ClassCommission   int64  `json:"classCommission"`
	TotalCommission   int64  `json:"totalCommission"`
	ActiveEnthusiasts int    `json:"activeEnthusiasts"`
}

func newBucketResponse(b analytics.Bucket) bucketResponse {
	return bucketResponse{
		Month:             b.Start.Format("2006-01"),
		LabBookings:       b.LabBookings,
		LabBookingValue:   b.LabBookingValue,
		LabCommissions:    b.LabCommissions,
		LabCommission:     b.LabCommission,
		ClassSessions:     b.ClassSessions,
		ClassValue:        b.ClassValue,
		ClassCommission:   b.ClassCommission,
		TotalCommission:   b.TotalCommission,
		ActiveEnthusiasts: b.ActiveEnthusiasts,
	}
}

type leaderboardRowResponse struct {
	Rank         int    `json:"rank"`
	PartnerID    string `json:"partnerId"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Bookings     int    `json:"bookings"`
	BookingValue int64  `json:"bookingValue"`
	Commission   int64  `json:"commission"`
}

type ratesResponse struct {
	GrowthRate     float64 `json:"growthRate"`
	RetentionRate  float64 `json:"retentionRate"`
	EngagementRate float64 `json:"engagementRate"`
	CollectionRate float64 `json:"collectionRate"`
}

type invoiceSummaryResponse struct {
	Issued      int   `json:"issued"`
	Paid        int   `json:"paid"`
	Overdue     int   `json:"overdue"`
	Billed      int64 `json:"billed"`
	Collected   int64 `json:"collected"`
	Outstanding int64 `json:"outstanding"`
}

type reportResponse struct {
	From        string                   `json:"from"`
	To          string                   `json:"to"`
	Metric      string                   `json:"metric"`
	Buckets     []bucketResponse         `json:"buckets"`
	Totals      bucketResponse           `json:"totals"`
	Leaderboard []leaderboardRowResponse `json:"leaderboard"`
	Invoices    invoiceSummaryResponse   `json:"invoices"`
	Rates       ratesResponse            `json:"rates"`
}

func newReportResponse(r *analytics.Report) reportResponse {
	resp := reportResponse{
		From:        r.From.UTC().Format(time.RFC3339),
		To:          r.To.UTC().Format(time.RFC3339),
		Metric:      string(r.Metric),
		Buckets:     make([]bucketResponse, 0, len(r.Buckets)),
		Totals:      newBucketResponse(r.Totals),
		Leaderboard: make([]leaderboardRowResponse, 0, len(r.Leaderboard)),
		Invoices: invoiceSummaryResponse{
			Issued:      r.Invoices.Issued,
			Paid:        r.Invoices.Paid,
			Overdue:     r.Invoices.Overdue,
			Billed:      r.Invoices.Billed,
			Collected:   r.Invoices.Collected,
			Outstanding: r.Invoices.Outstanding,
		},
		Rates: ratesResponse{
			GrowthRate:     r.Rates.GrowthRate,
			RetentionRate:  r.Rates.RetentionRate,
			EngagementRate: r.Rates.EngagementRate,
			CollectionRate: r.Rates.CollectionRate,
		},
	}
	resp.Totals.Month = ""
	for _, b := range r.Buckets {
		resp.Buckets = append(resp.Buckets, newBucketResponse(b))
	}
	for _, row := range r.Leaderboard {
		resp.Leaderboard = append(resp.Leaderboard, leaderboardRowResponse{
			Rank:         row.Rank,
			PartnerID:    row.PartnerID,
			Name:         row.Name,
			Kind:         string(row.Kind),
			Bookings:     row.Bookings,
			BookingValue: row.BookingValue,
			Commission:   row.Commission,
		})
	}
	return resp
}
