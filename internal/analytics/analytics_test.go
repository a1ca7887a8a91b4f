package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

func date(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 10, 0, 0, 0, time.UTC)
}

func labBooking(id, partnerID, enthusiastID string, created time.Time, total int64, paid *time.Time, commissionAmount int64) model.Booking {
	b := model.Booking{
		ID:           id,
		PartnerID:    partnerID,
		EnthusiastID: enthusiastID,
		TotalAmount:  total,
		Status:       model.BookingStatusConfirmed,
		CreatedAt:    created,
	}
	if paid != nil {
		b.UserPaidToLab = true
		b.UserPaymentDate = paid
		b.CommissionAmount = commissionAmount
		b.CommissionStatus = model.CommissionStatusUnbilled
	}
	return b
}

func ptr(t time.Time) *time.Time {
	return &t
}

func fixture() Input {
	cancelled := labBooking("b-3", "lab-2", "e2", date(time.March, 7), 300, nil, 0)
	cancelled.Status = model.BookingStatusCancelled

	return Input{
		From: date(time.March, 1),
		To:   time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
		Now:  date(time.May, 10),
		Partners: []model.Partner{
			{ID: "lab-1", Kind: model.PartnerKindLab, Name: "Lab One", CreatedAt: date(time.January, 1)},
			{ID: "lab-2", Kind: model.PartnerKindLab, Name: "Lab Two", CreatedAt: date(time.January, 1)},
			{ID: "trainer-1", Kind: model.PartnerKindTrainer, Name: "Coach", CreatedAt: date(time.January, 2)},
			{ID: "lab-3", Kind: model.PartnerKindLab, Name: "Lab Three", CreatedAt: date(time.January, 3)},
			{ID: "lab-4", Kind: model.PartnerKindLab, Name: "Lab Four", CreatedAt: time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)},
		},
		Bookings: []model.Booking{
			labBooking("b-1", "lab-1", "e1", date(time.February, 10), 100, ptr(date(time.February, 11)), 10),
			labBooking("b-2", "lab-1", "e1", date(time.March, 5), 200, ptr(date(time.March, 6)), 20),
			cancelled,
			labBooking("b-4", "lab-1", "e1", date(time.April, 3), 1300, ptr(date(time.April, 4)), 130),
			labBooking("b-5", "lab-2", "e2", date(time.April, 9), 1000, ptr(date(time.April, 10)), 125),
		},
		ClassSessions: []model.ClassSession{
			{ID: "c-1", TrainerID: "trainer-1", EnthusiastID: "e3", Amount: 500, CommissionAmount: 50, BookedAt: date(time.March, 20)},
			{ID: "c-2", TrainerID: "trainer-1", EnthusiastID: "e5", Amount: 400, CommissionAmount: 40, BookedAt: date(time.April, 22)},
			{ID: "c-3", TrainerID: "trainer-1", EnthusiastID: "e4", Amount: 100, CommissionAmount: 10, BookedAt: date(time.April, 25)},
		},
		Invoices: []model.Invoice{
			{InvoiceNumber: "1", Status: model.InvoiceStatusPaid, IssuedAt: date(time.April, 1), DueDate: date(time.April, 16), TotalCommission: 10},
			{InvoiceNumber: "2", Status: model.InvoiceStatusPaymentDue, IssuedAt: date(time.April, 2), DueDate: date(time.April, 17), TotalCommission: 20},
			{InvoiceNumber: "3", Status: model.InvoiceStatusPaymentDue, IssuedAt: date(time.February, 2), DueDate: date(time.February, 17), TotalCommission: 99},
		},
	}
}

func TestCompute_Series(t *testing.T) {
	report, err := Compute(fixture())
	require.NoError(t, err)

	require.Len(t, report.Buckets, 2)

	mar, apr := report.Buckets[0], report.Buckets[1]
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), mar.Start)
	assert.Equal(t, 1, mar.LabBookings)
	assert.Equal(t, int64(200), mar.LabBookingValue)
	assert.Equal(t, int64(20), mar.LabCommission)
	assert.Equal(t, 1, mar.ClassSessions)
	assert.Equal(t, int64(50), mar.ClassCommission)
	assert.Equal(t, int64(70), mar.TotalCommission)
	assert.Equal(t, 2, mar.ActiveEnthusiasts)

	assert.Equal(t, 2, apr.LabBookings)
	assert.Equal(t, int64(2300), apr.LabBookingValue)
	assert.Equal(t, 2, apr.LabCommissions)
	assert.Equal(t, int64(255), apr.LabCommission)
	assert.Equal(t, 2, apr.ClassSessions)
	assert.Equal(t, int64(500), apr.ClassValue)
	assert.Equal(t, int64(305), apr.TotalCommission)

	assert.Equal(t, 3, report.Totals.LabBookings)
	assert.Equal(t, int64(375), report.Totals.TotalCommission)
	assert.Equal(t, 5, report.Totals.ActiveEnthusiasts)
}

func TestCompute_Rates(t *testing.T) {
	report, err := Compute(fixture())
	require.NoError(t, err)

	assert.Equal(t, 100.0, report.Rates.GrowthRate)
	assert.Equal(t, 50.0, report.Rates.RetentionRate)
	assert.Equal(t, 80.0, report.Rates.EngagementRate)
	assert.Equal(t, 50.0, report.Rates.CollectionRate)

	assert.Equal(t, 2, report.Invoices.Issued)
	assert.Equal(t, 1, report.Invoices.Overdue)
	assert.Equal(t, int64(10), report.Invoices.Collected)
	assert.Equal(t, int64(20), report.Invoices.Outstanding)
}

func TestCompute_EngagementIgnoresEnthusiastsOutsideWindow(t *testing.T) {
	old := labBooking("b-old", "lab-1", "e9", time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC), 100, nil, 0)
	report, err := Compute(Input{
		From:     date(time.April, 1),
		To:       time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
		Partners: []model.Partner{{ID: "lab-1", CreatedAt: date(time.January, 1)}},
		Bookings: []model.Booking{
			old,
			labBooking("b-1", "lab-1", "e1", date(time.April, 3), 1300, nil, 0),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Totals.ActiveEnthusiasts)
	assert.Equal(t, 100.0, report.Rates.EngagementRate)
}

func TestCompute_Leaderboard(t *testing.T) {
	in := fixture()
	report, err := Compute(in)
	require.NoError(t, err)

	ids := func(rows []LeaderboardRow) []string {
		res := make([]string, 0, len(rows))
		for _, r := range rows {
			res = append(res, r.PartnerID)
		}
		return res
	}

	assert.Equal(t, []string{"lab-1", "lab-2", "trainer-1", "lab-4", "lab-3"}, ids(report.Leaderboard))
	assert.Equal(t, int64(150), report.Leaderboard[0].Commission)
	assert.Equal(t, 1, report.Leaderboard[0].Rank)
	assert.Equal(t, 0, report.Leaderboard[4].Bookings)

	in.Metric = MetricBookings
	in.TopN = 3
	report, err = Compute(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"trainer-1", "lab-1", "lab-2"}, ids(report.Leaderboard))
}

func TestCompute_EmptyCorpus(t *testing.T) {
	report, err := Compute(Input{
		From:     date(time.March, 1),
		To:       date(time.April, 1),
		Partners: []model.Partner{{ID: "lab-1", CreatedAt: date(time.January, 1)}},
	})
	require.NoError(t, err)

	require.Len(t, report.Leaderboard, 1)
	assert.Equal(t, int64(0), report.Leaderboard[0].Commission)
	assert.Equal(t, 0.0, report.Rates.GrowthRate)
	assert.Equal(t, 0.0, report.Rates.RetentionRate)
	assert.Equal(t, 0.0, report.Rates.EngagementRate)
	assert.Equal(t, 0.0, report.Rates.CollectionRate)
}

func TestCompute_InvalidInput(t *testing.T) {
	in := fixture()
	in.Bookings[0].TotalAmount = -1
	_, err := Compute(in)
	assert.True(t, errors.Is(err, model.ErrComputation), "got %v", err)

	in = fixture()
	in.To = in.From
	_, err = Compute(in)
	assert.True(t, errors.Is(err, model.ErrValidation), "got %v", err)

	in = fixture()
	in.Metric = "revenue"
	_, err = Compute(in)
	assert.True(t, errors.Is(err, model.ErrValidation), "got %v", err)
}

func TestGrowthRate(t *testing.T) {
	assert.Equal(t, 0.0, GrowthRate(5, 0))
	assert.Equal(t, 0.0, GrowthRate(0, 0))
	assert.Equal(t, -50.0, GrowthRate(5, 10))
	assert.Equal(t, 33.33, Percent(1, 3))
}
