// Package analytics строит отчёты о выручке платформы: помесячные ряды по лабораторным
// бронированиям и занятиям у тренеров, рейтинг партнёров и производные показатели.
//
// Compute является чистой функцией: весь корпус данных и текущее время передаются явно.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

// Metric задаёт показатель ранжирования партнёров.
type Metric string

const (
	MetricCommission Metric = "commission"
	MetricBookings   Metric = "bookings"
)

// DefaultTopN задаёт размер рейтинга по умолчанию.
const DefaultTopN = 10

var hundred = decimal.NewFromInt(100)

// Input содержит данные для расчёта отчёта за окно [From, To). From округляется вниз до начала
// месяца.
type Input struct {
	From time.Time
	To   time.Time
	Now  time.Time

	Bookings      []model.Booking
	ClassSessions []model.ClassSession
	Invoices      []model.Invoice
	Partners      []model.Partner

	Metric Metric
	TopN   int
}

// Bucket содержит агрегаты за один календарный месяц.
type Bucket struct {
	Start time.Time

	LabBookings     int
	LabBookingValue int64
	LabCommissions  int
	LabCommission   int64

	ClassSessions   int
	ClassValue      int64
	ClassCommission int64

	TotalCommission   int64
	ActiveEnthusiasts int
}

// LeaderboardRow описывает строку рейтинга партнёров.
type LeaderboardRow struct {
	Rank         int
	PartnerID    string
	Name         string
	Kind         model.PartnerKind
	Bookings     int
	BookingValue int64
	Commission   int64
}

// Rates содержит производные показатели в процентах с точностью до сотых.
type Rates struct {
	GrowthRate     float64
	RetentionRate  float64
	EngagementRate float64
	CollectionRate float64
}

// InvoiceSummary содержит агрегаты по счетам, выставленным в окне.
type InvoiceSummary struct {
	Issued      int
	Paid        int
	Overdue     int
	Billed      int64
	Collected   int64
	Outstanding int64
}

// Report содержит результат расчёта аналитики.
type Report struct {
	From        time.Time
	To          time.Time
	Metric      Metric
	Buckets     []Bucket
	Totals      Bucket
	Leaderboard []LeaderboardRow
	Invoices    InvoiceSummary
	Rates       Rates
}

// Compute рассчитывает отчёт. Партнёр без бронирований в окне даёт нулевую строку рейтинга.
// Отрицательные суммы во входных данных приводят к ErrComputation.
func Compute(in Input) (*Report, error) {
	if !in.To.After(in.From) {
		return nil, fmt.Errorf("%w: analytics window %s..%s is empty", model.ErrValidation, in.From.Format(time.RFC3339), in.To.Format(time.RFC3339))
	}
	if in.Metric == "" {
		in.Metric = MetricCommission
	}
	if in.Metric != MetricCommission && in.Metric != MetricBookings {
		return nil, fmt.Errorf("%w: unknown leaderboard metric %q", model.ErrValidation, in.Metric)
	}
	if in.TopN <= 0 {
		in.TopN = DefaultTopN
	}
	if err := checkInput(in); err != nil {
		return nil, err
	}

	// Окно расширяется до начала месяца, чтобы ряды состояли из целых календарных месяцев.
	from, to := monthStart(in.From), in.To.UTC()

	// Первым месяцем ряда идёт предыдущий к окну: он нужен для темпа роста и удержания.
	starts := monthStarts(monthStart(from).AddDate(0, -1, 0), to)
	series := make([]Bucket, len(starts))
	active := make([]map[string]struct{}, len(starts))
	for i, s := range starts {
		series[i].Start = s
		active[i] = make(map[string]struct{})
	}
	index := func(t time.Time) int {
		t = t.UTC()
		if t.Before(starts[0]) || !t.Before(to) {
			return -1
		}
		ms := monthStart(t)
		return (ms.Year()-starts[0].Year())*12 + int(ms.Month()) - int(starts[0].Month())
	}

	for _, b := range in.Bookings {
		if b.Status != model.BookingStatusCancelled {
			if i := index(b.CreatedAt); i >= 0 {
				series[i].LabBookings++
				series[i].LabBookingValue += b.TotalAmount
				active[i][b.EnthusiastID] = struct{}{}
			}
		}
		if hasCommission(b) {
			if i := index(*b.UserPaymentDate); i >= 0 {
				series[i].LabCommissions++
				series[i].LabCommission += b.CommissionAmount
			}
		}
	}
	for _, cs := range in.ClassSessions {
		if i := index(cs.BookedAt); i >= 0 {
			series[i].ClassSessions++
			series[i].ClassValue += cs.Amount
			series[i].ClassCommission += cs.CommissionAmount
			active[i][cs.EnthusiastID] = struct{}{}
		}
	}
	for i := range series {
		series[i].TotalCommission = series[i].LabCommission + series[i].ClassCommission
		series[i].ActiveEnthusiasts = len(active[i])
	}

	visible := series[1:]
	report := &Report{
		From:    from,
		To:      to,
		Metric:  in.Metric,
		Buckets: append([]Bucket(nil), visible...),
	}
	report.Totals = sumBuckets(visible)
	window := make(map[string]struct{})
	for _, set := range active[1:] {
		for id := range set {
			window[id] = struct{}{}
		}
	}
	report.Totals.ActiveEnthusiasts = len(window)
	report.Leaderboard = leaderboard(in, from, to)
	report.Invoices = summarizeInvoices(in.Invoices, from, to, in.Now)

	last := len(series) - 1
	cur, prev := series[last], series[last-1]
	report.Rates = Rates{
		GrowthRate:     GrowthRate(int64(cur.LabBookings+cur.ClassSessions), int64(prev.LabBookings+prev.ClassSessions)),
		RetentionRate:  Percent(int64(overlap(active[last], active[last-1])), int64(len(active[last-1]))),
		EngagementRate: Percent(int64(len(active[last])), int64(len(window))),
		CollectionRate: Percent(int64(report.Invoices.Paid), int64(report.Invoices.Issued)),
	}

	return report, nil
}

// GrowthRate возвращает (current-previous)/previous в процентах. При нулевом знаменателе возвращает 0.
func GrowthRate(current, previous int64) float64 {
	return Percent(current-previous, previous)
}

// Percent возвращает num/den в процентах, округлённых до сотых. При нулевом знаменателе возвращает 0.
func Percent(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(num).Mul(hundred).Div(decimal.NewFromInt(den)).Round(2).InexactFloat64()
}

func checkInput(in Input) error {
	for _, b := range in.Bookings {
		if b.TotalAmount < 0 || b.CommissionAmount < 0 {
			return fmt.Errorf("%w: booking %s has negative amounts", model.ErrComputation, b.ID)
		}
	}
	for _, cs := range in.ClassSessions {
		if cs.Amount < 0 || cs.CommissionAmount < 0 {
			return fmt.Errorf("%w: class session %s has negative amounts", model.ErrComputation, cs.ID)
		}
	}
	for _, inv := range in.Invoices {
		if inv.TotalCommission < 0 || inv.TotalBookingValue < 0 {
			return fmt.Errorf("%w: invoice %s has negative totals", model.ErrComputation, inv.InvoiceNumber)
		}
	}
	return nil
}

func hasCommission(b model.Booking) bool {
	return b.CommissionStatus != model.CommissionStatusNone && b.UserPaymentDate != nil
}

func leaderboard(in Input, from, to time.Time) []LeaderboardRow {
	within := func(t time.Time) bool {
		return !t.Before(from) && t.Before(to)
	}

	rows := make(map[string]*LeaderboardRow, len(in.Partners))
	for _, p := range in.Partners {
		rows[p.ID] = &LeaderboardRow{PartnerID: p.ID, Name: p.Name, Kind: p.Kind}
	}

	for _, b := range in.Bookings {
		row, ok := rows[b.PartnerID]
		if !ok {
			continue
		}
		if b.Status != model.BookingStatusCancelled && within(b.CreatedAt) {
			row.Bookings++
			row.BookingValue += b.TotalAmount
		}
		if hasCommission(b) && within(*b.UserPaymentDate) {
			row.Commission += b.CommissionAmount
		}
	}
	for _, cs := range in.ClassSessions {
		row, ok := rows[cs.TrainerID]
		if !ok || !within(cs.BookedAt) {
			continue
		}
		row.Bookings++
		row.BookingValue += cs.Amount
		row.Commission += cs.CommissionAmount
	}

	partners := append([]model.Partner(nil), in.Partners...)
	metric := func(r *LeaderboardRow) int64 {
		if in.Metric == MetricBookings {
			return int64(r.Bookings)
		}
		return r.Commission
	}
	sort.SliceStable(partners, func(i, j int) bool {
		a, b := rows[partners[i].ID], rows[partners[j].ID]
		if ma, mb := metric(a), metric(b); ma != mb {
			return ma > mb
		}
		if !partners[i].CreatedAt.Equal(partners[j].CreatedAt) {
			return partners[i].CreatedAt.Before(partners[j].CreatedAt)
		}
		return partners[i].ID < partners[j].ID
	})

	n := min(in.TopN, len(partners))
	res := make([]LeaderboardRow, 0, n)
	for i := 0; i < n; i++ {
		row := *rows[partners[i].ID]
		row.Rank = i + 1
		res = append(res, row)
	}
	return res
}

func summarizeInvoices(invoices []model.Invoice, from, to, now time.Time) InvoiceSummary {
	var s InvoiceSummary
	for _, inv := range invoices {
		if inv.IssuedAt.Before(from) || !inv.IssuedAt.Before(to) {
			continue
		}
		s.Issued++
		s.Billed += inv.TotalCommission
		switch inv.StatusAt(now) {
		case model.InvoiceStatusPaid:
			s.Paid++
			s.Collected += inv.TotalCommission
		case model.InvoiceStatusOverdue:
			s.Overdue++
			s.Outstanding += inv.TotalCommission
		default:
			s.Outstanding += inv.TotalCommission
		}
	}
	return s
}

func sumBuckets(buckets []Bucket) Bucket {
	var t Bucket
	if len(buckets) > 0 {
		t.Start = buckets[0].Start
	}
	for _, b := range buckets {
		t.LabBookings += b.LabBookings
		t.LabBookingValue += b.LabBookingValue
		t.LabCommissions += b.LabCommissions
		t.LabCommission += b.LabCommission
		t.ClassSessions += b.ClassSessions
		t.ClassValue += b.ClassValue
		t.ClassCommission += b.ClassCommission
		t.TotalCommission += b.TotalCommission
	}
	return t
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func monthStarts(from, to time.Time) []time.Time {
	var res []time.Time
	for m := monthStart(from); m.Before(to); m = m.AddDate(0, 1, 0) {
		res = append(res, m)
	}
	return res
}
