package service

import (
	"context"
	"time"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/analytics"
)

// latestReportMonths задаёт глубину отчёта, который обновляется по расписанию.
const latestReportMonths = 12

// RevenueReport строит отчёт о выручке за окно [from, to) по актуальным данным хранилища.
func (s *Service) RevenueReport(ctx context.Context, from, to time.Time, metric analytics.Metric, topN int) (*analytics.Report, error) {
	bookings, err := s.repo.ListBookings(ctx, to)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListClassSessions(ctx, to)
	if err != nil {
		return nil, err
	}
	invoices, err := s.repo.ListInvoices(ctx, to)
	if err != nil {
		return nil, err
	}
	partners, err := s.repo.ListPartners(ctx)
	if err != nil {
		return nil, err
	}

	return analytics.Compute(analytics.Input{
		From:          from,
		To:            to,
		Now:           s.now(),
		Bookings:      bookings,
		ClassSessions: sessions,
		Invoices:      invoices,
		Partners:      partners,
		Metric:        metric,
		TopN:          topN,
	})
}

// RefreshLatestReport пересчитывает отчёт за последние двенадцать месяцев и публикует его
// для LatestReport.
func (s *Service) RefreshLatestReport(ctx context.Context) (*analytics.Report, error) {
	now := s.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := current.AddDate(0, -(latestReportMonths - 1), 0)
	// Текущий месяц входит в отчёт целиком, включая записи, сделанные в момент обновления.
	to := current.AddDate(0, 1, 0)

	report, err := s.RevenueReport(ctx, from, to, analytics.MetricCommission, analytics.DefaultTopN)
	if err != nil {
		return nil, err
	}
	s.latest.Store(report)
	return report, nil
}

// LatestReport возвращает последний опубликованный отчёт или nil, если он ещё не строился.
func (s *Service) LatestReport() *analytics.Report {
	return s.latest.Load()
}
