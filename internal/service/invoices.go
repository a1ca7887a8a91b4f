package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/invoice"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

// GenerateInvoice формирует счёт партнёру за период из всех неоплаченных комиссий. Счёт и пометка
// бронирований как billed применяются атомарно.
func (s *Service) GenerateInvoice(ctx context.Context, partnerID string, period model.BillingPeriod) (*model.Invoice, error) {
	if _, _, err := period.Window(); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPartner(ctx, partnerID); err != nil {
		return nil, err
	}

	inv, err := s.repo.FoldInvoice(ctx, partnerID, period, func(seq int64, eligible []model.Booking) (*model.Invoice, error) {
		issuedAt := s.now()
		number, err := invoice.FormatNumber(issuedAt, seq)
		if err != nil {
			return nil, err
		}
		return invoice.Build(invoice.Params{
			ID:          s.newID(),
			Number:      number,
			PartnerID:   partnerID,
			Period:      period,
			IssuedAt:    issuedAt,
			GracePeriod: s.gracePeriod,
		}, eligible)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, model.Event{
		Type:       model.EventInvoiceGenerated,
		InvoiceID:  inv.InvoiceNumber,
		PartnerID:  inv.PartnerID,
		Status:     string(inv.Status),
		Amount:     inv.TotalCommission,
		OccurredAt: inv.IssuedAt,
	})
	return inv, nil
}

// GenerateDueInvoices формирует счета за период всем партнёрам с неоплаченными комиссиями.
// Отсутствие подходящих бронирований у партнёра ошибкой не считается; любая другая ошибка
// прерывает запуск.
func (s *Service) GenerateDueInvoices(ctx context.Context, period model.BillingPeriod) ([]*model.Invoice, error) {
	from, to, err := period.Window()
	if err != nil {
		return nil, err
	}

	partners, err := s.repo.PartnersWithUnbilled(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list partners with unbilled commission: %w", err)
	}

	var (
		mu  sync.Mutex
		res []*model.Invoice
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.invoiceWorkers)

	for _, partnerID := range partners {
		partnerID := partnerID
		g.Go(func() error {
			inv, err := s.GenerateInvoice(gctx, partnerID, period)
			if errors.Is(err, model.ErrNoEligibleBookings) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("partner %s: %w", partnerID, err)
			}

			mu.Lock()
			res = append(res, inv)
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	sort.Slice(res, func(i, j int) bool { return res[i].PartnerID < res[j].PartnerID })
	if err != nil {
		return res, err
	}

	s.logger.Info("invoice batch finished",
		zap.String("period", period.String()),
		zap.Int("partners", len(partners)),
		zap.Int("invoices", len(res)),
	)
	return res, nil
}

// GetInvoice возвращает счёт с расшифровкой. Статус просрочки вычисляется на текущий момент.
func (s *Service) GetInvoice(ctx context.Context, number string) (*model.Invoice, error) {
	inv, err := s.repo.GetInvoiceByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	inv.Status = inv.StatusAt(s.now())
	return inv, nil
}

// ListInvoices возвращает счета партнёра с вычисленным статусом.
func (s *Service) ListInvoices(ctx context.Context, partnerID string) ([]model.Invoice, error) {
	if _, err := s.repo.GetPartner(ctx, partnerID); err != nil {
		return nil, err
	}

	invoices, err := s.repo.ListInvoicesByPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range invoices {
		invoices[i].Status = invoices[i].StatusAt(now)
	}
	return invoices, nil
}

// MarkInvoicePaid фиксирует оплату счёта партнёром. Нулевой paidAt означает текущий момент.
func (s *Service) MarkInvoicePaid(ctx context.Context, number, method, reference string, paidAt time.Time) (*model.Invoice, error) {
	inv, err := s.repo.GetInvoiceByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	if paidAt.IsZero() {
		paidAt = s.now()
	}
	if err := invoice.MarkPaid(inv, method, reference, paidAt.UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateInvoicePayment(ctx, inv); err != nil {
		return nil, err
	}

	s.emit(ctx, model.Event{
		Type:      model.EventInvoicePaid,
		InvoiceID: inv.InvoiceNumber,
		PartnerID: inv.PartnerID,
		Status:    string(inv.Status),
		Amount:    inv.TotalCommission,
	})
	return inv, nil
}
