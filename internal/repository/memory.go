package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/invoice"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется, когда DATABASE_URI не задан,
// и в тестах. Все операции сериализуются одним мьютексом, наружу отдаются копии.
type MemoryRepository struct {
	mu sync.Mutex

	partners      map[string]model.Partner
	bookings      map[string]model.Booking
	classSessions map[string]model.ClassSession
	invoices      map[string]model.Invoice
	numbers       map[string]string
	seq           int64
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		partners:      make(map[string]model.Partner),
		bookings:      make(map[string]model.Booking),
		classSessions: make(map[string]model.ClassSession),
		invoices:      make(map[string]model.Invoice),
		numbers:       make(map[string]string),
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) CreatePartner(_ context.Context, p *model.Partner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.partners[p.ID]; ok {
		return fmt.Errorf("%w: partner %s", ErrDuplicate, p.ID)
	}
	r.partners[p.ID] = *p
	return nil
}

func (r *MemoryRepository) GetPartner(_ context.Context, id string) (*model.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partners[id]
	if !ok {
		return nil, fmt.Errorf("%w: partner %s", model.ErrNotFound, id)
	}
	return &p, nil
}

func (r *MemoryRepository) ListPartners(_ context.Context) ([]model.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Partner, 0, len(r.partners))
	for _, p := range r.partners {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (r *MemoryRepository) UpdatePartnerRate(_ context.Context, id string, rate decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partners[id]
	if !ok {
		return fmt.Errorf("%w: partner %s", model.ErrNotFound, id)
	}
	p.CommissionRate = rate
	r.partners[id] = p
	return nil
}

func (r *MemoryRepository) CreateBooking(_ context.Context, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[b.ID]; ok {
		return fmt.Errorf("%w: booking %s", ErrDuplicate, b.ID)
	}
	if _, ok := r.partners[b.PartnerID]; !ok {
		return fmt.Errorf("%w: partner %s", model.ErrNotFound, b.PartnerID)
	}
	if b.Version == 0 {
		b.Version = 1
	}
	r.bookings[b.ID] = b.Clone()
	return nil
}

func (r *MemoryRepository) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
	}
	c := b.Clone()
	return &c, nil
}

func (r *MemoryRepository) ListBookingsByPartner(_ context.Context, partnerID string) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Booking
	for _, b := range r.bookings {
		if b.PartnerID == partnerID {
			res = append(res, b.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (r *MemoryRepository) ListBookings(_ context.Context, to time.Time) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Booking
	for _, b := range r.bookings {
		if b.CreatedAt.Before(to) {
			res = append(res, b.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// UpdateBooking заменяет бронирование, если его версия равна expectedVersion.
func (r *MemoryRepository) UpdateBooking(_ context.Context, b *model.Booking, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.bookings[b.ID]
	if !ok {
		return fmt.Errorf("%w: booking %s", model.ErrNotFound, b.ID)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("%w: booking %s version %d", model.ErrConcurrentModification, b.ID, expectedVersion)
	}

	next := b.Clone()
	// Поля, которыми владеет выставление счетов, через UpdateBooking не меняются.
	next.InvoiceID = cur.InvoiceID
	next.CreatedAt = cur.CreatedAt
	next.Version = expectedVersion + 1
	r.bookings[b.ID] = next
	b.Version = next.Version
	return nil
}

func (r *MemoryRepository) CreateClassSession(_ context.Context, cs *model.ClassSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.classSessions[cs.ID]; ok {
		return fmt.Errorf("%w: class session %s", ErrDuplicate, cs.ID)
	}
	if _, ok := r.partners[cs.TrainerID]; !ok {
		return fmt.Errorf("%w: partner %s", model.ErrNotFound, cs.TrainerID)
	}
	r.classSessions[cs.ID] = *cs
	return nil
}

func (r *MemoryRepository) ListClassSessions(_ context.Context, to time.Time) ([]model.ClassSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.ClassSession
	for _, cs := range r.classSessions {
		if cs.BookedAt.Before(to) {
			res = append(res, cs)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].BookedAt.Equal(res[j].BookedAt) {
			return res[i].BookedAt.Before(res[j].BookedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (r *MemoryRepository) PartnersWithUnbilled(_ context.Context, from, to time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[string]struct{})
	for _, b := range r.bookings {
		if invoice.Eligible(b, b.PartnerID, from, to) {
			set[b.PartnerID] = struct{}{}
		}
	}

	res := make([]string, 0, len(set))
	for id := range set {
		res = append(res, id)
	}
	sort.Strings(res)
	return res, nil
}

// FoldInvoice строит и сохраняет счёт под общим мьютексом. Если build возвращает ошибку,
// хранилище не меняется.
func (r *MemoryRepository) FoldInvoice(_ context.Context, partnerID string, period model.BillingPeriod, build FoldFunc) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]model.Booking, 0, len(r.bookings))
	for _, b := range r.bookings {
		all = append(all, b.Clone())
	}
	eligible, err := invoice.SelectEligible(all, partnerID, period)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: partner %s, period %s", model.ErrNoEligibleBookings, partnerID, period)
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := *eligible[i].UserPaymentDate, *eligible[j].UserPaymentDate
		if !a.Equal(b) {
			return a.Before(b)
		}
		return eligible[i].ID < eligible[j].ID
	})

	inv, err := build(r.seq+1, eligible)
	if err != nil {
		return nil, err
	}
	if err := invoice.VerifyTotals(*inv); err != nil {
		return nil, err
	}
	if _, ok := r.numbers[inv.InvoiceNumber]; ok {
		return nil, fmt.Errorf("%w: invoice %s", ErrDuplicate, inv.InvoiceNumber)
	}
	for _, e := range inv.CommissionBreakdown {
		cur, ok := r.bookings[e.BookingID]
		if !ok || cur.CommissionStatus != model.CommissionStatusUnbilled {
			return nil, fmt.Errorf("%w: booking %s changed while folding", model.ErrConcurrentModification, e.BookingID)
		}
	}

	// Дальше ошибок нет: изменения применяются целиком.
	r.seq++
	for _, e := range inv.CommissionBreakdown {
		b := r.bookings[e.BookingID]
		id := inv.ID
		b.CommissionStatus = model.CommissionStatusBilled
		b.InvoiceID = &id
		b.Version++
		b.UpdatedAt = inv.IssuedAt
		r.bookings[b.ID] = b
	}
	r.invoices[inv.ID] = cloneInvoice(*inv)
	r.numbers[inv.InvoiceNumber] = inv.ID

	res := cloneInvoice(*inv)
	return &res, nil
}

func (r *MemoryRepository) GetInvoiceByNumber(_ context.Context, number string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.numbers[number]
	if !ok {
		return nil, fmt.Errorf("%w: invoice %s", model.ErrNotFound, number)
	}
	inv := cloneInvoice(r.invoices[id])
	return &inv, nil
}

func (r *MemoryRepository) listInvoices(keep func(model.Invoice) bool) []model.Invoice {
	var res []model.Invoice
	for _, inv := range r.invoices {
		if keep(inv) {
			c := cloneInvoice(inv)
			c.CommissionBreakdown = nil
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].IssuedAt.Equal(res[j].IssuedAt) {
			return res[i].IssuedAt.Before(res[j].IssuedAt)
		}
		return res[i].InvoiceNumber < res[j].InvoiceNumber
	})
	return res
}

func (r *MemoryRepository) ListInvoicesByPartner(_ context.Context, partnerID string) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.listInvoices(func(inv model.Invoice) bool { return inv.PartnerID == partnerID }), nil
}

func (r *MemoryRepository) ListInvoices(_ context.Context, to time.Time) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.listInvoices(func(inv model.Invoice) bool { return inv.IssuedAt.Before(to) }), nil
}

func (r *MemoryRepository) UpdateInvoicePayment(_ context.Context, inv *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.invoices[inv.ID]
	if !ok {
		return fmt.Errorf("%w: invoice %s", model.ErrNotFound, inv.InvoiceNumber)
	}
	if cur.Status == model.InvoiceStatusPaid {
		return fmt.Errorf("%w: invoice %s is already paid", model.ErrAlreadyRecorded, inv.InvoiceNumber)
	}

	cur.Status = model.InvoiceStatusPaid
	if inv.PaidAt != nil {
		at := *inv.PaidAt
		cur.PaidAt = &at
	}
	cur.PaymentMethod = inv.PaymentMethod
	cur.PaymentReference = inv.PaymentReference
	r.invoices[inv.ID] = cur
	return nil
}

func cloneInvoice(inv model.Invoice) model.Invoice {
	c := inv
	c.CommissionBreakdown = make([]model.CommissionEntry, len(inv.CommissionBreakdown))
	for i, e := range inv.CommissionBreakdown {
		e.TestNames = append([]string(nil), e.TestNames...)
		c.CommissionBreakdown[i] = e
	}
	if inv.PaidAt != nil {
		at := *inv.PaidAt
		c.PaidAt = &at
	}
	if inv.BillingPeriod.StartDate != nil {
		s := *inv.BillingPeriod.StartDate
		c.BillingPeriod.StartDate = &s
	}
	if inv.BillingPeriod.EndDate != nil {
		e := *inv.BillingPeriod.EndDate
		c.BillingPeriod.EndDate = &e
	}
	return c
}
