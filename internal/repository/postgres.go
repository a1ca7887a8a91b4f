package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/invoice"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

var retryDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(retryDelays) {
			break
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreatePartner сохраняет нового партнёра.
func (r *PostgresRepository) CreatePartner(ctx context.Context, p *model.Partner) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO partners (id, kind, name, commission_rate, created_at) VALUES ($1, $2, $3, $4::numeric, $5)`,
		p.ID, string(p.Kind), p.Name, p.CommissionRate.String(), p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: partner %s", ErrDuplicate, p.ID)
		}
		return fmt.Errorf("insert partner: %w", err)
	}
	return nil
}

const partnerColumns = `id, kind, name, commission_rate::text, created_at`

func scanPartner(row pgx.Row) (*model.Partner, error) {
	var (
		p    model.Partner
		kind string
		rate string
	)
	if err := row.Scan(&p.ID, &kind, &p.Name, &rate, &p.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("parse commission rate %q: %w", rate, err)
	}
	p.Kind = model.PartnerKind(kind)
	p.CommissionRate = d
	return &p, nil
}

// GetPartner возвращает партнёра по идентификатору.
func (r *PostgresRepository) GetPartner(ctx context.Context, id string) (*model.Partner, error) {
	p, err := scanPartner(r.pool.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: partner %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get partner: %w", err)
	}
	return p, nil
}

// ListPartners возвращает всех партнёров в порядке создания.
func (r *PostgresRepository) ListPartners(ctx context.Context) ([]model.Partner, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+partnerColumns+` FROM partners ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select partners: %w", err)
	}
	defer rows.Close()

	var res []model.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdatePartnerRate меняет текущую ставку комиссии партнёра. Уже начисленные комиссии не пересчитываются.
func (r *PostgresRepository) UpdatePartnerRate(ctx context.Context, id string, rate decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE partners SET commission_rate = $2::numeric WHERE id = $1`,
		id, rate.String(),
	)
	if err != nil {
		return fmt.Errorf("update partner rate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: partner %s", model.ErrNotFound, id)
	}
	return nil
}

type testRow struct {
	TestName string `json:"testName"`
	Price    int64  `json:"price"`
}

func encodeTests(tests []model.SelectedTest) ([]byte, error) {
	rows := make([]testRow, 0, len(tests))
	for _, t := range tests {
		rows = append(rows, testRow{TestName: t.TestName, Price: t.Price})
	}
	return json.Marshal(rows)
}

func decodeTests(raw []byte) ([]model.SelectedTest, error) {
	var rows []testRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	res := make([]model.SelectedTest, 0, len(rows))
	for _, r := range rows {
		res = append(res, model.SelectedTest{TestName: r.TestName, Price: r.Price})
	}
	return res, nil
}

// CreateBooking сохраняет новое бронирование.
func (r *PostgresRepository) CreateBooking(ctx context.Context, b *model.Booking) error {
	tests, err := encodeTests(b.SelectedTests)
	if err != nil {
		return fmt.Errorf("encode selected tests: %w", err)
	}

	if b.Version == 0 {
		b.Version = 1
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO bookings (id, enthusiast_id, enthusiast_name, partner_id, selected_tests, total_amount,
		                       status, expected_report_delivery_time, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.EnthusiastID, b.EnthusiastName, b.PartnerID, tests, b.TotalAmount,
		string(b.Status), b.ExpectedReportDeliveryTime, b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: booking %s", ErrDuplicate, b.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: partner %s", model.ErrNotFound, b.PartnerID)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

const bookingColumns = `id, enthusiast_id, enthusiast_name, partner_id, selected_tests, total_amount, status,
	expected_report_delivery_time, report_url, report_uploaded_at, user_paid_to_lab, user_payment_date,
	user_payment_method, payment_received_by_lab, commission_amount, commission_rate::text, commission_status,
	payment_received_date, invoice_id, version, created_at, updated_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b                model.Booking
		tests            []byte
		status           string
		method           string
		rate             string
		commissionStatus string
	)
	err := row.Scan(
		&b.ID, &b.EnthusiastID, &b.EnthusiastName, &b.PartnerID, &tests, &b.TotalAmount, &status,
		&b.ExpectedReportDeliveryTime, &b.ReportURL, &b.ReportUploadedAt, &b.UserPaidToLab, &b.UserPaymentDate,
		&method, &b.PaymentReceivedByLab, &b.CommissionAmount, &rate, &commissionStatus,
		&b.PaymentReceivedDate, &b.InvoiceID, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if b.SelectedTests, err = decodeTests(tests); err != nil {
		return nil, fmt.Errorf("decode selected tests: %w", err)
	}
	if b.CommissionRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse commission rate %q: %w", rate, err)
	}
	b.Status = model.BookingStatus(status)
	b.UserPaymentMethod = model.PaymentMethod(method)
	b.CommissionStatus = model.CommissionStatus(commissionStatus)
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()

	var res []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		res = append(res, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetBooking возвращает бронирование по идентификатору.
func (r *PostgresRepository) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// ListBookingsByPartner возвращает бронирования партнёра, новые первыми.
func (r *PostgresRepository) ListBookingsByPartner(ctx context.Context, partnerID string) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE partner_id = $1 ORDER BY created_at DESC, id`,
		partnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	return collectBookings(rows)
}

// ListBookings возвращает все бронирования, созданные до момента to.
func (r *PostgresRepository) ListBookings(ctx context.Context, to time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE created_at < $1 ORDER BY created_at, id`,
		to,
	)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	return collectBookings(rows)
}

// UpdateBooking сохраняет изменяемые поля бронирования, если его версия всё ещё равна expectedVersion.
// При успехе b.Version увеличивается на единицу.
func (r *PostgresRepository) UpdateBooking(ctx context.Context, b *model.Booking, expectedVersion int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bookings SET
		    status = $3,
		    expected_report_delivery_time = $4,
		    report_url = $5,
		    report_uploaded_at = $6,
		    user_paid_to_lab = $7,
		    user_payment_date = $8,
		    user_payment_method = $9,
		    payment_received_by_lab = $10,
		    commission_amount = $11,
		    commission_rate = $12::numeric,
		    commission_status = $13,
		    payment_received_date = $14,
		    updated_at = $15,
		    version = version + 1
		 WHERE id = $1 AND version = $2`,
		b.ID, expectedVersion, string(b.Status), b.ExpectedReportDeliveryTime, b.ReportURL, b.ReportUploadedAt,
		b.UserPaidToLab, b.UserPaymentDate, string(b.UserPaymentMethod), b.PaymentReceivedByLab,
		b.CommissionAmount, b.CommissionRate.String(), string(b.CommissionStatus), b.PaymentReceivedDate, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, b.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check booking: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: booking %s", model.ErrNotFound, b.ID)
		}
		return fmt.Errorf("%w: booking %s version %d", model.ErrConcurrentModification, b.ID, expectedVersion)
	}

	b.Version = expectedVersion + 1
	return nil
}

// CreateClassSession сохраняет оплаченное занятие у тренера.
func (r *PostgresRepository) CreateClassSession(ctx context.Context, cs *model.ClassSession) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO class_sessions (id, trainer_id, enthusiast_id, amount, commission_rate, commission_amount, booked_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		cs.ID, cs.TrainerID, cs.EnthusiastID, cs.Amount, cs.CommissionRate.String(), cs.CommissionAmount, cs.BookedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: class session %s", ErrDuplicate, cs.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: partner %s", model.ErrNotFound, cs.TrainerID)
		}
		return fmt.Errorf("insert class session: %w", err)
	}
	return nil
}

// ListClassSessions возвращает занятия, забронированные до момента to.
func (r *PostgresRepository) ListClassSessions(ctx context.Context, to time.Time) ([]model.ClassSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, trainer_id, enthusiast_id, amount, commission_rate::text, commission_amount, booked_at
		 FROM class_sessions
		 WHERE booked_at < $1
		 ORDER BY booked_at, id`,
		to,
	)
	if err != nil {
		return nil, fmt.Errorf("select class sessions: %w", err)
	}
	defer rows.Close()

	var res []model.ClassSession
	for rows.Next() {
		var (
			cs   model.ClassSession
			rate string
		)
		if err := rows.Scan(&cs.ID, &cs.TrainerID, &cs.EnthusiastID, &cs.Amount, &rate, &cs.CommissionAmount, &cs.BookedAt); err != nil {
			return nil, fmt.Errorf("scan class session: %w", err)
		}
		if cs.CommissionRate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("parse commission rate %q: %w", rate, err)
		}
		res = append(res, cs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// PartnersWithUnbilled возвращает партнёров, у которых есть неоплаченная комиссия с датой оплаты в [from, to).
func (r *PostgresRepository) PartnersWithUnbilled(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT partner_id
		 FROM bookings
		 WHERE commission_status = $1 AND user_payment_date >= $2 AND user_payment_date < $3
		 ORDER BY partner_id`,
		string(model.CommissionStatusUnbilled), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select partners with unbilled commission: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan partner id: %w", err)
		}
		res = append(res, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// FoldInvoice в одной транзакции блокирует партнёра, отбирает и блокирует подходящие бронирования,
// строит счёт через build, сохраняет его и помечает бронирования как billed. Любая ошибка
// откатывает транзакцию целиком.
func (r *PostgresRepository) FoldInvoice(ctx context.Context, partnerID string, period model.BillingPeriod, build FoldFunc) (*model.Invoice, error) {
	from, to, err := period.Window()
	if err != nil {
		return nil, err
	}

	var inv *model.Invoice
	err = r.withRetry(ctx, func() error {
		var txErr error
		inv, txErr = r.foldInvoiceTx(ctx, partnerID, period, from, to, build)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *PostgresRepository) foldInvoiceTx(ctx context.Context, partnerID string, period model.BillingPeriod, from, to time.Time, build FoldFunc) (*model.Invoice, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Сериализуем выставление счетов одному партнёру.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, partnerID); err != nil {
		return nil, fmt.Errorf("lock partner: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE partner_id = $1 AND commission_status = $2 AND user_payment_date >= $3 AND user_payment_date < $4
		 ORDER BY user_payment_date, id
		 FOR UPDATE`,
		partnerID, string(model.CommissionStatusUnbilled), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select eligible bookings: %w", err)
	}
	eligible, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: partner %s, period %s", model.ErrNoEligibleBookings, partnerID, period)
	}

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next invoice number: %w", err)
	}

	inv, err := build(seq, eligible)
	if err != nil {
		return nil, err
	}
	if err := invoice.VerifyTotals(*inv); err != nil {
		return nil, err
	}

	if err := insertInvoice(ctx, tx, inv); err != nil {
		return nil, err
	}

	for _, e := range inv.CommissionBreakdown {
		tag, err := tx.Exec(ctx,
			`UPDATE bookings
			 SET commission_status = $2, invoice_id = $3, version = version + 1, updated_at = $4
			 WHERE id = $1 AND commission_status = $5`,
			e.BookingID, string(model.CommissionStatusBilled), inv.ID, inv.IssuedAt, string(model.CommissionStatusUnbilled),
		)
		if err != nil {
			return nil, fmt.Errorf("mark booking billed: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return nil, fmt.Errorf("%w: booking %s changed while folding", model.ErrConcurrentModification, e.BookingID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return inv, nil
}

func insertInvoice(ctx context.Context, tx pgx.Tx, inv *model.Invoice) error {
	var (
		month, year *int
		start, end  *time.Time
	)
	if inv.BillingPeriod.IsMonthly() {
		month, year = &inv.BillingPeriod.Month, &inv.BillingPeriod.Year
	} else {
		start, end = inv.BillingPeriod.StartDate, inv.BillingPeriod.EndDate
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO invoices (id, invoice_number, partner_id, period_month, period_year, period_start, period_end,
		                       number_of_bookings, total_booking_value, total_commission, status, issued_at, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		inv.ID, inv.InvoiceNumber, inv.PartnerID, month, year, start, end,
		inv.NumberOfBookings, inv.TotalBookingValue, inv.TotalCommission, string(inv.Status), inv.IssuedAt, inv.DueDate,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	batch := &pgx.Batch{}
	for i, e := range inv.CommissionBreakdown {
		names, err := json.Marshal(e.TestNames)
		if err != nil {
			return fmt.Errorf("encode test names: %w", err)
		}
		batch.Queue(
			`INSERT INTO invoice_entries (invoice_id, position, booking_id, enthusiast_name, booking_date, total_amount,
			                              commission_rate, commission_amount, test_names)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)`,
			inv.ID, i, e.BookingID, e.EnthusiastName, e.BookingDate, e.TotalAmount,
			e.CommissionRate.String(), e.CommissionAmount, names,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: booking already folded into another invoice", model.ErrConcurrentModification)
		}
		return fmt.Errorf("insert invoice entries: %w", err)
	}

	return nil
}

const invoiceColumns = `id, invoice_number, partner_id, period_month, period_year, period_start, period_end,
	number_of_bookings, total_booking_value, total_commission, status, issued_at, due_date, paid_at,
	payment_method, payment_reference`

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	var (
		inv         model.Invoice
		month, year *int
		start, end  *time.Time
		status      string
	)
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.PartnerID, &month, &year, &start, &end,
		&inv.NumberOfBookings, &inv.TotalBookingValue, &inv.TotalCommission, &status, &inv.IssuedAt, &inv.DueDate,
		&inv.PaidAt, &inv.PaymentMethod, &inv.PaymentReference,
	)
	if err != nil {
		return nil, err
	}

	if month != nil && year != nil {
		inv.BillingPeriod = model.BillingPeriod{Month: *month, Year: *year}
	} else {
		inv.BillingPeriod = model.BillingPeriod{StartDate: start, EndDate: end}
	}
	inv.Status = model.InvoiceStatus(status)
	return &inv, nil
}

func (r *PostgresRepository) loadEntries(ctx context.Context, inv *model.Invoice) error {
	rows, err := r.pool.Query(ctx,
		`SELECT booking_id, enthusiast_name, booking_date, total_amount, commission_rate::text, commission_amount, test_names
		 FROM invoice_entries
		 WHERE invoice_id = $1
		 ORDER BY position`,
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("select invoice entries: %w", err)
	}
	defer rows.Close()

	inv.CommissionBreakdown = inv.CommissionBreakdown[:0]
	for rows.Next() {
		var (
			e     model.CommissionEntry
			rate  string
			names []byte
		)
		if err := rows.Scan(&e.BookingID, &e.EnthusiastName, &e.BookingDate, &e.TotalAmount, &rate, &e.CommissionAmount, &names); err != nil {
			return fmt.Errorf("scan invoice entry: %w", err)
		}
		if e.CommissionRate, err = decimal.NewFromString(rate); err != nil {
			return fmt.Errorf("parse commission rate %q: %w", rate, err)
		}
		if err := json.Unmarshal(names, &e.TestNames); err != nil {
			return fmt.Errorf("decode test names: %w", err)
		}
		inv.CommissionBreakdown = append(inv.CommissionBreakdown, e)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

// GetInvoiceByNumber возвращает счёт с расшифровкой по его номеру.
func (r *PostgresRepository) GetInvoiceByNumber(ctx context.Context, number string) (*model.Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = $1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %s", model.ErrNotFound, number)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if err := r.loadEntries(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *PostgresRepository) listInvoices(ctx context.Context, where string, args ...any) ([]model.Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices `+where+` ORDER BY issued_at, invoice_number`, args...)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	defer rows.Close()

	var res []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		res = append(res, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListInvoicesByPartner возвращает счета партнёра без расшифровки.
func (r *PostgresRepository) ListInvoicesByPartner(ctx context.Context, partnerID string) ([]model.Invoice, error) {
	return r.listInvoices(ctx, `WHERE partner_id = $1`, partnerID)
}

// ListInvoices возвращает счета, выставленные до момента to, без расшифровки.
func (r *PostgresRepository) ListInvoices(ctx context.Context, to time.Time) ([]model.Invoice, error) {
	return r.listInvoices(ctx, `WHERE issued_at < $1`, to)
}

// UpdateInvoicePayment сохраняет оплату счёта, если он ещё не оплачен.
func (r *PostgresRepository) UpdateInvoicePayment(ctx context.Context, inv *model.Invoice) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices
		 SET status = $2, paid_at = $3, payment_method = $4, payment_reference = $5
		 WHERE id = $1 AND status <> $2`,
		inv.ID, string(model.InvoiceStatusPaid), inv.PaidAt, inv.PaymentMethod, inv.PaymentReference,
	)
	if err != nil {
		return fmt.Errorf("update invoice payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %s is already paid", model.ErrAlreadyRecorded, inv.InvoiceNumber)
	}
	return nil
}
