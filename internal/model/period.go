package model

import (
	"fmt"
	"time"
)

// BillingPeriod задаёт расчётный период: либо месяц года, либо произвольный диапазон дат
// включительно.
type BillingPeriod struct {
	Month     int
	Year      int
	StartDate *time.Time
	EndDate   *time.Time
}

// MonthlyPeriod возвращает помесячный расчётный период.
func MonthlyPeriod(year int, month time.Month) BillingPeriod {
	return BillingPeriod{Month: int(month), Year: year}
}

// RangePeriod возвращает расчётный период по диапазону дат.
func RangePeriod(start, end time.Time) BillingPeriod {
	return BillingPeriod{StartDate: &start, EndDate: &end}
}

// IsMonthly сообщает, задан ли период месяцем.
func (p BillingPeriod) IsMonthly() bool {
	return p.StartDate == nil && p.EndDate == nil
}

// Window возвращает полуинтервал [from, to) в UTC, покрываемый периодом.
func (p BillingPeriod) Window() (time.Time, time.Time, error) {
	if p.IsMonthly() {
		if p.Month < 1 || p.Month > 12 || p.Year < 1 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid billing month %d/%d", ErrValidation, p.Month, p.Year)
		}
		from := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0), nil
	}

	if p.Month != 0 || p.Year != 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: billing period must be either monthly or a date range", ErrValidation)
	}
	if p.StartDate == nil || p.EndDate == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: billing period range needs both start and end dates", ErrValidation)
	}

	from := truncateDay(*p.StartDate)
	end := truncateDay(*p.EndDate)
	if end.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: billing period ends before it starts", ErrValidation)
	}
	return from, end.AddDate(0, 0, 1), nil
}

// Contains сообщает, попадает ли момент t в период.
func (p BillingPeriod) Contains(t time.Time) bool {
	from, to, err := p.Window()
	if err != nil {
		return false
	}
	return !t.Before(from) && t.Before(to)
}

// String возвращает человекочитаемое представление периода.
func (p BillingPeriod) String() string {
	if p.IsMonthly() {
		return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	}
	if p.StartDate == nil || p.EndDate == nil {
		return "invalid"
	}
	return p.StartDate.Format(time.DateOnly) + ".." + p.EndDate.Format(time.DateOnly)
}

// PreviousMonth возвращает помесячный период, предшествующий месяцу момента now.
func PreviousMonth(now time.Time) BillingPeriod {
	first := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	return MonthlyPeriod(prev.Year(), prev.Month())
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
