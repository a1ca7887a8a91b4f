// Package commission вычисляет комиссию платформы по сумме бронирования и ставке партнёра.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

var (
	hundred = decimal.NewFromInt(100)
	// MaxRate задаёт максимальную допустимую ставку комиссии в процентах.
	MaxRate = hundred
)

// Result содержит рассчитанную комиссию и ставку, по которой она посчитана.
type Result struct {
	Amount int64
	Rate   decimal.Decimal
}

// Compute считает комиссию как total*rate/100 с округлением до целой единицы валюты
// (половина округляется вверх). Функция ничего не изменяет: сохранение результата остаётся заботой
// вызывающего кода.
func Compute(total int64, rate decimal.Decimal) (Result, error) {
	if err := ValidateRate(rate); err != nil {
		return Result{}, err
	}
	if total < 0 {
		return Result{}, fmt.Errorf("%w: negative booking total %d", model.ErrComputation, total)
	}

	amount := decimal.NewFromInt(total).Mul(rate).Div(hundred).Round(0)

	return Result{
		Amount: amount.IntPart(),
		Rate:   rate,
	}, nil
}

// RateScale задаёт максимальное число знаков после запятой в ставке.
const RateScale = 2

// ValidateRate проверяет, что ставка лежит в диапазоне 0..100 и имеет не больше двух знаков после запятой.
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(MaxRate) {
		return fmt.Errorf("%w: commission rate %s is outside 0..100", model.ErrValidation, rate.String())
	}
	if !rate.Equal(rate.Round(RateScale)) {
		return fmt.Errorf("%w: commission rate %s has more than %d fractional digits", model.ErrValidation, rate.String(), RateScale)
	}
	return nil
}
