// Package validation содержит функции валидации входных данных.
package validation

import (
	"unicode"

	"github.com/google/uuid"
)

// InvoiceNumberLength задаёт минимальную длину номера счёта: YYYYMM, не меньше шести цифр
// порядкового номера и контрольная цифра.
const InvoiceNumberLength = 13

// maxInvoiceNumberLength вмещает любой положительный int64 в качестве порядкового номера.
const maxInvoiceNumberLength = 6 + 19 + 1

// IsValidInvoiceNumber проверяет формат номера счёта, месяц выставления и контрольную цифру
// по алгоритму Луна.
func IsValidInvoiceNumber(number string) bool {
	if len(number) < InvoiceNumberLength || len(number) > maxInvoiceNumberLength {
		return false
	}
	if !IsValidLuhn(number) {
		return false
	}
	month := int(number[4]-'0')*10 + int(number[5]-'0')
	return month >= 1 && month <= 12
}

// IsValidLuhn проверяет строку из цифр по алгоритму Луна.
func IsValidLuhn(number string) bool {
	if number == "" {
		return false
	}

	sum := 0
	double := false

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}

// LuhnCheckDigit возвращает контрольную цифру, которую нужно дописать к payload.
// Второй результат ложен, если payload содержит не только цифры.
func LuhnCheckDigit(payload string) (byte, bool) {
	if payload == "" {
		return 0, false
	}

	sum := 0
	double := true

	for i := len(payload) - 1; i >= 0; i-- {
		ch := rune(payload[i])
		if !unicode.IsDigit(ch) {
			return 0, false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return byte('0' + (10-sum%10)%10), true
}

// IsValidID проверяет, что идентификатор является UUID.
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
