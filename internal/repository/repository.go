// Package repository содержит хранилища бронирований, партнёров, занятий и счетов:
// PostgreSQL для эксплуатации и хранилище в памяти для разработки и тестов.
package repository

import (
	"errors"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

// ErrDuplicate возвращается при попытке создать запись с уже существующим идентификатором.
var ErrDuplicate = errors.New("already exists")

// FoldFunc строит счёт из подходящих бронирований внутри транзакции хранилища.
// seq содержит очередной порядковый номер счёта. Ошибка FoldFunc откатывает всю операцию.
type FoldFunc func(seq int64, eligible []model.Booking) (*model.Invoice, error)
