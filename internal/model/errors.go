package model

import "errors"

var (
	// ErrInvalidTransition возвращается при попытке перехода, которого нет в жизненном цикле бронирования.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrMissingDeliveryEstimate возвращается при подтверждении бронирования без срока готовности отчёта.
	ErrMissingDeliveryEstimate = errors.New("set a delivery estimate before confirming")
	// ErrAlreadyRecorded возвращается при повторной фиксации однократного платёжного факта.
	ErrAlreadyRecorded = errors.New("already recorded")
	// ErrNoEligibleBookings возвращается, если за период нет бронирований для выставления счёта.
	ErrNoEligibleBookings = errors.New("no eligible bookings")
	// ErrConcurrentModification возвращается, если запись изменилась между чтением и записью.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrComputation возвращается при несогласованных входных данных расчётов.
	ErrComputation = errors.New("computation error")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrReportNotAllowed возвращается при загрузке отчёта для отменённого бронирования.
	ErrReportNotAllowed = errors.New("report cannot be attached to a cancelled booking")
)
