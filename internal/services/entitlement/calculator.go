// Package entitlement содержит чистые функции расчёта премиум-доступа.
//
// Правило начисления: сумма платежа делится на блоки по BlockSize Pi,
// каждый полный блок даёт DaysPerBlock дней премиума. Активный доступ
// продлевается от текущей даты окончания, истёкший или отсутствующий —
// отсчитывается от текущего момента.
package entitlement

import (
	"math"
	"time"
)

const (
	// BlockSize — размер блока суммы платежа в Pi.
	BlockSize = 2.0
	// DaysPerBlock — число дней премиума за один полный блок.
	DaysPerBlock = 30
)

// ComputeGrant возвращает число начисляемых дней за сумму платежа:
// floor(amount/BlockSize)*DaysPerBlock. Суммы меньше одного блока
// дают ноль дней — это не ошибка.
func ComputeGrant(amount float64) int {
	if amount < BlockSize {
		return 0
	}
	return int(math.Floor(amount/BlockSize)) * DaysPerBlock
}

// ComputeNewExpiry возвращает новую дату окончания доступа.
//
// База продления — currentExpiry, если доступ активен и дата строго
// в будущем, иначе now. При additionalDays == 0 дата не меняется.
func ComputeNewExpiry(currentExpiry *time.Time, currentlyActive bool, additionalDays int, now time.Time) *time.Time {
	if additionalDays == 0 {
		return currentExpiry
	}
	base := now
	if currentlyActive && currentExpiry != nil && currentExpiry.After(now) {
		base = *currentExpiry
	}
	expiry := base.AddDate(0, 0, additionalDays)
	return &expiry
}

// ComputeRemainingDays возвращает число оставшихся полных дней доступа:
// потолок от (expiry - now), не меньше нуля. Отсутствующая дата — ноль.
func ComputeRemainingDays(expiry *time.Time, now time.Time) int {
	if expiry == nil {
		return 0
	}
	left := expiry.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
