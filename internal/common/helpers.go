// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: типизированные ошибки, арифметика над decimal, форматирование сумм.
package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// Часто используемые константы.
var (
	Hundred = decimal.NewFromInt(100)
	One     = decimal.NewFromInt(1)
)

// Clamp ограничивает значение диапазоном [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// MaxZero возвращает max(0, v).
func MaxZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Sum складывает значения без промежуточного округления.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Now возвращает текущее время в UTC.
// Все метки времени в БД храним в UTC, часовой пояс нужен только для отчётов.
func Now() time.Time {
	return time.Now().UTC()
}

// LoadLocation загружает часовой пояс для отчётов.
// Если не удалось — используем UTC+3 вручную.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" в заданном поясе.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01.2006 15:04")
}
