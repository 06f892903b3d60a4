// Package common — format.go содержит форматирование сумм для отчётов
// и уведомлений администраторам.
package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatNumber форматирует целое число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	rest := n / 1000
	last := n % 1000

	return fmt.Sprintf("%s %03d", FormatNumber(rest), last)
}

// FormatAmount форматирует decimal с разделителями тысяч и заданной точностью.
// Пример: FormatAmount(decimal.RequireFromString("12345.678"), 2) → "12 345.68"
func FormatAmount(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	var n int64
	fmt.Sscanf(intPart, "%d", &n)

	out := sign + FormatNumber(n)
	if hasFrac {
		out += "." + fracPart
	}
	return out
}

// FormatUSDT создаёт строку вида "1 250.00 USDT".
func FormatUSDT(d decimal.Decimal) string {
	return FormatAmount(d, 2) + " USDT"
}

// FormatSigned добавляет знак «+» к неотрицательным значениям.
//
// Примеры:
//
//	FormatSigned(10.5, 2) → "+10.50"
//	FormatSigned(-3, 2)   → "-3.00"
func FormatSigned(d decimal.Decimal, places int32) string {
	if d.IsNegative() {
		return FormatAmount(d, places)
	}
	return "+" + FormatAmount(d, places)
}
