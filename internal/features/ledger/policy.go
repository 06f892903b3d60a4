// Package ledger — policy.go описывает внешнюю политику динамического RTU.
// Кривая политики настраивается вне ядра; ядро знает только сигнатуру
// и использует её исключительно для отчётов (цель против факта).
package ledger

import "github.com/shopspring/decimal"

// Policy — настраиваемая кривая целевого RTU для открытий.
type Policy interface {
	DynamicOpenRtuTarget(declaredRTUPercent decimal.Decimal) decimal.Decimal
}

// PolicyFunc позволяет передать обычную функцию как Policy.
type PolicyFunc func(declaredRTUPercent decimal.Decimal) decimal.Decimal

// DynamicOpenRtuTarget реализует Policy.
func (f PolicyFunc) DynamicOpenRtuTarget(declaredRTUPercent decimal.Decimal) decimal.Decimal {
	return f(declaredRTUPercent)
}

// IdentityPolicy — цель совпадает с заявленным RTU кейса.
type IdentityPolicy struct{}

// DynamicOpenRtuTarget реализует Policy.
func (IdentityPolicy) DynamicOpenRtuTarget(declaredRTUPercent decimal.Decimal) decimal.Decimal {
	return declaredRTUPercent
}
