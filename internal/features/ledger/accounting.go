// Package ledger — accounting.go содержит арифметику леджера.
//
// Инвариант:
//
//	allowedTokens   = totalSpentUsdt * (rtuPercent / 100) / tokenPriceUsdt
//	bufferDebtToken = allowedTokens - totalTokenIssued
//
// bufferDebtToken > 0 — кейс выплатил меньше обещанного (резерв),
// < 0 — переплатил относительно трат (дефицит).
//
// Буфер всегда пересчитывается из накопленных итогов, а не накапливается
// приращениями, поэтому результат не зависит от истории промежуточных округлений.
package ledger

import (
	"github.com/shopspring/decimal"

	"serotonyl.ru/case-battles/internal/common"
)

// StoreScale — число знаков после запятой у денежных колонок леджера (NUMERIC(30, 12)).
const StoreScale int32 = 12

// AllowedTokens — сколько токенов кейс может выплатить при данных тратах.
// Делим один раз: spent * rtu / (100 * price).
func AllowedTokens(totalSpentUSDT, rtuPercent, tokenPriceUSDT decimal.Decimal) decimal.Decimal {
	if !tokenPriceUSDT.IsPositive() {
		return decimal.Zero
	}
	return totalSpentUSDT.Mul(rtuPercent).Div(common.Hundred.Mul(tokenPriceUSDT))
}

// BufferDebt — резерв (или дефицит) в токенах.
func BufferDebt(totalSpentUSDT, totalTokenIssued, rtuPercent, tokenPriceUSDT decimal.Decimal) decimal.Decimal {
	return AllowedTokens(totalSpentUSDT, rtuPercent, tokenPriceUSDT).Sub(totalTokenIssued)
}

// ValidateDelta проверяет дельту до любых изменений в БД.
func ValidateDelta(d Delta) error {
	if d.CaseID == "" {
		return common.Validation("не указан caseId")
	}
	if d.TokenSymbol == "" {
		return common.Validation("не указан токен для кейса %s", d.CaseID)
	}
	if !d.Type.Valid() {
		return common.Validation("неизвестный тип события %q", d.Type)
	}
	if !d.TokenPriceUSDT.IsPositive() {
		return common.Validation("цена токена %s для кейса %s должна быть > 0", d.TokenSymbol, d.CaseID)
	}
	if d.RTUPercent.IsNegative() || d.RTUPercent.GreaterThan(common.Hundred) {
		return common.Validation("RTU должен быть в диапазоне 0..100, получено %s", d.RTUPercent)
	}
	return nil
}

// Apply применяет дельту к предыдущему состоянию и возвращает новое.
// prior == nil — строки ещё нет, начинаем с нуля.
// Цена токена и RTU всегда берутся из дельты: леджер отражает
// последнюю заявленную конфигурацию, а не исторический снимок.
func Apply(prior *Ledger, d Delta) Ledger {
	var next Ledger
	if prior != nil {
		next = *prior
	} else {
		next = Ledger{
			CaseID:           d.CaseID,
			TokenSymbol:      d.TokenSymbol,
			TotalSpentUSDT:   decimal.Zero,
			TotalTokenIssued: decimal.Zero,
		}
	}

	next.TokenPriceUSDT = d.TokenPriceUSDT
	next.RTUPercent = d.RTUPercent
	next.TotalSpentUSDT = next.TotalSpentUSDT.Add(d.DeltaSpentUSDT)
	next.TotalTokenIssued = next.TotalTokenIssued.Add(d.DeltaToken)
	next.BufferDebtToken = BufferDebt(next.TotalSpentUSDT, next.TotalTokenIssued, next.RTUPercent, next.TokenPriceUSDT)

	return next
}

// Replay пересчитывает состояние леджера с нуля по журналу событий.
// Используется для сверки: результат должен совпадать с сохранённой строкой
// при той же цене токена и RTU.
func Replay(events []Event, tokenPriceUSDT, rtuPercent decimal.Decimal) Ledger {
	spent := decimal.Zero
	issued := decimal.Zero
	for _, e := range events {
		spent = spent.Add(e.DeltaSpentUSDT)
		issued = issued.Add(e.DeltaToken)
	}

	var l Ledger
	if len(events) > 0 {
		l.ID = events[0].LedgerID
		l.CaseID = events[0].CaseID
		l.TokenSymbol = events[0].TokenSymbol
	}
	l.TokenPriceUSDT = tokenPriceUSDT
	l.RTUPercent = rtuPercent
	l.TotalSpentUSDT = spent
	l.TotalTokenIssued = issued
	l.BufferDebtToken = BufferDebt(spent, issued, rtuPercent, tokenPriceUSDT)
	return l
}

// ActualRTU — фактический RTU в процентах: сколько стоимости вернулось игрокам.
// Если трат не было — 0.
func ActualRTU(l Ledger) decimal.Decimal {
	if !l.TotalSpentUSDT.IsPositive() {
		return decimal.Zero
	}
	return l.TotalTokenIssued.Mul(l.TokenPriceUSDT).Mul(common.Hundred).Div(l.TotalSpentUSDT)
}
