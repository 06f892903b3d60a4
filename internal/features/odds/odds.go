// Package odds реализует динамические шансы апгрейда.
// Базовый шанс считается из множителя, затем корректируется по покрытию:
// во сколько раз текущий резерв леджера (кейс, токен) перекрывает
// дополнительную выплату, которая потребуется при успехе.
//
//	coverage ≥ 4   → бонус +24 п.п.
//	coverage = 1   → шанс не меняется
//	coverage = 0   → штраф −26 п.п.
package odds

import (
	"github.com/shopspring/decimal"

	"serotonyl.ru/case-battles/internal/common"
)

// Границы шансов в процентах.
var (
	MinChance         = decimal.RequireFromString("0.1")
	MaxChance         = decimal.NewFromInt(75) // Выше — апгрейд запрещён
	AdjustedMaxChance = decimal.NewFromInt(95) // Потолок после корректировки резервом
	// MinMultiplier — наименьший допустимый множитель с шагом 0.0001 (100/75 с округлением вверх)
	MinMultiplier     = common.Hundred.Div(MaxChance).RoundUp(4)

	surplusBoostPoints   = decimal.NewFromInt(24)
	deficitPenaltyPoints = decimal.NewFromInt(26)
	surplusSpan          = decimal.NewFromInt(3) // coverage 1→4 даёт бонус 0→1
	coverageEpsilon      = decimal.New(1, -9)
)

// Chance — результат расчёта шанса апгрейда.
type Chance struct {
	Base           decimal.Decimal // Базовый шанс, %
	Adjusted       decimal.Decimal // Шанс после корректировки резервом, %
	Coverage       decimal.Decimal // reserve / neededDelta
	NeededDelta    decimal.Decimal // max(0, target - base)
	SurplusBoost   decimal.Decimal // 0..1
	DeficitPenalty decimal.Decimal // 0..1
}

// ComputeUpgradeChance считает базовый и скорректированный шанс.
//
// Шаги:
//  1. raw = 100 / multiplier; raw > 75% → UpgradeBlockedError
//  2. coverage = reserve / max(0, target - base), при нулевой потребности = 1
//  3. boost = clamp((coverage-1)/3, 0, 1), penalty = clamp(1-coverage, 0, 1)
//  4. adjusted = clamp(base + boost*24 - penalty*26, 0.1, 95)
func ComputeUpgradeChance(multiplier, baseValue, targetValue, reserveToken decimal.Decimal) (Chance, error) {
	if err := CheckMultiplier(multiplier); err != nil {
		return Chance{}, err
	}
	if !baseValue.IsPositive() {
		return Chance{}, common.Validation("стоимость входных предметов должна быть > 0")
	}
	if targetValue.IsNegative() {
		return Chance{}, common.Validation("целевая стоимость не может быть отрицательной")
	}

	base := common.Clamp(common.Hundred.Div(multiplier), MinChance, MaxChance)

	needed := common.MaxZero(targetValue.Sub(baseValue))
	coverage := common.One
	if needed.GreaterThan(coverageEpsilon) {
		coverage = reserveToken.Div(needed)
	}

	boost := common.Clamp(coverage.Sub(common.One).Div(surplusSpan), decimal.Zero, common.One)
	penalty := common.Clamp(common.One.Sub(coverage), decimal.Zero, common.One)

	adjusted := base.
		Add(boost.Mul(surplusBoostPoints)).
		Sub(penalty.Mul(deficitPenaltyPoints))
	adjusted = common.Clamp(adjusted, MinChance, AdjustedMaxChance)

	return Chance{
		Base:           base,
		Adjusted:       adjusted,
		Coverage:       coverage,
		NeededDelta:    needed,
		SurplusBoost:   boost,
		DeficitPenalty: penalty,
	}, nil
}

// CheckMultiplier проверяет множитель до любых изменений:
// сырой шанс 100/multiplier выше 75% — апгрейд запрещён.
func CheckMultiplier(multiplier decimal.Decimal) error {
	if !multiplier.IsPositive() {
		return common.Validation("множитель должен быть > 0, получено %s", multiplier)
	}
	if common.Hundred.Div(multiplier).GreaterThan(MaxChance) {
		return &common.UpgradeBlockedError{
			Msg: "Upgrade blocked: множитель " + multiplier.String() + " ниже минимального " + MinMultiplier.String(),
		}
	}
	return nil
}

// LedgerDelta — сколько токенов уходит в леджер по итогам апгрейда.
// Успех: выплачивается прирост (target - base).
// Неудача: входные предметы сгорают, их стоимость возвращается в резерв (-base).
func LedgerDelta(success bool, baseValue, targetValue decimal.Decimal) decimal.Decimal {
	if success {
		return targetValue.Sub(baseValue)
	}
	return baseValue.Neg()
}
