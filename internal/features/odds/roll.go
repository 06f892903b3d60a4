// Package odds — roll.go отвечает за бросок случайного числа.
package odds

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/shopspring/decimal"
)

// Roller возвращает равномерное случайное число в [0, 100).
type Roller interface {
	Roll() float64
}

// RollerFunc позволяет передать функцию как Roller (удобно в тестах).
type RollerFunc func() float64

// Roll реализует Roller.
func (f RollerFunc) Roll() float64 { return f() }

// CryptoRoller — бросок на crypto/rand. Каждый вызов независим.
type CryptoRoller struct{}

// Roll берёт 53 случайных бита — ровно столько помещается в мантиссу float64.
func (CryptoRoller) Roll() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand не возвращает ошибок на поддерживаемых платформах
		panic("odds: crypto/rand недоступен: " + err.Error())
	}
	n := binary.BigEndian.Uint64(b[:]) >> 11
	return float64(n) / float64(uint64(1)<<53) * 100
}

// Outcome — итог одного апгрейда.
type Outcome struct {
	Chance  Chance
	Roll    decimal.Decimal
	Success bool
}

// Engine считает шанс и бросает кубик.
type Engine struct {
	roller Roller
}

// NewEngine создаёт движок шансов. roller == nil — используется CryptoRoller.
func NewEngine(roller Roller) *Engine {
	if roller == nil {
		roller = CryptoRoller{}
	}
	return &Engine{roller: roller}
}

// Evaluate считает шанс и выполняет бросок: успех, если roll <= adjusted.
func (e *Engine) Evaluate(multiplier, baseValue, targetValue, reserveToken decimal.Decimal) (Outcome, error) {
	chance, err := ComputeUpgradeChance(multiplier, baseValue, targetValue, reserveToken)
	if err != nil {
		return Outcome{}, err
	}

	roll := decimal.NewFromFloat(e.roller.Roll())
	return Outcome{
		Chance:  chance,
		Roll:    roll,
		Success: roll.LessThanOrEqual(chance.Adjusted),
	}, nil
}
