// Package resolver выбирает призы кейсов.
// Для боёв резолвер возвращает раунды в перспективе игрока,
// который запустил бой: UserDrop — его приз, OpponentDrop — приз соперника.
package resolver

import (
	"context"

	"serotonyl.ru/case-battles/internal/features/cases"
)

// Mode — режим боя.
type Mode string

const (
	ModeBot Mode = "BOT" // Против бота
	ModePVP Mode = "PVP" // Против другого игрока
)

// Valid проверяет, что режим известен.
func (m Mode) Valid() bool {
	return m == ModeBot || m == ModePVP
}

// RoundOutcome — результат одного раунда с точки зрения игрока, запустившего бой.
type RoundOutcome struct {
	CaseID       string
	UserDrop     cases.Drop
	OpponentDrop cases.Drop
}

// Resolver — источник призов.
//
// ResolveDrops обязан вернуть ровно по одному раунду на каждый caseID
// в том же порядке. Проверка контракта — на стороне вызывающего.
type Resolver interface {
	ResolveDrops(ctx context.Context, caseIDs []string, mode Mode) ([]RoundOutcome, error)
	DrawDrop(ctx context.Context, caseID string) (cases.Drop, error)
}
