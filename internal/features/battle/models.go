// Package battle реализует лобби боёв кейсов: создание, вход соперника,
// старт с розыгрышем раундов и завершение с расчётом победителя.
// models.go описывает все структуры данных боя.
package battle

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"serotonyl.ru/case-battles/internal/features/resolver"
)

// Status — состояние лобби. Переходы только вперёд: OPEN → IN_PROGRESS → FINISHED.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

// Mode — режим боя.
type Mode = resolver.Mode

const (
	ModeBot = resolver.ModeBot
	ModePVP = resolver.ModePVP
)

// Role — роль участника в лобби.
type Role string

const (
	RoleHost   Role = "HOST"
	RoleJoiner Role = "JOINER"
)

// BotName — имя бота в итогах боя.
const BotName = "BOT"

// Side — сторона боя: живой игрок или бот.
// Бот не является пользователем и не хранится как участник экономики.
type Side interface {
	Label() string
	isSide()
}

// HumanSide — сторона живого игрока.
type HumanSide struct {
	UserID int64
	Name   string
}

func (h HumanSide) Label() string { return h.Name }
func (HumanSide) isSide()         {}

// BotSide — сторона бота.
type BotSide struct{}

func (BotSide) Label() string { return BotName }
func (BotSide) isSide()       {}

// Lobby — лобби боя.
type Lobby struct {
	ID           uuid.UUID        `db:"id"`
	HostUserID   int64            `db:"host_user_id"`
	HostName     string           `db:"host_name"`
	JoinerUserID *int64           `db:"joiner_user_id"`
	JoinerName   *string          `db:"joiner_name"`
	CaseIDs      []string         `db:"case_ids"` // Кейсы раундов в порядке розыгрыша
	Mode         Mode             `db:"mode"`
	Status       Status           `db:"status"`
	Rounds       []CanonicalRound `db:"rounds_json"` // Пишется один раз при старте
	WinnerName   *string          `db:"winner_name"`
	TotalCost    decimal.Decimal  `db:"total_cost"` // Сумма цен кейсов, списывается с каждого игрока
	CreatedAt    time.Time        `db:"created_at"`
	StartedAt    *time.Time       `db:"started_at"`
	FinishedAt   *time.Time       `db:"finished_at"`
}

// Host возвращает сторону хоста.
func (l *Lobby) Host() HumanSide {
	return HumanSide{UserID: l.HostUserID, Name: l.HostName}
}

// Opponent возвращает сторону соперника хоста.
// Для PVP без второго игрока — nil.
func (l *Lobby) Opponent() Side {
	if l.Mode == ModeBot {
		return BotSide{}
	}
	if l.JoinerUserID == nil {
		return nil
	}
	name := ""
	if l.JoinerName != nil {
		name = *l.JoinerName
	}
	return HumanSide{UserID: *l.JoinerUserID, Name: name}
}

// Humans возвращает живых участников: хоста и, если есть, второго игрока.
func (l *Lobby) Humans() []HumanSide {
	out := []HumanSide{l.Host()}
	if h, ok := l.Opponent().(HumanSide); ok {
		out = append(out, h)
	}
	return out
}

// RoleOf определяет роль пользователя в лобби.
func (l *Lobby) RoleOf(userID int64) (Role, bool) {
	switch {
	case userID == l.HostUserID:
		return RoleHost, true
	case l.JoinerUserID != nil && userID == *l.JoinerUserID:
		return RoleJoiner, true
	}
	return "", false
}

// Winner определяет победителя по сохранённым раундам.
// Ничья засчитывается хосту.
func (l *Lobby) Winner() Side {
	if HostWins(l.Rounds) {
		return l.Host()
	}
	return l.Opponent()
}

// ViewFor разворачивает раунды в перспективу пользователя.
// Зрители видят бой глазами хоста.
func (l *Lobby) ViewFor(userID int64) []PerspectiveRound {
	role, ok := l.RoleOf(userID)
	if !ok {
		role = RoleHost
	}
	out := make([]PerspectiveRound, 0, len(l.Rounds))
	for _, r := range l.Rounds {
		out = append(out, r.View(role))
	}
	return out
}
