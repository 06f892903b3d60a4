// Package battle — canonical.go переводит раунды резолвера в форму хост/соперник.
//
// Резолвер отвечает от лица того, кто запустил бой (user/opponent).
// В БД храним только каноническую форму (hostDrop/joinerDrop),
// а перспективу зрителя строим при чтении.
package battle

import (
	"context"

	"github.com/shopspring/decimal"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/features/cases"
	"serotonyl.ru/case-battles/internal/features/resolver"
)

// Drop — приз раунда в том виде, в котором он хранится в rounds_json.
type Drop struct {
	CaseID   string          `json:"caseId,omitempty"`
	Name     string          `json:"name"`
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
	Rarity   string          `json:"rarity"`
}

// DropFrom копирует приз из каталога.
func DropFrom(d cases.Drop) Drop {
	return Drop{
		CaseID:   d.CaseID,
		Name:     d.Name,
		Value:    d.Value,
		Currency: d.Currency,
		Rarity:   d.Rarity,
	}
}

// CanonicalRound — раунд в терминах хост/соперник.
type CanonicalRound struct {
	CaseID     string `json:"caseId"`
	HostDrop   Drop   `json:"hostDrop"`
	JoinerDrop Drop   `json:"joinerDrop"`
}

// PerspectiveRound — раунд глазами конкретного участника.
type PerspectiveRound struct {
	CaseID       string
	UserDrop     Drop
	OpponentDrop Drop
}

// View возвращает раунд с точки зрения роли.
func (r CanonicalRound) View(role Role) PerspectiveRound {
	if role == RoleJoiner {
		return PerspectiveRound{CaseID: r.CaseID, UserDrop: r.JoinerDrop, OpponentDrop: r.HostDrop}
	}
	return PerspectiveRound{CaseID: r.CaseID, UserDrop: r.HostDrop, OpponentDrop: r.JoinerDrop}
}

// ResolveCanonicalRounds разыгрывает раунды и приводит их к канонической форме.
//
// Резолвер обязан вернуть ровно len(caseIDs) раундов. Иначе — ResolveFailedError:
// подставлять недостающие призы нельзя, это испортит учёт RTU.
func ResolveCanonicalRounds(ctx context.Context, r resolver.Resolver, caseIDs []string, mode Mode, starter Role) ([]CanonicalRound, error) {
	if len(caseIDs) == 0 {
		return nil, common.Validation("в бою нет кейсов")
	}

	outcomes, err := r.ResolveDrops(ctx, caseIDs, mode)
	if err != nil {
		return nil, err
	}
	if len(outcomes) != len(caseIDs) {
		return nil, &common.ResolveFailedError{
			Msg: "резолвер вернул неверное число раундов",
		}
	}
	return Canonicalize(outcomes, caseIDs, mode, starter), nil
}

// Canonicalize приводит раунды резолвера к форме хост/соперник.
// В режиме BOT хост всегда живой игрок, поэтому перестановки нет.
func Canonicalize(outcomes []resolver.RoundOutcome, caseIDs []string, mode Mode, starter Role) []CanonicalRound {
	swap := mode == ModePVP && starter == RoleJoiner

	rounds := make([]CanonicalRound, 0, len(outcomes))
	for i, o := range outcomes {
		user, opponent := DropFrom(o.UserDrop), DropFrom(o.OpponentDrop)
		round := CanonicalRound{CaseID: caseIDs[i], HostDrop: user, JoinerDrop: opponent}
		if swap {
			round.HostDrop, round.JoinerDrop = opponent, user
		}
		rounds = append(rounds, round)
	}
	return rounds
}

// Totals суммирует стоимость призов каждой стороны.
func Totals(rounds []CanonicalRound) (host, joiner decimal.Decimal) {
	host, joiner = decimal.Zero, decimal.Zero
	for _, r := range rounds {
		host = host.Add(r.HostDrop.Value)
		joiner = joiner.Add(r.JoinerDrop.Value)
	}
	return host, joiner
}

// HostWins — единственное место, где решается исход: hostTotal >= joinerTotal.
func HostWins(rounds []CanonicalRound) bool {
	host, joiner := Totals(rounds)
	return host.GreaterThanOrEqual(joiner)
}
