package resolver

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/features/cases"
)

// DropSource отдаёт таблицу призов кейса.
type DropSource interface {
	Drops(ctx context.Context, caseID string) ([]cases.Drop, error)
}

// IntnFunc возвращает случайное число в [0, n).
type IntnFunc func(n int64) (int64, error)

// CryptoIntn — IntnFunc поверх crypto/rand.
func CryptoIntn(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("ошибка генерации случайного числа: %w", err)
	}
	return v.Int64(), nil
}

// Weighted — резолвер по весам из таблицы призов.
// Вероятность приза = weight / сумма весов кейса.
type Weighted struct {
	drops DropSource
	intn  IntnFunc
}

// NewWeighted создаёт резолвер. intn == nil — используется CryptoIntn.
func NewWeighted(drops DropSource, intn IntnFunc) *Weighted {
	if intn == nil {
		intn = CryptoIntn
	}
	return &Weighted{drops: drops, intn: intn}
}

// DrawDrop выбирает один приз кейса.
func (w *Weighted) DrawDrop(ctx context.Context, caseID string) (cases.Drop, error) {
	table, err := w.table(ctx, caseID)
	if err != nil {
		return cases.Drop{}, err
	}
	return w.pick(table)
}

// ResolveDrops выбирает по два приза на каждый кейс: игроку и сопернику.
// В режиме BOT приз бота тянется из того же кейса по тем же весам.
func (w *Weighted) ResolveDrops(ctx context.Context, caseIDs []string, mode Mode) ([]RoundOutcome, error) {
	if !mode.Valid() {
		return nil, common.Validation("неизвестный режим боя %q", mode)
	}

	tables := make(map[string][]cases.Drop, len(caseIDs))
	outcomes := make([]RoundOutcome, 0, len(caseIDs))

	for _, caseID := range caseIDs {
		table, ok := tables[caseID]
		if !ok {
			var err error
			table, err = w.table(ctx, caseID)
			if err != nil {
				return nil, err
			}
			tables[caseID] = table
		}

		user, err := w.pick(table)
		if err != nil {
			return nil, err
		}
		opponent, err := w.pick(table)
		if err != nil {
			return nil, err
		}

		outcomes = append(outcomes, RoundOutcome{
			CaseID:       caseID,
			UserDrop:     user,
			OpponentDrop: opponent,
		})
	}
	return outcomes, nil
}

func (w *Weighted) table(ctx context.Context, caseID string) ([]cases.Drop, error) {
	table, err := w.drops.Drops(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, common.NotFound("у кейса %s нет призов", caseID)
	}
	return table, nil
}

// pick выбирает приз: случайное r в [0, total) и обход накопленных весов.
func (w *Weighted) pick(table []cases.Drop) (cases.Drop, error) {
	var total int64
	for _, d := range table {
		if d.Weight > 0 {
			total += int64(d.Weight)
		}
	}
	if total == 0 {
		return cases.Drop{}, fmt.Errorf("у кейса %s нулевая сумма весов", table[0].CaseID)
	}

	r, err := w.intn(total)
	if err != nil {
		return cases.Drop{}, err
	}

	for _, d := range table {
		if d.Weight <= 0 {
			continue
		}
		if r < int64(d.Weight) {
			return d, nil
		}
		r -= int64(d.Weight)
	}
	return table[len(table)-1], nil
}
