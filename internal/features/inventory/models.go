// Package inventory управляет предметами игроков.
// models.go описывает предмет инвентаря и его жизненный цикл ACTIVE → BURNT.
package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status — состояние предмета.
type Status string

const (
	StatusActive Status = "ACTIVE" // Предмет у игрока
	StatusBurnt  Status = "BURNT"  // Сожжён в апгрейде или бою, больше не меняется
)

// Source — откуда предмет появился.
type Source string

const (
	SourceOpen    Source = "OPEN"
	SourceUpgrade Source = "UPGRADE"
	SourceBattle  Source = "BATTLE"
)

// Item — предмет в инвентаре игрока.
type Item struct {
	ID        uuid.UUID       `db:"id"`
	UserID    int64           `db:"user_id"`
	CaseID    *string         `db:"case_id"` // nil, если предмет не привязан к кейсу
	Name      string          `db:"name"`
	Value     decimal.Decimal `db:"value"`
	Currency  string          `db:"currency"`
	Rarity    string          `db:"rarity"`
	Status    Status          `db:"status"`
	Source    Source          `db:"source"`
	CreatedAt time.Time       `db:"created_at"`
	BurntAt   *time.Time      `db:"burnt_at"`
}

// NewItem подготавливает новый активный предмет.
func NewItem(userID int64, caseID *string, name string, value decimal.Decimal, currency, rarity string, source Source) *Item {
	return &Item{
		ID:       uuid.New(),
		UserID:   userID,
		CaseID:   caseID,
		Name:     name,
		Value:    value,
		Currency: currency,
		Rarity:   rarity,
		Status:   StatusActive,
		Source:   source,
	}
}

// TotalValue суммирует стоимость предметов.
func TotalValue(items []*Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Value)
	}
	return total
}
