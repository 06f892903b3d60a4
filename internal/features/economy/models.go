// Package economy управляет балансами игроков в USDT.
// models.go описывает структуры для балансов и транзакций.
package economy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance представляет баланс пользователя.
// Каждый игрок имеет ровно одну запись в таблице balances.
type Balance struct {
	UserID         int64           `db:"user_id"`         // ID игрока
	Balance        decimal.Decimal `db:"balance"`         // Текущий баланс, USDT
	TotalDeposited decimal.Decimal `db:"total_deposited"` // Сколько всего зачислено
	TotalSpent     decimal.Decimal `db:"total_spent"`     // Сколько всего потрачено на кейсы и бои
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Transaction представляет одну операцию с балансом.
// Списания записываются с отрицательной суммой.
type Transaction struct {
	ID              int64           `db:"id"`
	UserID          int64           `db:"user_id"`
	Amount          decimal.Decimal `db:"amount"`
	TransactionType string          `db:"transaction_type"` // Тип: 'deposit', 'case_open', 'battle_entry', ...
	Description     string          `db:"description"`
	CreatedAt       time.Time       `db:"created_at"`
}

// Типы транзакций
const (
	TxTypeDeposit     = "deposit"      // Пополнение
	TxTypeCaseOpen    = "case_open"    // Открытие кейса
	TxTypeBattleEntry = "battle_entry" // Вход в бой
	TxTypeUpgrade     = "upgrade"      // Апгрейд (баланс не меняется, только запись)
	TxTypeAdminGive   = "admin_give"   // Выдача админом
)
