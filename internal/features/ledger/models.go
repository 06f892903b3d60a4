// Package ledger реализует учёт RTU (Return-To-User) по паре (кейс, токен).
// models.go описывает все структуры данных леджера.
package ledger

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventType — тип экономического события в журнале.
type EventType string

const (
	EventAdjust  EventType = "ADJUST"  // Ручная корректировка
	EventUpgrade EventType = "UPGRADE" // Апгрейд предметов
	EventBattle  EventType = "BATTLE"  // Бой (вход, выигрыш, возврат в резерв)
	EventOpen    EventType = "OPEN"    // Открытие кейса
)

// Valid проверяет, что тип события известен.
func (t EventType) Valid() bool {
	switch t {
	case EventAdjust, EventUpgrade, EventBattle, EventOpen:
		return true
	}
	return false
}

// Key — ключ строки леджера. На каждый ключ не больше одной строки.
type Key struct {
	CaseID      string
	TokenSymbol string
}

// Ledger — строка таблицы rtu_ledgers.
type Ledger struct {
	ID               int64           `db:"id"`
	CaseID           string          `db:"case_id"`
	TokenSymbol      string          `db:"token_symbol"`
	TokenPriceUSDT   decimal.Decimal `db:"token_price_usdt"`   // Цена токена на момент последней записи
	RTUPercent       decimal.Decimal `db:"rtu_percent"`        // Заявленный RTU кейса на момент последней записи
	TotalSpentUSDT   decimal.Decimal `db:"total_spent_usdt"`   // Сколько игроки потратили всего
	TotalTokenIssued decimal.Decimal `db:"total_token_issued"` // Сколько токенов выплачено всего
	BufferDebtToken  decimal.Decimal `db:"buffer_debt_token"`  // allowed - issued, производное поле
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// Key возвращает ключ строки.
func (l *Ledger) Key() Key {
	return Key{CaseID: l.CaseID, TokenSymbol: l.TokenSymbol}
}

// Snapshot — состояние леджера после применения дельты.
type Snapshot struct {
	Ledger
	AllowedTokens decimal.Decimal // Сколько токенов разрешено выплатить при текущем RTU
	EventID       int64           // ID записанного события (0, если события не было)
}

// Delta — входные данные одного экономического события.
type Delta struct {
	CaseID         string
	TokenSymbol    string
	UserID         *int64 // nil для системных событий
	Type           EventType
	DeltaSpentUSDT decimal.Decimal
	DeltaToken     decimal.Decimal // Может быть отрицательной: токены вернулись в резерв
	TokenPriceUSDT decimal.Decimal
	RTUPercent     decimal.Decimal
	Metadata       map[string]any // Диагностика: шанс, покрытие резерва и т.д.
}

// Event — неизменяемая запись журнала rtu_events.
type Event struct {
	ID             int64           `db:"id"`
	LedgerID       int64           `db:"ledger_id"`
	CaseID         string          `db:"case_id"`
	UserID         *int64          `db:"user_id"`
	TokenSymbol    string          `db:"token_symbol"`
	Type           EventType       `db:"type"`
	DeltaSpentUSDT decimal.Decimal `db:"delta_spent_usdt"`
	DeltaToken     decimal.Decimal `db:"delta_token"`
	Metadata       json.RawMessage `db:"metadata"`
	CreatedAt      time.Time       `db:"created_at"`
}

// ReportRow — строка отчёта "целевой RTU против фактического".
type ReportRow struct {
	CaseID           string
	TokenSymbol      string
	DeclaredRTU      decimal.Decimal // RTU из настроек кейса
	TargetRTU        decimal.Decimal // RTU по динамической политике
	ActualRTU        decimal.Decimal // issued * price / spent * 100
	Drift            decimal.Decimal // ActualRTU - TargetRTU, в процентных пунктах
	BufferDebtToken  decimal.Decimal
	TotalSpentUSDT   decimal.Decimal
	TotalTokenIssued decimal.Decimal
}
