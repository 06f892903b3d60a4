// Package cases описывает каталог кейсов и их таблицы призов.
// models.go описывает все структуры данных кейсов.
package cases

import (
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/case-battles/internal/common"
)

// Case — кейс из каталога.
type Case struct {
	ID             string              `db:"id"`
	Name           string              `db:"name"`
	PriceUSDT      decimal.Decimal     `db:"price_usdt"`       // Стоимость открытия
	TokenSymbol    string              `db:"token_symbol"`     // Токен, в котором номинированы призы
	TokenPriceUSDT decimal.NullDecimal `db:"token_price_usdt"` // Цена токена (может быть не задана)
	RTUPercent     decimal.Decimal     `db:"rtu_percent"`      // Заявленный RTU
	IsActive       bool                `db:"is_active"`
	ExpiresAt      *time.Time          `db:"expires_at"`
	CreatedAt      time.Time           `db:"created_at"`
}

// HasTokenPrice — задана ли положительная цена токена.
// Без цены события кейса не попадают в леджер RTU.
func (c *Case) HasTokenPrice() bool {
	return c.TokenPriceUSDT.Valid && c.TokenPriceUSDT.Decimal.IsPositive()
}

// Openable проверяет, что кейс активен и не истёк на момент now.
func (c *Case) Openable(now time.Time) error {
	if !c.IsActive {
		return common.Validation("кейс %s неактивен", c.ID)
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return common.Validation("срок действия кейса %s истёк", c.ID)
	}
	return nil
}

// Drop — строка таблицы призов кейса.
type Drop struct {
	ID       int64           `db:"id"`
	CaseID   string          `db:"case_id"`
	Name     string          `db:"name"`
	Value    decimal.Decimal `db:"value"`    // Стоимость приза в токенах кейса
	Currency string          `db:"currency"` // Символ токена
	Rarity   string          `db:"rarity"`
	Weight   int             `db:"weight"` // Вес (вероятность выпадения)
}
