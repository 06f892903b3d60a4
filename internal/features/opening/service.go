// Package opening реализует открытие кейса: списание цены, розыгрыш приза,
// выдачу предмета и запись события OPEN в леджер RTU.
package opening

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/db/postgres"
	"serotonyl.ru/case-battles/internal/features/cases"
	"serotonyl.ru/case-battles/internal/features/economy"
	"serotonyl.ru/case-battles/internal/features/inventory"
	"serotonyl.ru/case-battles/internal/features/ledger"
)

// Catalog — каталог кейсов. Реализуется cases.Service.
type Catalog interface {
	Openable(ctx context.Context, id string) (*cases.Case, error)
}

// Drawer выбирает приз кейса. Реализуется resolver.Weighted.
type Drawer interface {
	DrawDrop(ctx context.Context, caseID string) (cases.Drop, error)
}

// Wallet — списание цены кейса. Реализуется economy.Repository.
type Wallet interface {
	DeductTx(ctx context.Context, q postgres.Querier, userID int64, amount decimal.Decimal, txType, description string) (decimal.Decimal, error)
}

// Items — выдача предмета. Реализуется inventory.Repository.
type Items interface {
	CreateTx(ctx context.Context, q postgres.Querier, it *inventory.Item) error
}

// Ledger — учёт RTU. Реализуется ledger.Service.
type Ledger interface {
	ApplyDeltaTx(ctx context.Context, q postgres.Querier, d ledger.Delta) (ledger.Snapshot, error)
}

// Deps — зависимости сервиса открытий.
type Deps struct {
	Tx      postgres.Transactor
	Catalog Catalog
	Drawer  Drawer
	Wallet  Wallet
	Items   Items
	Ledger  Ledger
}

// Result — итог открытия.
type Result struct {
	Case    *cases.Case
	Item    *inventory.Item
	Balance decimal.Decimal  // Баланс после списания
	Ledger  *ledger.Snapshot // nil, если у кейса нет цены токена
}

// Service открывает кейсы.
type Service struct {
	Deps
}

// NewService создаёт сервис открытий.
func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

// Open открывает кейс за счёт игрока.
func (s *Service) Open(ctx context.Context, userID int64, caseID string) (*Result, error) {
	if userID <= 0 {
		return nil, common.Validation("некорректный userId")
	}

	c, err := s.Catalog.Openable(ctx, caseID)
	if err != nil {
		return nil, err
	}

	var result Result
	err = s.Tx.WithinTransaction(ctx, func(ctx context.Context, q postgres.Querier) error {
		balance, err := s.Wallet.DeductTx(ctx, q, userID, c.PriceUSDT, economy.TxTypeCaseOpen,
			fmt.Sprintf("Открытие кейса %s", c.Name))
		if err != nil {
			return err
		}

		drop, err := s.Drawer.DrawDrop(ctx, c.ID)
		if err != nil {
			return err
		}

		caseRef := c.ID
		item := inventory.NewItem(userID, &caseRef, drop.Name, drop.Value, drop.Currency, drop.Rarity, inventory.SourceOpen)
		if err := s.Items.CreateTx(ctx, q, item); err != nil {
			return err
		}

		result = Result{Case: c, Item: item, Balance: balance}

		// Без цены токена событие не попадает в леджер
		if !c.HasTokenPrice() {
			log.WithField("case_id", c.ID).Warn("У кейса нет цены токена, открытие не учтено в леджере")
			return nil
		}

		snap, err := s.Ledger.ApplyDeltaTx(ctx, q, ledger.Delta{
			CaseID:         c.ID,
			TokenSymbol:    c.TokenSymbol,
			UserID:         &userID,
			Type:           ledger.EventOpen,
			DeltaSpentUSDT: c.PriceUSDT,
			DeltaToken:     drop.Value,
			TokenPriceUSDT: c.TokenPriceUSDT.Decimal,
			RTUPercent:     c.RTUPercent,
			Metadata: map[string]any{
				"item_id": item.ID.String(),
				"drop_id": drop.ID,
				"drop":    drop.Name,
			},
		})
		if err != nil {
			return err
		}
		result.Ledger = &snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"case_id": c.ID,
		"drop":    result.Item.Name,
		"value":   result.Item.Value.String(),
	}).Info("Кейс открыт")

	return &result, nil
}
