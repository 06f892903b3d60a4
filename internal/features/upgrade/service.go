// Package upgrade реализует апгрейд предметов: игрок сжигает предметы
// и с шансом получает один предмет стоимостью base × multiplier.
// Шанс зависит от резерва леджера RTU кейса.
package upgrade

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/config"
	"serotonyl.ru/case-battles/internal/db/postgres"
	"serotonyl.ru/case-battles/internal/features/cases"
	"serotonyl.ru/case-battles/internal/features/economy"
	"serotonyl.ru/case-battles/internal/features/inventory"
	"serotonyl.ru/case-battles/internal/features/ledger"
	"serotonyl.ru/case-battles/internal/features/odds"
)

// Catalog — каталог кейсов. Реализуется cases.Service.
type Catalog interface {
	Get(ctx context.Context, id string) (*cases.Case, error)
}

// Items — инвентарь. Реализуется inventory.Repository.
type Items interface {
	LockActiveTx(ctx context.Context, q postgres.Querier, userID int64, ids []uuid.UUID) ([]*inventory.Item, error)
	BurnTx(ctx context.Context, q postgres.Querier, ids []uuid.UUID) error
	CreateTx(ctx context.Context, q postgres.Querier, it *inventory.Item) error
}

// Ledger — учёт RTU. Реализуется ledger.Service.
type Ledger interface {
	LockReserveTx(ctx context.Context, q postgres.Querier, key ledger.Key, tokenPriceUSDT, rtuPercent decimal.Decimal) (decimal.Decimal, error)
	ApplyDeltaTx(ctx context.Context, q postgres.Querier, d ledger.Delta) (ledger.Snapshot, error)
}

// Journal — история операций игрока. Реализуется economy.Repository.
type Journal interface {
	RecordTx(ctx context.Context, q postgres.Querier, userID int64, amount decimal.Decimal, txType, description string) error
}

// Evaluator считает шанс и бросает кубик. Реализуется odds.Engine.
type Evaluator interface {
	Evaluate(multiplier, baseValue, targetValue, reserveToken decimal.Decimal) (odds.Outcome, error)
}

// Deps — зависимости сервиса апгрейдов.
type Deps struct {
	Tx      postgres.Transactor
	Catalog Catalog
	Items   Items
	Ledger  Ledger
	Journal Journal
	Odds    Evaluator
}

// Request — запрос на апгрейд.
type Request struct {
	UserID     int64
	ItemIDs    []uuid.UUID
	Multiplier decimal.Decimal
	CaseID     string // Кейс, резерв которого покрывает апгрейд
}

// Result — итог апгрейда.
type Result struct {
	Outcome     odds.Outcome
	BaseValue   decimal.Decimal
	TargetValue decimal.Decimal
	Burnt       []*inventory.Item
	Created     *inventory.Item // nil при неудаче
	Ledger      ledger.Snapshot
}

// Service выполняет апгрейды.
type Service struct {
	Deps
	maxItems int
	enabled  bool
}

// NewService создаёт сервис апгрейдов.
func NewService(deps Deps, cfg *config.Config) *Service {
	return &Service{
		Deps:     deps,
		maxItems: cfg.UpgradeMaxInputItems,
		enabled:  cfg.FeatureUpgradesEnabled,
	}
}

// Upgrade выполняет апгрейд.
//
// Все проверки, включая потолок шанса, выполняются до транзакции:
// отклонённый апгрейд ничего не меняет. Внутри одной транзакции:
//  1. блокируем входные предметы и проверяем их токен и кейс
//  2. блокируем строку леджера и читаем резерв
//  3. считаем шанс и бросаем кубик
//  4. сжигаем входные предметы, при успехе создаём новый
//  5. пишем дельту UPGRADE в леджер и запись в историю
func (s *Service) Upgrade(ctx context.Context, req Request) (*Result, error) {
	if !s.enabled {
		return nil, common.ErrFeatureDisabled
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := odds.CheckMultiplier(req.Multiplier); err != nil {
		return nil, err
	}

	c, err := s.Catalog.Get(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	if !c.HasTokenPrice() {
		return nil, common.Validation("у кейса %s не задана цена токена", c.ID)
	}

	var result Result
	err = s.Tx.WithinTransaction(ctx, func(ctx context.Context, q postgres.Querier) error {
		items, err := s.Items.LockActiveTx(ctx, q, req.UserID, req.ItemIDs)
		if err != nil {
			return err
		}
		if err := checkItems(items, c); err != nil {
			return err
		}
		base := inventory.TotalValue(items)
		target := base.Mul(req.Multiplier)

		key := ledger.Key{CaseID: c.ID, TokenSymbol: c.TokenSymbol}
		reserve, err := s.Ledger.LockReserveTx(ctx, q, key, c.TokenPriceUSDT.Decimal, c.RTUPercent)
		if err != nil {
			return err
		}

		outcome, err := s.Odds.Evaluate(req.Multiplier, base, target, reserve)
		if err != nil {
			return err
		}

		if err := s.Items.BurnTx(ctx, q, req.ItemIDs); err != nil {
			return err
		}

		var created *inventory.Item
		if outcome.Success {
			caseID := c.ID
			created = inventory.NewItem(req.UserID, &caseID,
				fmt.Sprintf("%s ×%s", c.TokenSymbol, req.Multiplier.String()),
				target, c.TokenSymbol, "upgrade", inventory.SourceUpgrade)
			if err := s.Items.CreateTx(ctx, q, created); err != nil {
				return err
			}
		}

		userID := req.UserID
		snap, err := s.Ledger.ApplyDeltaTx(ctx, q, ledger.Delta{
			CaseID:         c.ID,
			TokenSymbol:    c.TokenSymbol,
			UserID:         &userID,
			Type:           ledger.EventUpgrade,
			DeltaSpentUSDT: decimal.Zero,
			DeltaToken:     odds.LedgerDelta(outcome.Success, base, target),
			TokenPriceUSDT: c.TokenPriceUSDT.Decimal,
			RTUPercent:     c.RTUPercent,
			Metadata: map[string]any{
				"multiplier":      req.Multiplier.String(),
				"base_value":      base.String(),
				"target_value":    target.String(),
				"base_chance":     outcome.Chance.Base.String(),
				"adjusted_chance": outcome.Chance.Adjusted.String(),
				"coverage":        outcome.Chance.Coverage.String(),
				"reserve":         reserve.String(),
				"roll":            outcome.Roll.String(),
				"success":         outcome.Success,
				"item_ids":        itemIDStrings(req.ItemIDs),
			},
		})
		if err != nil {
			return err
		}

		description := fmt.Sprintf("Апгрейд ×%s: неудача", req.Multiplier)
		if outcome.Success {
			description = fmt.Sprintf("Апгрейд ×%s: успех", req.Multiplier)
		}
		if err := s.Journal.RecordTx(ctx, q, req.UserID, decimal.Zero, economy.TxTypeUpgrade, description); err != nil {
			return err
		}

		result = Result{
			Outcome:     outcome,
			BaseValue:   base,
			TargetValue: target,
			Burnt:       items,
			Created:     created,
			Ledger:      snap,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":         req.UserID,
		"case_id":         c.ID,
		"multiplier":      req.Multiplier.String(),
		"adjusted_chance": result.Outcome.Chance.Adjusted.String(),
		"success":         result.Outcome.Success,
	}).Info("Апгрейд выполнен")

	return &result, nil
}

func (s *Service) validate(req Request) error {
	if req.UserID <= 0 {
		return common.Validation("некорректный userId")
	}
	if req.CaseID == "" {
		return common.Validation("не указан caseId")
	}
	if len(req.ItemIDs) == 0 {
		return common.Validation("не выбраны предметы для апгрейда")
	}
	if len(req.ItemIDs) > s.maxItems {
		return common.Validation("за один апгрейд можно сжечь не больше %d предметов", s.maxItems)
	}
	seen := make(map[uuid.UUID]struct{}, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		if _, ok := seen[id]; ok {
			return common.Validation("предмет %s указан дважды", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// checkItems требует, чтобы все входные предметы были в токене кейса
// и не принадлежали другому кейсу: резерв леджера меряется в единицах своего токена.
func checkItems(items []*inventory.Item, c *cases.Case) error {
	for _, it := range items {
		if it.Currency != c.TokenSymbol {
			return common.Validation("предмет %s в %s, а апгрейд кейса %s идёт в %s",
				it.ID, it.Currency, c.ID, c.TokenSymbol)
		}
		if it.CaseID != nil && *it.CaseID != c.ID {
			return common.Validation("предмет %s из кейса %s нельзя апгрейдить за резерв кейса %s",
				it.ID, *it.CaseID, c.ID)
		}
	}
	return nil
}

func itemIDStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
