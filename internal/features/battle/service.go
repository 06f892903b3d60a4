// Package battle — service.go содержит машину состояний лобби
// и расчёт боя: списание входа, розыгрыш раундов, выдачу призов.
package battle

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

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
	"serotonyl.ru/case-battles/internal/features/resolver"
)

// Store — хранилище лобби. Реализуется Repository.
type Store interface {
	Create(ctx context.Context, l *Lobby) error
	Get(ctx context.Context, id uuid.UUID) (*Lobby, error)
	LockTx(ctx context.Context, q postgres.Querier, id uuid.UUID) (*Lobby, error)
	UpdateTx(ctx context.Context, q postgres.Querier, l *Lobby) error
	ListOpen(ctx context.Context, limit int) ([]*Lobby, error)
}

// Catalog — каталог кейсов. Реализуется cases.Service.
type Catalog interface {
	OpenableMany(ctx context.Context, ids []string) ([]*cases.Case, error)
	GetMany(ctx context.Context, ids []string) ([]*cases.Case, error)
}

// Wallet — списание входа в бой. Реализуется economy.Repository.
type Wallet interface {
	DeductTx(ctx context.Context, q postgres.Querier, userID int64, amount decimal.Decimal, txType, description string) (decimal.Decimal, error)
}

// Items — выдача призов. Реализуется inventory.Repository.
type Items interface {
	CreateTx(ctx context.Context, q postgres.Querier, it *inventory.Item) error
}

// Ledger — учёт RTU. Реализуется ledger.Service.
type Ledger interface {
	ApplyDeltaTx(ctx context.Context, q postgres.Querier, d ledger.Delta) (ledger.Snapshot, error)
}

// Deps — зависимости сервиса боёв.
type Deps struct {
	Tx       postgres.Transactor
	Store    Store
	Catalog  Catalog
	Resolver resolver.Resolver
	Wallet   Wallet
	Items    Items
	Ledger   Ledger
}

// Service управляет лобби боёв.
type Service struct {
	Deps
	maxCases int
	enabled  bool
	now      func() time.Time
}

// NewService создаёт сервис боёв.
func NewService(deps Deps, cfg *config.Config) *Service {
	return &Service{
		Deps:     deps,
		maxCases: cfg.BattleMaxCases,
		enabled:  cfg.FeatureBattlesEnabled,
		now:      common.Now,
	}
}

// Create создаёт открытое лобби.
// Повторы caseIDs удаляются с сохранением порядка.
func (s *Service) Create(ctx context.Context, host HumanSide, caseIDs []string, mode Mode) (*Lobby, error) {
	if !s.enabled {
		return nil, common.ErrFeatureDisabled
	}
	if host.UserID <= 0 || host.Name == "" {
		return nil, common.Validation("не указан хост лобби")
	}
	if !mode.Valid() {
		return nil, common.Validation("неизвестный режим боя %q", mode)
	}

	ids := dedupe(caseIDs)
	if len(ids) == 0 {
		return nil, common.Validation("в бою должен быть хотя бы один кейс")
	}
	if len(ids) > s.maxCases {
		return nil, common.Validation("в бою не больше %d кейсов", s.maxCases)
	}

	list, err := s.Catalog.OpenableMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, c := range list {
		total = total.Add(c.PriceUSDT)
	}

	l := &Lobby{
		ID:         uuid.New(),
		HostUserID: host.UserID,
		HostName:   host.Name,
		CaseIDs:    ids,
		Mode:       mode,
		Status:     StatusOpen,
		TotalCost:  total,
	}
	if err := s.Store.Create(ctx, l); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"lobby_id":   l.ID,
		"host":       host.UserID,
		"mode":       mode,
		"cases":      len(ids),
		"total_cost": total.String(),
	}).Info("Лобби создано")
	return l, nil
}

// Get возвращает лобби.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Lobby, error) {
	return s.Store.Get(ctx, id)
}

// ListOpen возвращает открытые лобби.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]*Lobby, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Store.ListOpen(ctx, limit)
}

// View возвращает лобби и его раунды глазами пользователя.
func (s *Service) View(ctx context.Context, id uuid.UUID, viewerID int64) (*Lobby, []PerspectiveRound, error) {
	l, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return l, l.ViewFor(viewerID), nil
}

// Join добавляет второго игрока в PVP-лобби.
func (s *Service) Join(ctx context.Context, id uuid.UUID, actor HumanSide) (*Lobby, error) {
	if !s.enabled {
		return nil, common.ErrFeatureDisabled
	}
	if actor.UserID <= 0 || actor.Name == "" {
		return nil, common.Validation("не указан игрок")
	}

	var result *Lobby
	err := s.Tx.WithinTransaction(ctx, func(ctx context.Context, q postgres.Querier) error {
		l, err := s.Store.LockTx(ctx, q, id)
		if err != nil {
			return err
		}
		result = l

		// Хост в своём лобби: ничего не меняем в любом состоянии
		if actor.UserID == l.HostUserID {
			return nil
		}
		if l.Status != StatusOpen {
			return common.Conflict("лобби %s уже не принимает игроков", id)
		}
		if l.Mode == ModeBot {
			return common.Conflict("в бой с ботом нельзя войти")
		}
		if l.JoinerUserID != nil {
			if *l.JoinerUserID == actor.UserID {
				return nil
			}
			return common.Conflict("в лобби %s уже есть соперник", id)
		}

		l.JoinerUserID = &actor.UserID
		l.JoinerName = &actor.Name
		return s.Store.UpdateTx(ctx, q, l)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Start начинает бой.
//
// Если лобби уже начато или завершено, возвращает текущее состояние:
// второй клик "старт" не списывает вход повторно и не перекидывает раунды.
func (s *Service) Start(ctx context.Context, id uuid.UUID, actorID int64) (*Lobby, error) {
	if !s.enabled {
		return nil, common.ErrFeatureDisabled
	}

	var result *Lobby
	started := false
	err := s.Tx.WithinTransaction(ctx, func(ctx context.Context, q postgres.Querier) error {
		l, err := s.Store.LockTx(ctx, q, id)
		if err != nil {
			return err
		}
		result = l

		if l.Status != StatusOpen {
			return nil
		}

		role, ok := l.RoleOf(actorID)
		if !ok {
			if l.Mode == ModePVP && l.JoinerUserID == nil {
				return common.Conflict("лобби %s ждёт соперника", id)
			}
			return common.Forbidden("пользователь %d не участник лобби %s", actorID, id)
		}
		if l.Mode == ModePVP && role == RoleHost {
			return common.ErrHostCannotStartPvp
		}
		if len(l.CaseIDs) == 0 {
			return common.Validation("в лобби %s нет кейсов", id)
		}

		list, err := s.Catalog.OpenableMany(ctx, l.CaseIDs)
		if err != nil {
			return err
		}
		if err := s.chargeEntry(ctx, q, l, list); err != nil {
			return err
		}

		rounds, err := ResolveCanonicalRounds(ctx, s.Resolver, l.CaseIDs, l.Mode, role)
		if err != nil {
			return err
		}

		now := s.now()
		l.Rounds = rounds
		l.Status = StatusInProgress
		l.StartedAt = &now
		if err := s.Store.UpdateTx(ctx, q, l); err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if started {
		host, joiner := Totals(result.Rounds)
		log.WithFields(log.Fields{
			"lobby_id":     result.ID,
			"starter":      actorID,
			"rounds":       len(result.Rounds),
			"host_total":   host.String(),
			"joiner_total": joiner.String(),
		}).Info("Бой начат")
	}
	return result, nil
}

// Finish завершает бой. Победитель определяется по раундам.
func (s *Service) Finish(ctx context.Context, id uuid.UUID, actorID int64) (*Lobby, error) {
	return s.finish(ctx, id, actorID, "")
}

// FinishWithWinner завершает бой с именем победителя, посчитанным клиентом.
// Имя обязано совпасть с победителем по сохранённым раундам.
func (s *Service) FinishWithWinner(ctx context.Context, id uuid.UUID, actorID int64, winnerName string) (*Lobby, error) {
	if winnerName == "" {
		return nil, common.Validation("не указан победитель")
	}
	return s.finish(ctx, id, actorID, winnerName)
}

func (s *Service) finish(ctx context.Context, id uuid.UUID, actorID int64, claimed string) (*Lobby, error) {
	var result *Lobby
	finished := false
	err := s.Tx.WithinTransaction(ctx, func(ctx context.Context, q postgres.Querier) error {
		l, err := s.Store.LockTx(ctx, q, id)
		if err != nil {
			return err
		}
		result = l

		if l.Status == StatusFinished {
			return nil
		}
		if _, ok := l.RoleOf(actorID); !ok {
			return common.Forbidden("пользователь %d не участник лобби %s", actorID, id)
		}

		var winner string
		switch l.Status {
		case StatusOpen:
			// Бой не разыгран: призов нет, имя победителя только фиксируем
			if claimed != "" {
				if !l.isParticipantName(claimed) {
					return common.Validation("%q не участник лобби", claimed)
				}
				winner = claimed
			}
		case StatusInProgress:
			side := l.Winner()
			if side == nil {
				return common.Conflict("у лобби %s нет соперника", id)
			}
			if claimed != "" && claimed != side.Label() {
				return common.Validation("победитель %q не совпадает с итогом боя", claimed)
			}
			if err := s.settle(ctx, q, l, side); err != nil {
				return err
			}
			winner = side.Label()
		}

		now := s.now()
		l.Status = StatusFinished
		l.FinishedAt = &now
		if winner != "" {
			l.WinnerName = &winner
		}
		if err := s.Store.UpdateTx(ctx, q, l); err != nil {
			return err
		}
		finished = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if finished {
		fields := log.Fields{"lobby_id": result.ID, "actor": actorID}
		if result.WinnerName != nil {
			fields["winner"] = *result.WinnerName
		}
		log.WithFields(fields).Info("Бой завершён")
	}
	return result, nil
}

// chargeEntry списывает вход с каждого живого игрока
// и записывает траты в леджер каждого кейса раунда.
// Балансы списываются по возрастанию userID, строки леджера блокируются
// в порядке ключей: два боя с теми же игроками и кейсами в другом порядке
// не ждут друг друга по кругу.
func (s *Service) chargeEntry(ctx context.Context, q postgres.Querier, l *Lobby, list []*cases.Case) error {
	humans := l.Humans()
	slices.SortFunc(humans, func(a, b HumanSide) int { return cmp.Compare(a.UserID, b.UserID) })

	description := fmt.Sprintf("Вход в бой %s", l.ID)
	var deltas []ledger.Delta
	for _, h := range humans {
		if _, err := s.Wallet.DeductTx(ctx, q, h.UserID, l.TotalCost, economy.TxTypeBattleEntry, description); err != nil {
			return err
		}

		for _, c := range list {
			if !c.HasTokenPrice() {
				log.WithField("case_id", c.ID).Warn("У кейса нет цены токена, вход не учтён в леджере")
				continue
			}
			userID := h.UserID
			deltas = append(deltas, ledger.Delta{
				CaseID:         c.ID,
				TokenSymbol:    c.TokenSymbol,
				UserID:         &userID,
				Type:           ledger.EventBattle,
				DeltaSpentUSDT: c.PriceUSDT,
				DeltaToken:     decimal.Zero,
				TokenPriceUSDT: c.TokenPriceUSDT.Decimal,
				RTUPercent:     c.RTUPercent,
				Metadata:       map[string]any{"lobby_id": l.ID.String(), "stage": "entry"},
			})
		}
	}
	return s.applyDeltas(ctx, q, deltas)
}

// settle раздаёт призы победителю.
//
// Живой победитель забирает призы обеих сторон в инвентарь,
// каждый приз кейса выпускает токены (+value) в леджер.
// Если победил бот, призы игрока возвращаются в резерв (-value), в инвентарь ничего не попадает.
func (s *Service) settle(ctx context.Context, q postgres.Querier, l *Lobby, winner Side) error {
	list, err := s.Catalog.GetMany(ctx, l.CaseIDs)
	if err != nil {
		return err
	}
	byID := make(map[string]*cases.Case, len(list))
	for _, c := range list {
		byID[c.ID] = c
	}

	var deltas []ledger.Delta
	switch w := winner.(type) {
	case HumanSide:
		for _, r := range l.Rounds {
			for _, d := range []Drop{r.HostDrop, r.JoinerDrop} {
				if err := s.award(ctx, q, w, d); err != nil {
					return err
				}
				if delta, ok := ledgerDrop(l, w.UserID, d, d.Value, "award", byID); ok {
					deltas = append(deltas, delta)
				}
			}
		}
	case BotSide:
		host := l.Host()
		for _, r := range l.Rounds {
			if delta, ok := ledgerDrop(l, host.UserID, r.HostDrop, r.HostDrop.Value.Neg(), "reserve_return", byID); ok {
				deltas = append(deltas, delta)
			}
		}
	default:
		return fmt.Errorf("неизвестная сторона боя %T", winner)
	}
	return s.applyDeltas(ctx, q, deltas)
}

func (s *Service) award(ctx context.Context, q postgres.Querier, w HumanSide, d Drop) error {
	var caseID *string
	if d.CaseID != "" {
		id := d.CaseID
		caseID = &id
	}
	item := inventory.NewItem(w.UserID, caseID, d.Name, d.Value, d.Currency, d.Rarity, inventory.SourceBattle)
	return s.Items.CreateTx(ctx, q, item)
}

// applyDeltas пишет дельты в леджер, упорядочив их по ключу (кейс, токен).
// Порядок дельт внутри одного ключа сохраняется.
func (s *Service) applyDeltas(ctx context.Context, q postgres.Querier, deltas []ledger.Delta) error {
	slices.SortStableFunc(deltas, func(a, b ledger.Delta) int {
		if c := cmp.Compare(a.CaseID, b.CaseID); c != 0 {
			return c
		}
		return cmp.Compare(a.TokenSymbol, b.TokenSymbol)
	})
	for _, delta := range deltas {
		if _, err := s.Ledger.ApplyDeltaTx(ctx, q, delta); err != nil {
			return err
		}
	}
	return nil
}

// ledgerDrop готовит дельту леджера для приза кейса. Призы без кейса и кейсы без цены токена пропускаются.
func ledgerDrop(l *Lobby, userID int64, d Drop, deltaToken decimal.Decimal, stage string, byID map[string]*cases.Case) (ledger.Delta, bool) {
	if d.CaseID == "" {
		return ledger.Delta{}, false
	}
	c, ok := byID[d.CaseID]
	if !ok || !c.HasTokenPrice() {
		log.WithField("case_id", d.CaseID).Warn("Приз боя не учтён в леджере: нет цены токена")
		return ledger.Delta{}, false
	}

	return ledger.Delta{
		CaseID:         c.ID,
		TokenSymbol:    c.TokenSymbol,
		UserID:         &userID,
		Type:           ledger.EventBattle,
		DeltaSpentUSDT: decimal.Zero,
		DeltaToken:     deltaToken,
		TokenPriceUSDT: c.TokenPriceUSDT.Decimal,
		RTUPercent:     c.RTUPercent,
		Metadata: map[string]any{
			"lobby_id": l.ID.String(),
			"stage":    stage,
			"drop":     d.Name,
		},
	}, true
}

func (l *Lobby) isParticipantName(name string) bool {
	if name == l.HostName {
		return true
	}
	if o := l.Opponent(); o != nil && o.Label() == name {
		return true
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
