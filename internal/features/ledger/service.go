// Package ledger — service.go координирует применение дельт к леджеру.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/db/postgres"
)

// Store — хранилище леджера. Реализуется Repository.
type Store interface {
	EnsureTx(ctx context.Context, q postgres.Querier, d Delta) error
	LockTx(ctx context.Context, q postgres.Querier, key Key) (*Ledger, error)
	UpdateTx(ctx context.Context, q postgres.Querier, l *Ledger) error
	InsertEventTx(ctx context.Context, q postgres.Querier, e *Event) (int64, error)
	Get(ctx context.Context, key Key) (*Ledger, error)
	List(ctx context.Context) ([]*Ledger, error)
	Events(ctx context.Context, key Key, limit int) ([]*Event, error)
}

// Service — единственный владелец строк rtu_ledgers.
// Остальные компоненты только читают леджер или передают дельты.
type Service struct {
	tx     postgres.Transactor
	store  Store
	policy Policy
}

// NewService создаёт сервис леджера. policy == nil — используется IdentityPolicy.
func NewService(tx postgres.Transactor, store Store, policy Policy) *Service {
	if policy == nil {
		policy = IdentityPolicy{}
	}
	return &Service{tx: tx, store: store, policy: policy}
}

// ApplyDelta применяет дельту в собственной транзакции.
func (s *Service) ApplyDelta(ctx context.Context, d Delta) (Snapshot, error) {
	if err := ValidateDelta(d); err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, q postgres.Querier) error {
		var err error
		snap, err = s.ApplyDeltaTx(ctx, q, d)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ApplyDeltaTx применяет дельту внутри транзакции вызывающего кода,
// чтобы запись леджера, событие журнала и сопутствующие изменения
// инвентаря/баланса зафиксировались вместе или не зафиксировались вовсе.
//
// Алгоритм:
//  1. INSERT ... ON CONFLICT DO NOTHING — строка для ключа существует
//  2. SELECT ... FOR UPDATE — сериализуем read-modify-write по ключу
//  3. Пересчитываем итоги и буфер
//  4. UPDATE строки + INSERT события
func (s *Service) ApplyDeltaTx(ctx context.Context, q postgres.Querier, d Delta) (Snapshot, error) {
	if err := ValidateDelta(d); err != nil {
		return Snapshot{}, err
	}

	key := Key{CaseID: d.CaseID, TokenSymbol: d.TokenSymbol}

	if err := s.store.EnsureTx(ctx, q, d); err != nil {
		return Snapshot{}, err
	}
	prior, err := s.store.LockTx(ctx, q, key)
	if err != nil {
		return Snapshot{}, err
	}

	next := Apply(prior, d)
	if err := s.store.UpdateTx(ctx, q, &next); err != nil {
		return Snapshot{}, err
	}

	metadata, err := encodeMetadata(d.Metadata)
	if err != nil {
		return Snapshot{}, err
	}

	eventID, err := s.store.InsertEventTx(ctx, q, &Event{
		LedgerID:       next.ID,
		CaseID:         d.CaseID,
		UserID:         d.UserID,
		TokenSymbol:    d.TokenSymbol,
		Type:           d.Type,
		DeltaSpentUSDT: d.DeltaSpentUSDT,
		DeltaToken:     d.DeltaToken,
		Metadata:       metadata,
	})
	if err != nil {
		return Snapshot{}, err
	}

	log.WithFields(log.Fields{
		"case_id":     d.CaseID,
		"token":       d.TokenSymbol,
		"type":        d.Type,
		"delta_spent": d.DeltaSpentUSDT.String(),
		"delta_token": d.DeltaToken.String(),
		"buffer_debt": next.BufferDebtToken.String(),
	}).Info("Леджер RTU обновлён")

	return Snapshot{
		Ledger:        next,
		AllowedTokens: AllowedTokens(next.TotalSpentUSDT, next.RTUPercent, next.TokenPriceUSDT),
		EventID:       eventID,
	}, nil
}

// LockReserveTx блокирует строку леджера и возвращает текущий резерв (буфер).
// Вызывается до расчёта шанса апгрейда: пока транзакция жива, никто другой
// не прочитает тот же резерв и не получит тот же бонус к шансу.
// Строка создаётся при необходимости с переданной ценой и RTU.
func (s *Service) LockReserveTx(ctx context.Context, q postgres.Querier, key Key, tokenPriceUSDT, rtuPercent decimal.Decimal) (decimal.Decimal, error) {
	seed := Delta{
		CaseID:         key.CaseID,
		TokenSymbol:    key.TokenSymbol,
		Type:           EventAdjust,
		TokenPriceUSDT: tokenPriceUSDT,
		RTUPercent:     rtuPercent,
	}
	if err := ValidateDelta(seed); err != nil {
		return decimal.Zero, err
	}
	if err := s.store.EnsureTx(ctx, q, seed); err != nil {
		return decimal.Zero, err
	}
	l, err := s.store.LockTx(ctx, q, key)
	if err != nil {
		return decimal.Zero, err
	}
	return l.BufferDebtToken, nil
}

// Snapshot возвращает текущее состояние леджера по ключу.
func (s *Service) Snapshot(ctx context.Context, key Key) (Snapshot, error) {
	l, err := s.store.Get(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Ledger:        *l,
		AllowedTokens: AllowedTokens(l.TotalSpentUSDT, l.RTUPercent, l.TokenPriceUSDT),
	}, nil
}

// Reserve возвращает резерв без блокировки; для ключа без строки — 0.
func (s *Service) Reserve(ctx context.Context, key Key) (decimal.Decimal, error) {
	l, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return l.BufferDebtToken, nil
}

// Events возвращает журнал событий по ключу.
func (s *Service) Events(ctx context.Context, key Key, limit int) ([]*Event, error) {
	return s.store.Events(ctx, key, limit)
}

// Verify пересчитывает леджер из журнала и сравнивает с сохранённой строкой.
// Возвращает ошибку, если буфер разошёлся.
func (s *Service) Verify(ctx context.Context, key Key) error {
	l, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	events, err := s.store.Events(ctx, key, 0)
	if err != nil {
		return err
	}

	history := make([]Event, 0, len(events))
	for _, e := range events {
		history = append(history, *e)
	}
	replayed := Replay(history, l.TokenPriceUSDT, l.RTUPercent)

	if !replayed.BufferDebtToken.Round(StoreScale).Equal(l.BufferDebtToken.Round(StoreScale)) {
		return fmt.Errorf("леджер %s/%s разошёлся с журналом: сохранено %s, пересчитано %s",
			key.CaseID, key.TokenSymbol, l.BufferDebtToken, replayed.BufferDebtToken)
	}
	return nil
}

// Report строит отчёт "целевой RTU против фактического" по всем леджерам.
func (s *Service) Report(ctx context.Context) ([]ReportRow, error) {
	ledgers, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]ReportRow, 0, len(ledgers))
	for _, l := range ledgers {
		target := s.policy.DynamicOpenRtuTarget(l.RTUPercent)
		actual := ActualRTU(*l)
		rows = append(rows, ReportRow{
			CaseID:           l.CaseID,
			TokenSymbol:      l.TokenSymbol,
			DeclaredRTU:      l.RTUPercent,
			TargetRTU:        target,
			ActualRTU:        actual,
			Drift:            actual.Sub(target),
			BufferDebtToken:  l.BufferDebtToken,
			TotalSpentUSDT:   l.TotalSpentUSDT,
			TotalTokenIssued: l.TotalTokenIssued,
		})
	}
	return rows, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации метаданных события: %w", err)
	}
	return data, nil
}
