// Package economy — service.go содержит бизнес-логику экономики:
// пополнения, получение баланса и истории транзакций.
package economy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/db/postgres"
)

// Store — хранилище балансов. Реализуется Repository.
type Store interface {
	CreditTx(ctx context.Context, q postgres.Querier, userID int64, amount decimal.Decimal, txType, description string) error
	GetBalance(ctx context.Context, userID int64) (*Balance, error)
	GetTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error)
}

// Service управляет балансами игроков.
type Service struct {
	tx    postgres.Transactor
	store Store
	loc   *time.Location
}

// NewService создаёт новый сервис экономики.
func NewService(tx postgres.Transactor, store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{tx: tx, store: store, loc: loc}
}

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	return s.store.GetBalance(ctx, userID)
}

// Deposit зачисляет USDT на счёт игрока.
func (s *Service) Deposit(ctx context.Context, userID int64, amount decimal.Decimal, description string) error {
	if userID <= 0 {
		return common.Validation("некорректный userId")
	}
	if !amount.IsPositive() {
		return common.Validation("сумма пополнения должна быть положительной")
	}
	if description == "" {
		description = "Пополнение " + common.FormatUSDT(amount)
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, q postgres.Querier) error {
		return s.store.CreditTx(ctx, q, userID, amount, TxTypeDeposit, description)
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount.String(),
	}).Info("Баланс пополнен")
	return nil
}

// GetTransactionHistory возвращает форматированную историю транзакций.
// Последние 10 транзакций, новые сверху.
func (s *Service) GetTransactionHistory(ctx context.Context, userID int64) (string, error) {
	transactions, err := s.store.GetTransactions(ctx, userID, 10)
	if err != nil {
		return "", err
	}

	if len(transactions) == 0 {
		return "📋 Транзакций пока нет", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Последние %d транзакций:\n\n", len(transactions)))
	for i, tx := range transactions {
		sb.WriteString(fmt.Sprintf("%d. %s | %s USDT | %s\n",
			i+1,
			common.FormatDateTime(tx.CreatedAt, s.loc),
			common.FormatSigned(tx.Amount, 2),
			tx.Description,
		))
	}
	return sb.String(), nil
}
