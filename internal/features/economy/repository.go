// Package economy — repository.go выполняет все операции с таблицами balances и transactions.
// Методы с суффиксом Tx работают внутри транзакции вызывающего кода,
// чтобы списание фиксировалось вместе с предметами и леджером.
package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/db/postgres"
)

// Repository предоставляет методы для работы с балансами и транзакциями.
type Repository struct {
	db postgres.Querier
}

// NewRepository создаёт новый репозиторий экономики.
func NewRepository(db postgres.Querier) *Repository {
	return &Repository{db: db}
}

// EnsureBalanceTx создаёт нулевой баланс, если записи ещё нет.
func (r *Repository) EnsureBalanceTx(ctx context.Context, q postgres.Querier, userID int64) error {
	query := `
		INSERT INTO balances (user_id, balance, total_deposited, total_spent)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := q.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("ошибка создания баланса: %w", err)
	}
	return nil
}

// GetBalance возвращает баланс пользователя.
func (r *Repository) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	query := `
		SELECT user_id, balance, total_deposited, total_spent, created_at, updated_at
		FROM balances
		WHERE user_id = $1
	`
	var b Balance
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&b.UserID, &b.Balance, &b.TotalDeposited, &b.TotalSpent, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NotFound("баланс пользователя %d не найден", userID)
		}
		return nil, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return &b, nil
}

// CreditTx зачисляет USDT на счёт и записывает транзакцию.
func (r *Repository) CreditTx(ctx context.Context, q postgres.Querier, userID int64, amount decimal.Decimal, txType, description string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO balances (user_id, balance, total_deposited, total_spent)
		VALUES ($1, $2, $2, 0)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = balances.balance + EXCLUDED.balance,
		    total_deposited = balances.total_deposited + EXCLUDED.balance,
		    updated_at = NOW()
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("ошибка начисления: %w", err)
	}
	return r.RecordTx(ctx, q, userID, amount, txType, description)
}

// DeductTx списывает USDT со счёта и возвращает новый баланс.
// Строка баланса блокируется (FOR UPDATE), поэтому два параллельных списания
// не уведут баланс в минус.
func (r *Repository) DeductTx(ctx context.Context, q postgres.Querier, userID int64, amount decimal.Decimal, txType, description string) (decimal.Decimal, error) {
	var current decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT balance FROM balances WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, &common.InsufficientBalanceError{
				Msg: fmt.Sprintf("у пользователя %d нет баланса", userID),
			}
		}
		return decimal.Zero, fmt.Errorf("ошибка получения баланса: %w", err)
	}

	if current.LessThan(amount) {
		return decimal.Zero, &common.InsufficientBalanceError{
			Msg: fmt.Sprintf("недостаточно средств: нужно %s, есть %s", amount, current),
		}
	}

	_, err = q.Exec(ctx, `
		UPDATE balances
		SET balance = balance - $2, total_spent = total_spent + $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка списания: %w", err)
	}

	if err := r.RecordTx(ctx, q, userID, amount.Neg(), txType, description); err != nil {
		return decimal.Zero, err
	}
	return current.Sub(amount), nil
}

// RecordTx записывает транзакцию в историю без изменения баланса.
func (r *Repository) RecordTx(ctx context.Context, q postgres.Querier, userID int64, amount decimal.Decimal, txType, description string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO transactions (user_id, amount, transaction_type, description)
		VALUES ($1, $2, $3, $4)
	`, userID, amount, txType, description)
	if err != nil {
		return fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return nil
}

// GetTransactions возвращает последние N транзакций пользователя.
func (r *Repository) GetTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	query := `
		SELECT id, user_id, amount, transaction_type, COALESCE(description, ''), created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		var t Transaction
		err := rows.Scan(
			&t.ID, &t.UserID, &t.Amount, &t.TransactionType, &t.Description, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		transactions = append(transactions, &t)
	}
	return transactions, rows.Err()
}
