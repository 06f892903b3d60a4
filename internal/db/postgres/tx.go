// Package postgres — tx.go содержит менеджер транзакций.
// Все экономические действия (открытие кейса, апгрейд, старт и финиш боя)
// выполняются внутри одной транзакции: либо применяется всё, либо ничего.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

// Querier — общее подмножество методов pgxpool.Pool и pgx.Tx.
// Репозитории принимают Querier, чтобы одинаково работать
// и вне транзакции, и внутри неё.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner умеет открывать транзакции (pgxpool.Pool, pgxmock).
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxFunc — тело транзакции.
type TxFunc func(ctx context.Context, q Querier) error

// Transactor выполняет функцию внутри транзакции.
// Сервисы зависят от интерфейса, чтобы в тестах подставлять фейки.
type Transactor interface {
	WithinTransaction(ctx context.Context, txFn TxFunc) error
}

// TxManager — Transactor поверх pgx.
//
// Уровень изоляции — READ COMMITTED: сериализация read-modify-write
// по ключу обеспечивается блокировкой строки (SELECT ... FOR UPDATE),
// после снятия блокировки конкурент перечитывает свежую версию строки.
type TxManager struct {
	txBeginner TxBeginner
}

// NewTxManager создаёт менеджер транзакций.
func NewTxManager(txBeginner TxBeginner) *TxManager {
	return &TxManager{txBeginner: txBeginner}
}

// WithinTransaction открывает транзакцию, выполняет txFn и фиксирует результат.
// Любая ошибка txFn откатывает транзакцию целиком.
func (tm *TxManager) WithinTransaction(ctx context.Context, txFn TxFunc) error {
	tx, err := tm.txBeginner.BeginTx(ctx, pgx.TxOptions{
		IsoLevel: pgx.ReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	defer func() {
		// Откатываем транзакцию, если что-то пошло не так
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.WithError(err).Error("Ошибка отката транзакции")
		}
	}()

	if err := txFn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}
