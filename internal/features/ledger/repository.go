// Package ledger — repository.go выполняет операции с таблицами rtu_ledgers и rtu_events.
// Методы с суффиксом Tx работают внутри транзакции вызывающего кода.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/db/postgres"
)

const ledgerColumns = `id, case_id, token_symbol, token_price_usdt, rtu_percent,
		       total_spent_usdt, total_token_issued, buffer_debt_token, created_at, updated_at`

// Repository работает с таблицами леджера в БД.
type Repository struct {
	db postgres.Querier
}

// NewRepository создаёт репозиторий леджера.
func NewRepository(db postgres.Querier) *Repository {
	return &Repository{db: db}
}

// EnsureTx создаёт пустую строку для ключа, если её ещё нет.
// UNIQUE (case_id, token_symbol) гарантирует не больше одной строки на ключ
// даже при гонке двух первых событий.
func (r *Repository) EnsureTx(ctx context.Context, q postgres.Querier, d Delta) error {
	query := `
		INSERT INTO rtu_ledgers (case_id, token_symbol, token_price_usdt, rtu_percent,
		                         total_spent_usdt, total_token_issued, buffer_debt_token)
		VALUES ($1, $2, $3, $4, 0, 0, 0)
		ON CONFLICT (case_id, token_symbol) DO NOTHING
	`
	_, err := q.Exec(ctx, query, d.CaseID, d.TokenSymbol, d.TokenPriceUSDT, d.RTUPercent)
	if err != nil {
		return fmt.Errorf("ошибка создания строки леджера: %w", err)
	}
	return nil
}

// LockTx читает строку леджера с блокировкой FOR UPDATE.
// Конкурентная транзакция по тому же ключу ждёт до нашего COMMIT/ROLLBACK.
func (r *Repository) LockTx(ctx context.Context, q postgres.Querier, key Key) (*Ledger, error) {
	query := `SELECT ` + ledgerColumns + `
		FROM rtu_ledgers
		WHERE case_id = $1 AND token_symbol = $2
		FOR UPDATE
	`
	l, err := scanLedger(q.QueryRow(ctx, query, key.CaseID, key.TokenSymbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NotFound("леджер %s/%s не найден", key.CaseID, key.TokenSymbol)
		}
		return nil, fmt.Errorf("ошибка блокировки строки леджера: %w", err)
	}
	return l, nil
}

// UpdateTx сохраняет новое состояние строки леджера.
func (r *Repository) UpdateTx(ctx context.Context, q postgres.Querier, l *Ledger) error {
	query := `
		UPDATE rtu_ledgers
		SET token_price_usdt = $2, rtu_percent = $3,
		    total_spent_usdt = $4, total_token_issued = $5, buffer_debt_token = $6,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := q.Exec(ctx, query,
		l.ID, l.TokenPriceUSDT, l.RTUPercent,
		l.TotalSpentUSDT, l.TotalTokenIssued, l.BufferDebtToken,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления леджера: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("ошибка обновления леджера: затронуто строк %d", tag.RowsAffected())
	}
	return nil
}

// InsertEventTx добавляет запись в журнал событий и возвращает её ID.
func (r *Repository) InsertEventTx(ctx context.Context, q postgres.Querier, e *Event) (int64, error) {
	query := `
		INSERT INTO rtu_events (ledger_id, case_id, user_id, token_symbol, type,
		                        delta_spent_usdt, delta_token, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var id int64
	err := q.QueryRow(ctx, query,
		e.LedgerID, e.CaseID, e.UserID, e.TokenSymbol, string(e.Type),
		e.DeltaSpentUSDT, e.DeltaToken, e.Metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи события леджера: %w", err)
	}
	return id, nil
}

// Get возвращает строку леджера без блокировки.
func (r *Repository) Get(ctx context.Context, key Key) (*Ledger, error) {
	query := `SELECT ` + ledgerColumns + `
		FROM rtu_ledgers
		WHERE case_id = $1 AND token_symbol = $2
	`
	l, err := scanLedger(r.db.QueryRow(ctx, query, key.CaseID, key.TokenSymbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NotFound("леджер %s/%s не найден", key.CaseID, key.TokenSymbol)
		}
		return nil, fmt.Errorf("ошибка получения леджера: %w", err)
	}
	return l, nil
}

// List возвращает все строки леджера (для отчётов).
func (r *Repository) List(ctx context.Context) ([]*Ledger, error) {
	query := `SELECT ` + ledgerColumns + `
		FROM rtu_ledgers
		ORDER BY case_id, token_symbol
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения леджеров: %w", err)
	}
	defer rows.Close()

	var ledgers []*Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования леджера: %w", err)
		}
		ledgers = append(ledgers, l)
	}
	return ledgers, rows.Err()
}

// Events возвращает журнал событий по ключу в порядке записи.
// limit <= 0 — без ограничения.
func (r *Repository) Events(ctx context.Context, key Key, limit int) ([]*Event, error) {
	query := `
		SELECT e.id, e.ledger_id, e.case_id, e.user_id, e.token_symbol, e.type,
		       e.delta_spent_usdt, e.delta_token, e.metadata, e.created_at
		FROM rtu_events e
		WHERE e.case_id = $1 AND e.token_symbol = $2
		ORDER BY e.id
	`
	args := []any{key.CaseID, key.TokenSymbol}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения событий леджера: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var eventType string
		err := rows.Scan(
			&e.ID, &e.LedgerID, &e.CaseID, &e.UserID, &e.TokenSymbol, &eventType,
			&e.DeltaSpentUSDT, &e.DeltaToken, &e.Metadata, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования события: %w", err)
		}
		e.Type = EventType(eventType)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func scanLedger(row pgx.Row) (*Ledger, error) {
	var l Ledger
	err := row.Scan(
		&l.ID, &l.CaseID, &l.TokenSymbol, &l.TokenPriceUSDT, &l.RTUPercent,
		&l.TotalSpentUSDT, &l.TotalTokenIssued, &l.BufferDebtToken,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
