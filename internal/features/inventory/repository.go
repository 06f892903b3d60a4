// Package inventory — repository.go выполняет операции с таблицей inventory_items.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/db/postgres"
)

const itemColumns = `id, user_id, case_id, name, value, currency, rarity, status, source, created_at, burnt_at`

// Repository работает с инвентарём в БД.
type Repository struct {
	db postgres.Querier
}

// NewRepository создаёт репозиторий инвентаря.
func NewRepository(db postgres.Querier) *Repository {
	return &Repository{db: db}
}

// CreateTx сохраняет новый предмет.
func (r *Repository) CreateTx(ctx context.Context, q postgres.Querier, it *Item) error {
	query := `
		INSERT INTO inventory_items (id, user_id, case_id, name, value, currency, rarity, status, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := q.QueryRow(ctx, query,
		it.ID.String(), it.UserID, it.CaseID, it.Name, it.Value,
		it.Currency, it.Rarity, string(it.Status), string(it.Source),
	).Scan(&it.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания предмета: %w", err)
	}
	return nil
}

// LockActiveTx блокирует предметы игрока (FOR UPDATE) и проверяет,
// что все они существуют, принадлежат ему и ещё не сожжены.
func (r *Repository) LockActiveTx(ctx context.Context, q postgres.Querier, userID int64, ids []uuid.UUID) ([]*Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE user_id = $1 AND id = ANY($2::uuid[])
		ORDER BY id
		FOR UPDATE
	`
	rows, err := q.Query(ctx, query, userID, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки предметов: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	if len(items) != len(ids) {
		return nil, common.NotFound("найдено %d из %d предметов", len(items), len(ids))
	}
	for _, it := range items {
		if it.Status != StatusActive {
			return nil, common.Conflict("предмет %s уже сожжён", it.ID)
		}
	}
	return items, nil
}

// BurnTx переводит предметы в BURNT. Уже сожжённые не трогает.
func (r *Repository) BurnTx(ctx context.Context, q postgres.Querier, ids []uuid.UUID) error {
	query := `
		UPDATE inventory_items
		SET status = 'BURNT', burnt_at = NOW()
		WHERE id = ANY($1::uuid[]) AND status = 'ACTIVE'
	`
	tag, err := q.Exec(ctx, query, uuidStrings(ids))
	if err != nil {
		return fmt.Errorf("ошибка сжигания предметов: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return common.Conflict("сожжено %d из %d предметов", tag.RowsAffected(), len(ids))
	}
	return nil
}

// ListActive возвращает активные предметы игрока, новые сверху.
func (r *Repository) ListActive(ctx context.Context, userID int64) ([]*Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE user_id = $1 AND status = 'ACTIVE'
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения инвентаря: %w", err)
	}
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]*Item, error) {
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		var status, source string
		err := rows.Scan(
			&it.ID, &it.UserID, &it.CaseID, &it.Name, &it.Value, &it.Currency,
			&it.Rarity, &status, &source, &it.CreatedAt, &it.BurntAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования предмета: %w", err)
		}
		it.Status = Status(status)
		it.Source = Source(source)
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения предметов: %w", err)
	}
	return items, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
