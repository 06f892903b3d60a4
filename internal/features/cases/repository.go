// Package cases — repository.go выполняет операции с таблицами cases и case_drops.
package cases

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/db/postgres"
)

const caseColumns = `id, name, price_usdt, token_symbol, token_price_usdt, rtu_percent,
		       is_active, expires_at, created_at`

// Repository работает с каталогом кейсов.
type Repository struct {
	db postgres.Querier
}

// NewRepository создаёт репозиторий кейсов.
func NewRepository(db postgres.Querier) *Repository {
	return &Repository{db: db}
}

// Get возвращает кейс по ID.
func (r *Repository) Get(ctx context.Context, id string) (*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	c, err := scanCase(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NotFound("кейс %s не найден", id)
		}
		return nil, fmt.Errorf("ошибка получения кейса: %w", err)
	}
	return c, nil
}

// GetMany возвращает кейсы в порядке ids. Повторы в ids допускаются.
// Если хотя бы одного кейса нет — NotFoundError.
func (r *Repository) GetMany(ctx context.Context, ids []string) ([]*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения кейсов: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Case, len(ids))
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования кейса: %w", err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения кейсов: %w", err)
	}

	out := make([]*Case, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, common.NotFound("кейс %s не найден", id)
		}
		out = append(out, c)
	}
	return out, nil
}

// Drops возвращает таблицу призов кейса.
func (r *Repository) Drops(ctx context.Context, caseID string) ([]Drop, error) {
	query := `
		SELECT id, case_id, name, value, currency, rarity, weight
		FROM case_drops
		WHERE case_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения призов кейса: %w", err)
	}
	defer rows.Close()

	var drops []Drop
	for rows.Next() {
		var dr Drop
		if err := rows.Scan(&dr.ID, &dr.CaseID, &dr.Name, &dr.Value, &dr.Currency, &dr.Rarity, &dr.Weight); err != nil {
			return nil, fmt.Errorf("ошибка сканирования приза: %w", err)
		}
		drops = append(drops, dr)
	}
	return drops, rows.Err()
}

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(
		&c.ID, &c.Name, &c.PriceUSDT, &c.TokenSymbol, &c.TokenPriceUSDT, &c.RTUPercent,
		&c.IsActive, &c.ExpiresAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
