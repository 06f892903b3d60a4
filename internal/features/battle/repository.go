// Package battle — repository.go выполняет операции с таблицей battle_lobbies.
package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/db/postgres"
)

const lobbyColumns = `id, host_user_id, host_name, joiner_user_id, joiner_name, case_ids, mode,
		       status, rounds_json, winner_name, total_cost, created_at, started_at, finished_at`

// Repository работает с лобби боёв в БД.
type Repository struct {
	db postgres.Querier
}

// NewRepository создаёт репозиторий боёв.
func NewRepository(db postgres.Querier) *Repository {
	return &Repository{db: db}
}

// Create сохраняет новое лобби.
func (r *Repository) Create(ctx context.Context, l *Lobby) error {
	query := `
		INSERT INTO battle_lobbies (id, host_user_id, host_name, case_ids, mode, status, total_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		l.ID.String(), l.HostUserID, l.HostName, l.CaseIDs,
		string(l.Mode), string(l.Status), l.TotalCost,
	).Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания лобби: %w", err)
	}
	return nil
}

// Get возвращает лобби без блокировки.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Lobby, error) {
	query := `SELECT ` + lobbyColumns + ` FROM battle_lobbies WHERE id = $1`
	l, err := scanLobby(r.db.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NotFound("лобби %s не найдено", id)
		}
		return nil, fmt.Errorf("ошибка получения лобби: %w", err)
	}
	return l, nil
}

// LockTx читает лобби с блокировкой FOR UPDATE.
// Два параллельных старта одного лобби выполняются строго по очереди,
// второй увидит уже обновлённый статус.
func (r *Repository) LockTx(ctx context.Context, q postgres.Querier, id uuid.UUID) (*Lobby, error) {
	query := `SELECT ` + lobbyColumns + ` FROM battle_lobbies WHERE id = $1 FOR UPDATE`
	l, err := scanLobby(q.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NotFound("лобби %s не найдено", id)
		}
		return nil, fmt.Errorf("ошибка блокировки лобби: %w", err)
	}
	return l, nil
}

// UpdateTx сохраняет изменяемые поля лобби.
func (r *Repository) UpdateTx(ctx context.Context, q postgres.Querier, l *Lobby) error {
	var rounds []byte
	if l.Rounds != nil {
		var err error
		rounds, err = json.Marshal(l.Rounds)
		if err != nil {
			return fmt.Errorf("ошибка сериализации раундов: %w", err)
		}
	}

	query := `
		UPDATE battle_lobbies
		SET joiner_user_id = $2, joiner_name = $3, status = $4, rounds_json = $5,
		    winner_name = $6, started_at = $7, finished_at = $8
		WHERE id = $1
	`
	tag, err := q.Exec(ctx, query,
		l.ID.String(), l.JoinerUserID, l.JoinerName, string(l.Status), rounds,
		l.WinnerName, l.StartedAt, l.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления лобби: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return common.NotFound("лобби %s не найдено", l.ID)
	}
	return nil
}

// ListOpen возвращает открытые лобби, новые сверху.
func (r *Repository) ListOpen(ctx context.Context, limit int) ([]*Lobby, error) {
	query := `SELECT ` + lobbyColumns + `
		FROM battle_lobbies
		WHERE status = 'OPEN'
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения лобби: %w", err)
	}
	defer rows.Close()

	var lobbies []*Lobby
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования лобби: %w", err)
		}
		lobbies = append(lobbies, l)
	}
	return lobbies, rows.Err()
}

func scanLobby(row pgx.Row) (*Lobby, error) {
	var l Lobby
	var mode, status string
	var rounds []byte
	err := row.Scan(
		&l.ID, &l.HostUserID, &l.HostName, &l.JoinerUserID, &l.JoinerName, &l.CaseIDs, &mode,
		&status, &rounds, &l.WinnerName, &l.TotalCost, &l.CreatedAt, &l.StartedAt, &l.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Mode = Mode(mode)
	l.Status = Status(status)

	if len(rounds) > 0 {
		if err := json.Unmarshal(rounds, &l.Rounds); err != nil {
			return nil, fmt.Errorf("повреждённые раунды лобби %s: %w", l.ID, err)
		}
	}
	return &l, nil
}
