package inventory

import (
	"context"

	"serotonyl.ru/case-battles/internal/common"
)

// Service отдаёт инвентарь игрока.
type Service struct {
	repo *Repository
}

// NewService создаёт сервис инвентаря.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// ListActive возвращает активные предметы игрока.
func (s *Service) ListActive(ctx context.Context, userID int64) ([]*Item, error) {
	if userID <= 0 {
		return nil, common.Validation("некорректный userId")
	}
	return s.repo.ListActive(ctx, userID)
}
