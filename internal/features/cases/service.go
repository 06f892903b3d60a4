// Package cases — service.go содержит проверки каталога, общие для открытий и боёв.
package cases

import (
	"context"
	"time"

	"serotonyl.ru/case-battles/internal/common"
)

// Store — хранилище каталога. Реализуется Repository.
type Store interface {
	Get(ctx context.Context, id string) (*Case, error)
	GetMany(ctx context.Context, ids []string) ([]*Case, error)
	Drops(ctx context.Context, caseID string) ([]Drop, error)
}

// Service отдаёт кейсы, пригодные для открытия.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(store Store) *Service {
	return &Service{store: store, now: common.Now}
}

// Openable возвращает кейс, если он активен и не истёк.
func (s *Service) Openable(ctx context.Context, id string) (*Case, error) {
	if id == "" {
		return nil, common.Validation("не указан caseId")
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Openable(s.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// OpenableMany возвращает кейсы в порядке ids, проверяя каждый.
func (s *Service) OpenableMany(ctx context.Context, ids []string) ([]*Case, error) {
	for _, id := range ids {
		if id == "" {
			return nil, common.Validation("не указан caseId")
		}
	}
	list, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, c := range list {
		if err := c.Openable(now); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Drops возвращает таблицу призов кейса.
func (s *Service) Drops(ctx context.Context, caseID string) ([]Drop, error) {
	return s.store.Drops(ctx, caseID)
}

// GetMany возвращает кейсы без проверки активности.
// Нужен для расчётов по уже начатым боям, когда кейс мог истечь.
func (s *Service) GetMany(ctx context.Context, ids []string) ([]*Case, error) {
	return s.store.GetMany(ctx, ids)
}

// Get возвращает кейс без проверки активности.
func (s *Service) Get(ctx context.Context, id string) (*Case, error) {
	if id == "" {
		return nil, common.Validation("не указан caseId")
	}
	return s.store.Get(ctx, id)
}
