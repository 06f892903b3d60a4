// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, применяет миграции, собирает
// репозитории, сервисы и планировщик в один объект App.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/config"
	"serotonyl.ru/case-battles/internal/db/postgres"
	"serotonyl.ru/case-battles/internal/features/battle"
	"serotonyl.ru/case-battles/internal/features/cases"
	"serotonyl.ru/case-battles/internal/features/economy"
	"serotonyl.ru/case-battles/internal/features/inventory"
	"serotonyl.ru/case-battles/internal/features/ledger"
	"serotonyl.ru/case-battles/internal/features/odds"
	"serotonyl.ru/case-battles/internal/features/opening"
	"serotonyl.ru/case-battles/internal/features/resolver"
	"serotonyl.ru/case-battles/internal/features/upgrade"
	"serotonyl.ru/case-battles/internal/jobs"
	"serotonyl.ru/case-battles/internal/notify"
)

// App содержит все компоненты приложения.
type App struct {
	DB        *pgxpool.Pool
	Scheduler *jobs.Scheduler

	Cases     *cases.Service
	Economy   *economy.Service
	Inventory *inventory.Service
	Ledger    *ledger.Service
	Openings  *opening.Service
	Upgrades  *upgrade.Service
	Battles   *battle.Service
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	if err := postgres.Migrate(ctx, cfg.DatabaseDSN()); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	txManager := postgres.NewTxManager(pool)
	loc := common.LoadLocation(cfg.AppTimezone)

	// === 2. Репозитории ===
	casesRepo := cases.NewRepository(pool)
	economyRepo := economy.NewRepository(pool)
	inventoryRepo := inventory.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	battleRepo := battle.NewRepository(pool)

	// === 3. Сервисы ===
	casesService := cases.NewService(casesRepo)
	economyService := economy.NewService(txManager, economyRepo, loc)
	inventoryService := inventory.NewService(inventoryRepo)
	ledgerService := ledger.NewService(txManager, ledgerRepo, nil)
	drops := resolver.NewWeighted(casesService, nil)
	engine := odds.NewEngine(nil)

	openingService := opening.NewService(opening.Deps{
		Tx:      txManager,
		Catalog: casesService,
		Drawer:  drops,
		Wallet:  economyRepo,
		Items:   inventoryRepo,
		Ledger:  ledgerService,
	})

	upgradeService := upgrade.NewService(upgrade.Deps{
		Tx:      txManager,
		Catalog: casesService,
		Items:   inventoryRepo,
		Ledger:  ledgerService,
		Journal: economyRepo,
		Odds:    engine,
	}, cfg)

	battleService := battle.NewService(battle.Deps{
		Tx:       txManager,
		Store:    battleRepo,
		Catalog:  casesService,
		Resolver: drops,
		Wallet:   economyRepo,
		Items:    inventoryRepo,
		Ledger:   ledgerService,
	}, cfg)

	// === 4. Уведомления и планировщик ===
	notifier, err := notify.New(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	scheduler := jobs.NewScheduler(ledgerService, notifier, cfg, loc)

	log.WithFields(log.Fields{
		"env":      cfg.AppEnv,
		"battles":  cfg.FeatureBattlesEnabled,
		"upgrades": cfg.FeatureUpgradesEnabled,
		"report":   cfg.FeatureRTUReportEnabled,
	}).Info("Приложение собрано")

	return &App{
		DB:        pool,
		Scheduler: scheduler,
		Cases:     casesService,
		Economy:   economyService,
		Inventory: inventoryService,
		Ledger:    ledgerService,
		Openings:  openingService,
		Upgrades:  upgradeService,
		Battles:   battleService,
	}, nil
}

// Close освобождает ресурсы приложения.
func (a *App) Close() {
	a.DB.Close()
}
