// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"cases"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"case_battles"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Battles ---
	// Максимум кейсов (раундов) в одном лобби
	BattleMaxCases int `envconfig:"BATTLE_MAX_CASES" default:"25"`

	// --- Upgrades ---
	// Сколько предметов можно сжечь за один апгрейд
	UpgradeMaxInputItems int `envconfig:"UPGRADE_MAX_INPUT_ITEMS" default:"10"`

	// --- RTU report ---
	RTUReportCron string `envconfig:"RTU_REPORT_CRON" default:"0 * * * *"`
	// Отклонение фактического RTU от целевого (в процентных пунктах), после которого строка помечается
	RTUReportDriftAlert float64 `envconfig:"RTU_REPORT_DRIFT_ALERT" default:"5"`

	// --- Telegram (уведомления админам, необязательно) ---
	TelegramBotToken     string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramReportChatID int64  `envconfig:"TELEGRAM_REPORT_CHAT_ID"`

	// --- Feature Flags ---
	FeatureBattlesEnabled   bool `envconfig:"FEATURE_BATTLES_ENABLED" default:"true"`
	FeatureUpgradesEnabled  bool `envconfig:"FEATURE_UPGRADES_ENABLED" default:"true"`
	FeatureRTUReportEnabled bool `envconfig:"FEATURE_RTU_REPORT_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// TelegramEnabled — заданы ли токен и чат для отчётов.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramReportChatID != 0
}

func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.BattleMaxCases <= 0 {
		return fmt.Errorf("BATTLE_MAX_CASES должен быть > 0")
	}
	if c.UpgradeMaxInputItems <= 0 {
		return fmt.Errorf("UPGRADE_MAX_INPUT_ITEMS должен быть > 0")
	}
	if c.RTUReportDriftAlert < 0 {
		return fmt.Errorf("RTU_REPORT_DRIFT_ALERT не может быть отрицательным")
	}
	if c.FeatureRTUReportEnabled {
		if _, err := cron.ParseStandard(c.RTUReportCron); err != nil {
			return fmt.Errorf("RTU_REPORT_CRON: %w", err)
		}
	}
	if (c.TelegramBotToken == "") != (c.TelegramReportChatID == 0) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN и TELEGRAM_REPORT_CHAT_ID задаются вместе")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
