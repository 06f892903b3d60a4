// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание отчёта RTU по леджерам.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/case-battles/internal/config"
	"serotonyl.ru/case-battles/internal/features/ledger"
	"serotonyl.ru/case-battles/internal/notify"
)

// Reporter строит отчёт по леджерам. Реализуется ledger.Service.
type Reporter interface {
	Report(ctx context.Context) ([]ledger.ReportRow, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	reporter Reporter
	notifier notify.Notifier
	schedule string
	enabled  bool
	alert    float64
	loc      *time.Location
}

// NewScheduler создаёт планировщик задач в часовом поясе отчётов.
func NewScheduler(reporter Reporter, notifier notify.Notifier, cfg *config.Config, loc *time.Location) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		reporter: reporter,
		notifier: notifier,
		schedule: cfg.RTUReportCron,
		enabled:  cfg.FeatureRTUReportEnabled,
		alert:    cfg.RTUReportDriftAlert,
		loc:      loc,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.enabled {
		log.Info("Отчёт RTU выключен, планировщик не запускается")
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		log.Debug("[CRON] Отчёт RTU")
		if err := s.RunReport(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка отчёта RTU")
		}
	})
	if err != nil {
		return fmt.Errorf("некорректное расписание %q: %w", s.schedule, err)
	}

	s.cron.Start()
	log.Infof("Планировщик задач запущен (%s, %s)", s.schedule, s.loc)
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущей задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// RunReport строит отчёт и отправляет его. Пустой отчёт не отправляется.
func (s *Scheduler) RunReport(ctx context.Context) error {
	rows, err := s.reporter.Report(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Debug("[CRON] Леджеров нет, отчёт пропущен")
		return nil
	}

	text := FormatReport(rows, s.alert, time.Now().In(s.loc))
	return s.notifier.Notify(ctx, text)
}
