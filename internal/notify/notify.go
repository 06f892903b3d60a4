// Package notify доставляет служебные сообщения администраторам.
// Основной канал — Telegram-чат; без токена сообщения пишутся в лог.
package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/case-battles/internal/config"
)

// Notifier отправляет текстовое сообщение.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Sender — подмножество telego.Bot, которое нужно уведомителю.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramNotifier пишет в один заранее заданный чат.
type TelegramNotifier struct {
	sender Sender
	chatID int64
}

// NewTelegramNotifier создаёт уведомитель поверх готового отправителя.
func NewTelegramNotifier(sender Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatID: chatID}
}

// Notify отправляет сообщение в чат отчётов.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	msg := tu.Message(tu.ID(n.chatID), text)
	if _, err := n.sender.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("ошибка отправки в Telegram (чат %d): %w", n.chatID, err)
	}
	return nil
}

// LogNotifier пишет сообщения в лог.
type LogNotifier struct{}

// Notify логирует сообщение.
func (LogNotifier) Notify(_ context.Context, text string) error {
	log.WithField("channel", "log").Info(text)
	return nil
}

// New выбирает канал по конфигурации.
func New(cfg *config.Config) (Notifier, error) {
	if !cfg.TelegramEnabled() {
		log.Warn("Telegram не настроен, отчёты пишутся в лог")
		return LogNotifier{}, nil
	}

	bot, err := telego.NewBot(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	log.Infof("Отчёты RTU отправляются в чат %d", cfg.TelegramReportChatID)
	return NewTelegramNotifier(bot, cfg.TelegramReportChatID), nil
}
