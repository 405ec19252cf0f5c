package notify

import "github.com/soochol/actionplan/internal/config"

// New builds the Notifier the channel configured in cfg selects, or nil
// when no channel is configured. A nil Notifier is a valid no-op value:
// callers must check for it before calling Notify.
func New(cfg config.NotifyConfig) Notifier {
	switch cfg.Channel {
	case "slack":
		return &SlackNotifier{WebhookURL: cfg.SlackWebhookURL, Channel: cfg.SlackChannel}
	case "telegram":
		return &TelegramNotifier{BotToken: cfg.TelegramBotToken, ChatID: cfg.TelegramChatID}
	case "smtp":
		return &SMTPNotifier{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			To:       cfg.SMTPTo,
			Password: cfg.SMTPPassword,
		}
	default:
		return nil
	}
}
