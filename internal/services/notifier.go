package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/config"
)

// telegramMaxText is the longest message the Bot API accepts
const telegramMaxText = 4096

// TelegramNotifier sends alerts through the Telegram Bot API
type TelegramNotifier struct {
	client *resty.Client
	token  string
	chatID string
	logger *logrus.Entry
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramNotifier creates a notifier for cfg. Callers check cfg.Enabled first.
func NewTelegramNotifier(cfg config.NotifyConfig, logger *logrus.Entry) *TelegramNotifier {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.TelegramURL, "/")).
		SetTimeout(cfg.Timeout)

	return &TelegramNotifier{
		client: client,
		token:  cfg.TelegramToken,
		chatID: cfg.TelegramChatID,
		logger: logger,
	}
}

// Notify posts message to the configured chat
func (n *TelegramNotifier) Notify(ctx context.Context, message string) error {
	if len(message) > telegramMaxText {
		message = message[:telegramMaxText]
	}

	var out telegramResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": n.chatID,
			"text":    message,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/bot" + n.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("send telegram message: %w", redactToken(err, n.token))
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("send telegram message: status %d: %s", resp.StatusCode(), out.Description)
	}

	n.logger.Debug("Alert delivered")
	return nil
}

// redactToken keeps the bot token out of transport errors, which embed the URL
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

// NotifyStartupFailure sends a one-line alert for a configuration or storage
// error that stops the process before any run. Delivery is best effort and
// failures are only logged.
func NotifyStartupFailure(ctx context.Context, cfg config.NotifyConfig, logger *logrus.Entry, cause error) {
	if !cfg.Enabled() {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTTL)
	defer cancel()

	message := fmt.Sprintf("quote-harvester: startup failed: %v", cause)
	if err := NewTelegramNotifier(cfg, logger).Notify(actx, message); err != nil {
		logger.WithError(err).Warn("Failed to deliver startup alert")
	}
}

// NoopNotifier discards alerts when no transport is configured
type NoopNotifier struct {
	logger *logrus.Entry
}

func NewNoopNotifier(logger *logrus.Entry) *NoopNotifier {
	return &NoopNotifier{logger: logger}
}

func (n *NoopNotifier) Notify(_ context.Context, message string) error {
	n.logger.WithField("message", message).Debug("Alert dropped, notifier not configured")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*NoopNotifier)(nil)
)
