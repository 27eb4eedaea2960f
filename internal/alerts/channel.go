package alerts

import (
	"context"
	"fmt"

	"WhalePulse/internal/domain/models"
	xhttp "WhalePulse/pkg/http"
)

// Channel delivers one alert to one notification target. Implementations
// are external collaborators and may fail independently.
type Channel interface {
	Name() string
	Send(ctx context.Context, rec *models.AlertRecord) error
}

// TelegramChannel posts alerts through the Telegram Bot API.
type TelegramChannel struct {
	botToken string
	chatID   string
	client   *xhttp.Client
}

func NewTelegramChannel(botToken, chatID string, client *xhttp.Client) *TelegramChannel {
	return &TelegramChannel{botToken: botToken, chatID: chatID, client: client}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, rec *models.AlertRecord) error {
	text := fmt.Sprintf("[%s] %s\n%s", rec.Priority, rec.Kind, rec.Payload)
	err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: map[string]string{
			"chat_id": t.chatID,
			"text":    text,
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// WebhookChannel posts alerts as Slack-compatible JSON to a webhook URL.
type WebhookChannel struct {
	url    string
	client *xhttp.Client
}

func NewWebhookChannel(url string, client *xhttp.Client) *WebhookChannel {
	return &WebhookChannel{url: url, client: client}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, rec *models.AlertRecord) error {
	err := w.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    w.url,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: map[string]any{
			"text": fmt.Sprintf("%s (%s): %s", rec.Kind, rec.Priority, rec.Payload),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	return nil
}
