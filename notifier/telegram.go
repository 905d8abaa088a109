package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultSendTimeout = 10 * time.Second

// Telegram Bot API sendMessage response envelope.
type sendMessageAnswer struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
}

// TelegramNotifier sends messages through the Telegram Bot API.
type TelegramNotifier struct {
	client  *resty.Client
	baseURL string
}

func NewTelegramNotifier(botToken string, timeout time.Duration) *TelegramNotifier {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	client := resty.New().SetTimeout(timeout)
	return &TelegramNotifier{
		client:  client,
		baseURL: "https://api.telegram.org/bot" + botToken,
	}
}

func (n *TelegramNotifier) Send(ctx context.Context, recipientId int64, text string) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"chat_id": recipientId,
			"text":    text,
		}).
		Post(n.baseURL + "/sendMessage")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("sendMessage status: %d", resp.StatusCode())
	}

	var answer sendMessageAnswer
	if err := json.Unmarshal(resp.Body(), &answer); err != nil {
		return err
	}
	if !answer.Ok {
		return fmt.Errorf("sendMessage rejected: %s", answer.Description)
	}
	return nil
}
