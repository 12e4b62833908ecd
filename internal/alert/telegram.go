package alert

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

var telegramIcons = map[AlertLevel]string{
	Info:     "ℹ️",
	Warning:  "⚠️",
	Error:    "❌",
	Critical: "🚨",
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// TelegramChannel sends alerts through the Bot API sendMessage method.
type TelegramChannel struct {
	botToken string
	chatID   string
	apiBase  string
	post     *poster
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultTelegramAPI,
		post:     newPoster("telegram", 5*time.Second),
	}
}

// WithAPIBase points the channel at another Bot API host.
func (t *TelegramChannel) WithAPIBase(base string) *TelegramChannel {
	t.apiBase = strings.TrimRight(base, "/")
	return t
}

func (t *TelegramChannel) Name() string { return "telegram" }

// Send is a no-op unless both the token and the chat are set.
func (t *TelegramChannel) Send(ctx context.Context, alert AlertPayload) error {
	if t.botToken == "" || t.chatID == "" {
		return nil
	}
	msg := telegramMessage{ChatID: t.chatID, Text: telegramText(alert), ParseMode: "Markdown"}
	return t.post.postJSON(ctx, t.apiBase+"/bot"+t.botToken+"/sendMessage", msg)
}

func telegramText(alert AlertPayload) string {
	icon, ok := telegramIcons[alert.Level]
	if !ok {
		icon = telegramIcons[Info]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *[%s] %s*\n\n%s", icon, alert.Level, alert.Title, alert.Message)
	if len(alert.Fields) > 0 {
		b.WriteString("\n")
		for _, k := range sortedKeys(alert.Fields) {
			fmt.Fprintf(&b, "\n- *%s*: %s", k, alert.Fields[k])
		}
	}
	return b.String()
}
