package alert

import (
	"context"
	"fmt"
	"sort"
	"time"
)

var slackColors = map[AlertLevel]string{
	Info:     "#36a64f",
	Warning:  "#ffcc00",
	Error:    "#ff0000",
	Critical: "#8b0000",
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color   string       `json:"color"`
	Pretext string       `json:"pretext"`
	Text    string       `json:"text"`
	Fields  []slackField `json:"fields,omitempty"`
	Ts      int64        `json:"ts"`
	Footer  string       `json:"footer"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackChannel posts alerts to an incoming webhook as one attachment.
type SlackChannel struct {
	webhookURL string
	post       *poster
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		post:       newPoster("slack", 5*time.Second),
	}
}

func (s *SlackChannel) Name() string { return "slack" }

// Send is a no-op without a webhook URL.
func (s *SlackChannel) Send(ctx context.Context, alert AlertPayload) error {
	if s.webhookURL == "" {
		return nil
	}
	return s.post.postJSON(ctx, s.webhookURL, slackMessageFor(alert))
}

func slackMessageFor(alert AlertPayload) slackMessage {
	color, ok := slackColors[alert.Level]
	if !ok {
		color = slackColors[Info]
	}
	att := slackAttachment{
		Color:   color,
		Pretext: fmt.Sprintf("[%s] %s", alert.Level, alert.Title),
		Text:    alert.Message,
		Ts:      alert.Timestamp.Unix(),
		Footer:  "tradesim",
	}
	for _, k := range sortedKeys(alert.Fields) {
		att.Fields = append(att.Fields, slackField{Title: k, Value: alert.Fields[k], Short: true})
	}
	return slackMessage{Attachments: []slackAttachment{att}}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
