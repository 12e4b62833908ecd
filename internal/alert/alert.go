// Package alert fans operator notifications out to chat channels.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradesim/internal/core"
	"tradesim/internal/risk"
)

type AlertLevel string

const (
	Info     AlertLevel = "INFO"
	Warning  AlertLevel = "WARNING"
	Error    AlertLevel = "ERROR"
	Critical AlertLevel = "CRITICAL"
)

type AlertPayload struct {
	Level     AlertLevel
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

type AlertChannel interface {
	Send(ctx context.Context, alert AlertPayload) error
	Name() string
}

type AlertManager struct {
	channels []AlertChannel
	logger   core.ILogger
	mu       sync.RWMutex
	inflight sync.WaitGroup
	timeout  time.Duration
}

func NewAlertManager(logger core.ILogger) *AlertManager {
	return &AlertManager{
		channels: make([]AlertChannel, 0),
		logger:   logger.WithField("component", "alert_manager"),
		timeout:  10 * time.Second,
	}
}

func (am *AlertManager) AddChannel(ch AlertChannel) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.channels = append(am.channels, ch)
	am.logger.Info("Added alert channel", "name", ch.Name())
}

// Channels returns the names of the registered channels.
func (am *AlertManager) Channels() []string {
	am.mu.RLock()
	defer am.mu.RUnlock()
	names := make([]string, len(am.channels))
	for i, ch := range am.channels {
		names[i] = ch.Name()
	}
	return names
}

// Alert delivers to every channel in the background. Delivery failures are
// logged, never returned.
func (am *AlertManager) Alert(ctx context.Context, title, message string, level AlertLevel, fields map[string]string) {
	payload := AlertPayload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	am.logger.Info("Triggering alert", "title", title, "level", level)

	am.mu.RLock()
	defer am.mu.RUnlock()

	for _, ch := range am.channels {
		am.inflight.Add(1)
		go func(c AlertChannel) {
			defer am.inflight.Done()
			timeoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), am.timeout)
			defer cancel()

			if err := c.Send(timeoutCtx, payload); err != nil {
				am.logger.Error("Failed to send alert", "channel", c.Name(), "error", err)
			}
		}(ch)
	}
}

// Wait blocks until every alert sent so far has been delivered or failed.
func (am *AlertManager) Wait() {
	am.inflight.Wait()
}

// CircuitTripped raises a critical alert for a breaker that just opened.
func (am *AlertManager) CircuitTripped(ctx context.Context, symbol string, status risk.CircuitStatus) {
	am.Alert(ctx,
		fmt.Sprintf("%s circuit breaker open", symbol),
		fmt.Sprintf("New entries are blocked: %s", status.Reason),
		Critical,
		map[string]string{
			"symbol":             symbol,
			"consecutive_losses": fmt.Sprintf("%d", status.ConsecutiveLosses),
			"realized_pnl":       status.TotalPnL.String(),
			"opened_at":          status.OpenedAt.UTC().Format(time.RFC3339),
		})
}

// LogChannel writes alerts to the structured log.
type LogChannel struct {
	logger core.ILogger
}

func NewLogChannel(logger core.ILogger) *LogChannel {
	return &LogChannel{logger: logger.WithField("component", "alert_log")}
}

func (l *LogChannel) Name() string {
	return "log"
}

func (l *LogChannel) Send(ctx context.Context, alert AlertPayload) error {
	fields := []interface{}{"level", alert.Level, "message", alert.Message}
	for _, k := range sortedKeys(alert.Fields) {
		fields = append(fields, k, alert.Fields[k])
	}
	if alert.Level == Critical || alert.Level == Error {
		l.logger.Error(alert.Title, fields...)
	} else {
		l.logger.Warn(alert.Title, fields...)
	}
	return nil
}
