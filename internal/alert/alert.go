// Package alert delivers out-of-band operator notifications.
package alert

import (
	"context"
	"sync"
	"time"

	"auto_trader/internal/core"
)

// Level grades a notification.
type Level string

// Alert levels
const (
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Error    Level = "ERROR"
	Critical Level = "CRITICAL"
)

// Payload is one notification.
type Payload struct {
	Level     Level
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// Channel is one delivery target.
type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

// Manager fans a notification out to every registered channel. Delivery is
// asynchronous; the trading path never blocks on a webhook.
type Manager struct {
	channels []Channel
	logger   core.ILogger
	mu       sync.RWMutex
}

// NewManager creates an empty alert manager.
func NewManager(logger core.ILogger) *Manager {
	return &Manager{
		logger: logger.WithField("component", "alert_manager"),
	}
}

// AddChannel registers a delivery target.
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("Added alert channel", "name", ch.Name())
}

// Alert sends a notification to every channel without waiting for delivery.
func (m *Manager) Alert(ctx context.Context, title, message string, level Level, fields map[string]string) {
	payload := Payload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.channels {
		go func(c Channel) {
			timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.Send(timeoutCtx, payload); err != nil {
				m.logger.Error("Failed to send alert", "channel", c.Name(), "error", err)
			}
		}(ch)
	}
}

// Notify implements core.INotifier at critical level.
func (m *Manager) Notify(ctx context.Context, title, message string) error {
	m.Alert(ctx, title, message, Critical, nil)
	return nil
}

var _ core.INotifier = (*Manager)(nil)
