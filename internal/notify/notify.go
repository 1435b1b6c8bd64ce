// Package notify holds the notifier used when chat delivery is switched off.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Discard drops every message after logging it at debug level.
type Discard struct {
	logger *zap.Logger
}

// NewDiscard returns a notifier that never sends.
func NewDiscard(logger *zap.Logger) *Discard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discard{logger: logger.Named("notify")}
}

// Private logs and drops a direct message.
func (d *Discard) Private(_ context.Context, chatID string, text string) error {
	d.logger.Debug("telegram disabled, dropping private message", zap.String("chat_id", chatID), zap.String("text", text))
	return nil
}

// Broadcast logs and drops a channel message.
func (d *Discard) Broadcast(_ context.Context, text string) error {
	d.logger.Debug("telegram disabled, dropping broadcast", zap.String("text", text))
	return nil
}
