// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/metrics"
)

// ErrNoChat is returned when a message has no destination.
var ErrNoChat = errors.New("no chat id")

// Config configures the bot.
type Config struct {
	Token string
	// ChatID is the broadcast destination: a numeric chat ID or an @channel name.
	ChatID string
	// Endpoint overrides tgbotapi.APIEndpoint, mainly for tests.
	Endpoint string
	Timeout  time.Duration
}

// Notifier sends private and broadcast messages.
type Notifier struct {
	bot     *tgbotapi.BotAPI
	channel string
	logger  *zap.Logger
}

// New authenticates the bot token with getMe and returns a Notifier.
func New(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	n := &Notifier{bot: bot, channel: cfg.ChatID, logger: logger.Named("telegram")}
	n.logger.Info("telegram bot ready", zap.String("bot", bot.Self.UserName))
	return n, nil
}

// Private messages a single user.
func (n *Notifier) Private(ctx context.Context, chatID string, text string) error {
	err := n.send(ctx, chatID, text)
	metrics.ObserveNotification("private", err)
	return err
}

// Broadcast messages the configured channel.
func (n *Notifier) Broadcast(ctx context.Context, text string) error {
	err := n.send(ctx, n.channel, text)
	metrics.ObserveNotification("broadcast", err)
	return err
}

func (n *Notifier) send(ctx context.Context, chatID string, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	msg, err := newMessage(chatID, text)
	if err != nil {
		return err
	}
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %s: %w", chatID, err)
	}
	n.logger.Debug("message sent", zap.String("chat_id", chatID))
	return nil
}

// newMessage targets numeric chats by ID and anything else as a channel username.
func newMessage(chatID string, text string) (tgbotapi.MessageConfig, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return tgbotapi.MessageConfig{}, ErrNoChat
	}
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text), nil
	}
	return tgbotapi.NewMessageToChannel(chatID, text), nil
}
