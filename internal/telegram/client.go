// Package telegram provides a client for sending alert notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/motorguard/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// status renders the reply to /status. It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, status func() string) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message, status)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, status func() string) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "status":
		if status == nil {
			return
		}
		text = status()
	default:
		return
	}
	c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, text)) //nolint:errcheck
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a risk check error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(checkErr error) error {
	text := fmt.Sprintf("⚠️ *Risk check error*\n`%s`", escapeMarkdownV2(checkErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Risk check recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendAlert sends one alert notification.
func (c *Client) SendAlert(alert models.Alert) error {
	return c.sendMarkdownV2(formatAlert(alert))
}

// formatAlert formats an alert into a Telegram MarkdownV2 message.
func formatAlert(alert models.Alert) string {
	var b strings.Builder

	switch alert.Kind {
	case models.AlertFailureRisk:
		b.WriteString("🔮 *Motor Failure Risk*\n\n")
	default:
		b.WriteString("🌡️ *High Motor Temperature*\n\n")
	}

	dateStr := escapeMarkdownV2(alert.DetectedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "📅 Detected: %s\n", dateStr)
	fmt.Fprintf(&b, "🌡️ Temperature: *%s*\n", escapeMarkdownV2(fmt.Sprintf("%.1f°C", alert.Temperature)))

	if alert.Probability != nil {
		probStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", *alert.Probability*100))
		thrStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", alert.Threshold*100))
		fmt.Fprintf(&b, "📈 Failure probability: *%s* \\(threshold %s\\)\n", probStr, thrStr)
	} else {
		fmt.Fprintf(&b, "🎯 Threshold: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f°C", alert.Threshold)))
	}

	if alert.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", escapeMarkdownV2(alert.Message))
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
