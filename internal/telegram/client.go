// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/skywatch/internal/models"
)

// StatusFunc reports a one-line service status for the /status command.
type StatusFunc func() string

// sender is the part of the bot API used to deliver messages.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	sender         sender
	target         chatTarget
	maxRetries     int
	retryDelayBase time.Duration
	status         StatusFunc
}

// chatTarget is either a numeric chat ID or a public @channel username.
type chatTarget struct {
	id       int64
	username string
}

func parseChatTarget(chatID string) (chatTarget, error) {
	chatID = strings.TrimSpace(chatID)
	if strings.HasPrefix(chatID, "@") && len(chatID) > 1 {
		return chatTarget{username: chatID}, nil
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return chatTarget{}, fmt.Errorf("invalid chat ID: %w", err)
	}
	return chatTarget{id: id}, nil
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase, timeout time.Duration) (*Client, error) {
	target, err := parseChatTarget(chatID)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
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
		sender:         bot,
		target:         target,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SetStatusFunc installs the provider used to answer /status.
func (c *Client) SetStatusFunc(fn StatusFunc) {
	c.status = fn
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
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
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "status":
		text = "No status available"
		if c.status != nil {
			text = c.status()
		}
	default:
		return
	}
	c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, text)) //nolint:errcheck
}

func (c *Client) newMessage(text string) tgbotapi.MessageConfig {
	if c.target.username != "" {
		return tgbotapi.NewMessageToChannel(c.target.username, text)
	}
	return tgbotapi.NewMessage(c.target.id, text)
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
// It gives up between attempts once ctx is done.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := c.newMessage(text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.sender.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %d attempts: %w", i+1, ctx.Err())
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a cycle failure notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Scan error*\n`%s`", escapeCode(cycleErr.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	text := fmt.Sprintf("✅ *Scanning recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(ctx, text)
}

// SendSighting sends one watchlist sighting.
func (c *Client) SendSighting(ctx context.Context, s models.Sighting) error {
	return c.sendMarkdownV2(ctx, formatSighting(s))
}

// MapLink returns a map URL for the given position.
func MapLink(lat, lon float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%.5f,%.5f", lat, lon)
}

// formatSighting formats a sighting into a Telegram MarkdownV2 message.
func formatSighting(s models.Sighting) string {
	m := s.Aircraft
	var b strings.Builder

	fmt.Fprintf(&b, "🚨 *%s*\n", escapeMarkdownV2(m.Category))
	fmt.Fprintf(&b, "✈️ *%s*\n", escapeMarkdownV2(m.Name))

	ident := "Hex: " + m.Hex
	if m.Callsign != "" {
		ident += " · Callsign: " + m.Callsign
	}
	b.WriteString(escapeMarkdownV2(ident) + "\n")

	var kin []string
	if m.Altitude != nil {
		kin = append(kin, fmt.Sprintf("Alt %s m", humanize.Comma(int64(*m.Altitude))))
	}
	if m.Velocity != nil {
		kin = append(kin, fmt.Sprintf("Speed %.0f m/s", *m.Velocity))
	}
	if m.Heading != nil {
		kin = append(kin, fmt.Sprintf("Heading %.0f°", *m.Heading))
	}
	if len(kin) > 0 {
		b.WriteString(escapeMarkdownV2(strings.Join(kin, " · ")) + "\n")
	}

	if m.Latitude != nil && m.Longitude != nil {
		fmt.Fprintf(&b, "📍 [View on map](%s)\n", MapLink(*m.Latitude, *m.Longitude))
	} else {
		b.WriteString("📍 Position unknown\n")
	}

	if !s.SeenAt.IsZero() {
		b.WriteString(escapeMarkdownV2(s.SeenAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes text placed inside a MarkdownV2 code span.
func escapeCode(text string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return r.Replace(text)
}
