package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"calcbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

const telegramHelp = "Send a calculation like 2*(3+4) or 10 usd to eur and I will answer it.\n\n" +
	"Commands:\n/calculate <expression> - calculate even when I would stay silent\n/help - show this message"

// Telegram implements domain.Channel for a Telegram bot using long polling.
type Telegram struct {
	token     string
	allowFrom []int64 // allowed chat IDs (empty = allow all)

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // chat IDs as strings
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		token:     cfg.Token,
		allowFrom: parseIDs(cfg.AllowFrom),
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is done.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chat_id", msg.ChatID, "err", err)
			return
		}
		replyTo, _ := strconv.Atoi(msg.ReplyTo)
		t.sendMessage(chatID, replyTo, msg.Content)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: StopReceivingUpdates runs when Start's context is
// cancelled, and calling it twice panics.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) Send(_ context.Context, chatID string, content string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	t.sendMessage(id, 0, content)
	return nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	if !t.isAllowed(chatID) {
		t.logger.Debug("telegram chat not allowed", "chat_id", chatID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	in := domain.InboundMessage{
		ID:                strconv.Itoa(msg.MessageID),
		Channel:           "telegram",
		ChatID:            strconv.FormatInt(chatID, 10),
		SenderID:          strconv.FormatInt(msg.From.ID, 10),
		Content:           text,
		AuthorIsAutomated: msg.From.IsBot,
		Timestamp:         time.Unix(int64(msg.Date), 0),
	}

	if msg.IsCommand() {
		switch {
		case isCalculateCommand(msg.Command()):
			in.Content = strings.TrimSpace(msg.CommandArguments())
			in.Forced = true
		case msg.Command() == "start" || msg.Command() == "help":
			t.sendMessage(chatID, msg.MessageID, telegramHelp)
			return
		default:
			// Commands addressed to other bots in a group.
			return
		}
	}

	t.logger.Debug("telegram message received", "chat_id", chatID, "forced", in.Forced, "text_len", len(text))
	t.bus.Publish(in)
}

func (t *Telegram) isAllowed(chatID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == chatID {
			return true
		}
	}
	return false
}

func parseIDs(values []string) []int64 {
	var ids []int64
	for _, s := range values {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// sendMessage splits text at the Telegram limit; only the first chunk is
// sent as a reply.
func (t *Telegram) sendMessage(chatID int64, replyTo int, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		t.sendChunk(chatID, replyTo, chunk)
		replyTo = 0
	}
}

// sendChunk sends a single message chunk, backing off on rate limits and
// transient errors.
func (t *Telegram) sendChunk(chatID int64, replyTo int, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyToMessageID = replyTo

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		var backoff time.Duration
		if strings.Contains(err.Error(), "Too Many Requests") || strings.Contains(err.Error(), "429") {
			backoff = time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off", "retry_after", backoff, "attempt", attempt+1)
		} else {
			backoff = time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
		}
		if attempt < telegramMaxSendRetries {
			time.Sleep(backoff)
			continue
		}
		t.logger.Error("telegram send failed after retries", "err", err, "attempts", telegramMaxSendRetries+1)
	}
}
