package channel

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"calcbot/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

var (
	slackMentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)
	slackTSPattern      = regexp.MustCompile(`^\d+\.\d+$`)
)

// Slack implements domain.Channel for Slack using Socket Mode. Channel
// messages are triaged; mentions and the /calculate command are forced.
type Slack struct {
	botToken string
	appToken string
	client   *slack.Client
	socket   *socketmode.Client
	bus      domain.MessageBus
	logger   *slog.Logger
	botUID   string // the bot's own user ID, to avoid replying to self
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

// NewSlack creates a new Slack channel handler.
func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Start connects to Slack via Socket Mode and blocks until ctx is done.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	s.bus = bus

	api := slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	s.client = api

	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)
	s.socket = socketClient

	bus.OnOutbound("slack", func(msg domain.OutboundMessage) {
		if msg.Content == "" {
			return
		}
		s.sendMessage(msg.ChatID, slackThreadTS(msg.ReplyTo), msg.Content)
	})

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(eventsAPIEvent)

			case socketmode.EventTypeSlashCommand:
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleSlashCommand(cmd)

			default:
				// Unacknowledged events make Socket Mode disconnect.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

// Stop is a no-op: Socket Mode stops when Start's context is cancelled.
func (s *Slack) Stop() error { return nil }

func (s *Slack) Send(ctx context.Context, chatID string, content string) error {
	if s.client == nil {
		return fmt.Errorf("slack: not connected")
	}
	for _, chunk := range splitMessage(content, slackMaxMsgLen) {
		if _, _, err := s.client.PostMessageContext(ctx, chatID, slack.MsgOptionText(chunk, false)); err != nil {
			return fmt.Errorf("slack send: %w", err)
		}
	}
	return nil
}

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Edits, joins and other subtypes are not new messages.
		if ev.User == s.botUID || (ev.SubType != "" && ev.SubType != "bot_message") {
			return
		}
		// Mentions arrive again as app_mention and are handled there.
		if s.botUID != "" && strings.Contains(ev.Text, "<@"+s.botUID+">") {
			return
		}

		s.logger.Debug("slack message received", "user", ev.User, "channel", ev.Channel, "content_len", len(ev.Text))

		s.bus.Publish(domain.InboundMessage{
			ID:                ev.TimeStamp,
			Channel:           "slack",
			ChatID:            ev.Channel,
			SenderID:          ev.User,
			Content:           ev.Text,
			AuthorIsAutomated: ev.BotID != "" || ev.SubType == "bot_message",
		})

	case *slackevents.AppMentionEvent:
		if ev.User == s.botUID {
			return
		}
		s.logger.Info("slack mention received", "user", ev.User, "channel", ev.Channel)

		s.bus.Publish(domain.InboundMessage{
			ID:       ev.TimeStamp,
			Channel:  "slack",
			ChatID:   ev.Channel,
			SenderID: ev.User,
			Content:  stripMentions(ev.Text),
			Forced:   true,
		})
	}
}

func (s *Slack) handleSlashCommand(cmd slack.SlashCommand) {
	if !isCalculateCommand(cmd.Command) {
		return
	}
	s.logger.Info("slack slash command", "command", cmd.Command, "user", cmd.UserID, "channel", cmd.ChannelID)

	s.bus.Publish(domain.InboundMessage{
		Channel:  "slack",
		ChatID:   cmd.ChannelID,
		SenderID: cmd.UserID,
		Content:  strings.TrimSpace(cmd.Text),
		Forced:   true,
	})
}

func (s *Slack) sendMessage(channelID, threadTS, content string) {
	for _, chunk := range splitMessage(content, slackMaxMsgLen) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if threadTS != "" {
			opts = append(opts, slack.MsgOptionTS(threadTS))
		}
		if _, _, err := s.client.PostMessage(channelID, opts...); err != nil {
			s.logger.Error("slack send failed", "channel", channelID, "err", err)
		}
	}
}

// stripMentions removes <@U123> tokens from a mention's text.
func stripMentions(text string) string {
	return strings.TrimSpace(slackMentionPattern.ReplaceAllString(text, ""))
}

// slackThreadTS returns replyTo when it is a Slack message timestamp.
// Slash commands carry bus-assigned IDs and are answered in the channel.
func slackThreadTS(replyTo string) string {
	if slackTSPattern.MatchString(replyTo) {
		return replyTo
	}
	return ""
}
