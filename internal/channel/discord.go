package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"calcbot/internal/domain"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

const (
	discordMaxMsgLen = 2000
	discordEmbedMax  = 4096

	// Discord accepts edits to a deferred response for 15 minutes.
	interactionTTL = 15 * time.Minute

	calculateOption = "expression"
)

// Discord implements domain.Channel for Discord. Every guild message is
// published for ambient triage; the calculate slash command is published as
// a forced calculation and answered by editing the deferred response.
type Discord struct {
	token   string
	guildID string
	session *discordgo.Session
	bus     domain.MessageBus
	logger  *slog.Logger

	// pending maps the bus message ID of a slash command to its interaction.
	pending   map[string]pendingInteraction
	pendingMu sync.Mutex
}

type pendingInteraction struct {
	interaction *discordgo.Interaction
	created     time.Time
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token   string
	GuildID string
	Logger  *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		logger:  cfg.Logger,
		pending: make(map[string]pendingInteraction),
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to Discord using a bot token and blocks until ctx is done.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	d.bus = bus

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	bus.OnOutbound("discord", d.deliver)
	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	d.registerSlashCommands()

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

// Stop is a no-op: the session closes when Start's context is cancelled.
func (d *Discord) Stop() error { return nil }

func (d *Discord) Send(_ context.Context, chatID string, content string) error {
	if d.session == nil {
		return fmt.Errorf("discord: not connected")
	}
	for _, chunk := range splitMessage(content, discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSend(chatID, chunk); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if d.guildID != "" && m.GuildID != "" && m.GuildID != d.guildID {
		return
	}

	d.logger.Debug("discord message received",
		"author", m.Author.Username,
		"channel_id", m.ChannelID,
		"content_len", len(m.Content),
	)

	d.bus.Publish(domain.InboundMessage{
		ID:                m.ID,
		Channel:           "discord",
		ChatID:            m.ChannelID,
		SenderID:          m.Author.ID,
		Content:           m.Content,
		AuthorIsAutomated: m.Author.Bot,
	})
}

func (d *Discord) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if !isCalculateCommand(data.Name) {
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		d.logger.Error("discord interaction ack failed", "err", err)
		return
	}

	id := uuid.NewString()
	d.track(id, i.Interaction, time.Now())

	d.logger.Info("discord calculate command", "channel_id", i.ChannelID)

	d.bus.Publish(domain.InboundMessage{
		ID:       id,
		Channel:  "discord",
		ChatID:   i.ChannelID,
		SenderID: interactionUserID(i.Interaction),
		Content:  commandExpression(data),
		Forced:   true,
	})
}

// deliver answers either a pending slash command or an ambient message.
func (d *Discord) deliver(msg domain.OutboundMessage) {
	if msg.Content == "" {
		return
	}

	if interaction, ok := d.take(msg.ReplyTo); ok {
		edit := &discordgo.WebhookEdit{}
		if embed := resultEmbed(msg); embed != nil {
			edit.Embeds = &[]*discordgo.MessageEmbed{embed}
		} else {
			content := msg.Content
			edit.Content = &content
		}
		if _, err := d.session.InteractionResponseEdit(interaction, edit); err != nil {
			d.logger.Error("discord interaction edit failed", "channel", msg.ChatID, "err", err)
		}
		return
	}

	send := &discordgo.MessageSend{Content: msg.Content}
	if embed := resultEmbed(msg); embed != nil {
		send = &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChatID}
	}
	if _, err := d.session.ChannelMessageSendComplex(msg.ChatID, send); err != nil {
		d.logger.Error("discord send failed", "channel", msg.ChatID, "err", err)
	}
}

// track remembers a deferred interaction and forgets the ones whose reply
// never came back in time, e.g. because the bus dropped the message.
func (d *Discord) track(id string, interaction *discordgo.Interaction, now time.Time) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	for key, p := range d.pending {
		if now.Sub(p.created) >= interactionTTL {
			delete(d.pending, key)
		}
	}
	d.pending[id] = pendingInteraction{interaction: interaction, created: now}
}

func (d *Discord) take(id string) (*discordgo.Interaction, bool) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	p, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	return p.interaction, ok
}

// resultEmbed renders a successful calculation, or returns nil when the
// message should go out as plain text.
func resultEmbed(msg domain.OutboundMessage) *discordgo.MessageEmbed {
	if msg.Failed || msg.Result == "" || msg.Expression == "" {
		return nil
	}
	desc := resultBlock(msg.Expression, msg.Result)
	if len(desc) > discordEmbedMax {
		return nil
	}
	return &discordgo.MessageEmbed{Title: resultTitle, Description: desc}
}

func commandExpression(data discordgo.ApplicationCommandInteractionData) string {
	for _, opt := range data.Options {
		if opt.Name == calculateOption && opt.Type == discordgo.ApplicationCommandOptionString {
			return strings.TrimSpace(opt.StringValue())
		}
	}
	return ""
}

// interactionUserID covers both guild (Member) and DM (User) interactions.
func interactionUserID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (d *Discord) registerSlashCommands() {
	cmd := &discordgo.ApplicationCommand{
		Name:        calculateCommand,
		Description: "Calculate an expression",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        calculateOption,
				Description: "The expression to calculate, e.g. 2*(3+4) or 10 usd to eur",
				Required:    true,
			},
		},
	}

	// empty guildID = global command
	if _, err := d.session.ApplicationCommandCreate(d.session.State.User.ID, d.guildID, cmd); err != nil {
		d.logger.Warn("failed to register slash command", "command", cmd.Name, "err", err)
	}
}
