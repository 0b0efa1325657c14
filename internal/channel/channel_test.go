package channel

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"calcbot/internal/bus"
	"calcbot/internal/domain"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	chunks := splitMessage(strings.Repeat("a", 25), 10)
	assert.Equal(t, []string{"aaaaaaaaaa", "aaaaaaaaaa", "aaaaa"}, chunks)

	// Prefers a newline in the second half of the window.
	chunks = splitMessage("aaaaaaa\nbbbbbbbbb", 10)
	assert.Equal(t, []string{"aaaaaaa\n", "bbbbbbbbb"}, chunks)
}

func TestIsCalculateCommand(t *testing.T) {
	for _, name := range []string{"calculate", "/calculate", "calc", "/CALC"} {
		assert.True(t, isCalculateCommand(name), name)
	}
	for _, name := range []string{"help", "/start", "calculator", ""} {
		assert.False(t, isCalculateCommand(name), name)
	}
}

func TestResultEmbed(t *testing.T) {
	embed := resultEmbed(domain.OutboundMessage{Expression: "1+1", Result: "2", Content: "= 2"})
	require.NotNil(t, embed)
	assert.Equal(t, "Calculation Result", embed.Title)
	assert.Equal(t, "```\n1+1\n= 2\n```", embed.Description)

	assert.Nil(t, resultEmbed(domain.OutboundMessage{Content: "Could not evaluate `x`.", Expression: "x", Failed: true}))
	assert.Nil(t, resultEmbed(domain.OutboundMessage{Content: "Please provide an expression to calculate."}))
	assert.Nil(t, resultEmbed(domain.OutboundMessage{Expression: strings.Repeat("9", 5000), Result: "1"}))
}

func TestCommandExpression(t *testing.T) {
	data := discordgo.ApplicationCommandInteractionData{
		Name: "calculate",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "expression", Type: discordgo.ApplicationCommandOptionString, Value: "  2*(3+4) "},
		},
	}
	assert.Equal(t, "2*(3+4)", commandExpression(data))
	assert.Equal(t, "", commandExpression(discordgo.ApplicationCommandInteractionData{Name: "calculate"}))
}

func TestInteractionUserID(t *testing.T) {
	guild := &discordgo.Interaction{Member: &discordgo.Member{User: &discordgo.User{ID: "g1"}}}
	dm := &discordgo.Interaction{User: &discordgo.User{ID: "d1"}}
	assert.Equal(t, "g1", interactionUserID(guild))
	assert.Equal(t, "d1", interactionUserID(dm))
	assert.Equal(t, "", interactionUserID(&discordgo.Interaction{}))
}

func TestTelegramAllowList(t *testing.T) {
	open := NewTelegram(TelegramConfig{Logger: testLogger()})
	assert.True(t, open.isAllowed(12345))

	restricted := NewTelegram(TelegramConfig{AllowFrom: []string{" 42 ", "-100777", "not-a-number"}, Logger: testLogger()})
	assert.Equal(t, []int64{42, -100777}, restricted.allowFrom)
	assert.True(t, restricted.isAllowed(-100777))
	assert.False(t, restricted.isAllowed(7))
}

func TestStripMentions(t *testing.T) {
	assert.Equal(t, "2+2", stripMentions("<@U012ABC> 2+2"))
	assert.Equal(t, "10 usd to eur", stripMentions("<@U1> 10 usd to eur"))
}

func TestSlackThreadTS(t *testing.T) {
	assert.Equal(t, "1712345678.000200", slackThreadTS("1712345678.000200"))
	assert.Equal(t, "", slackThreadTS("3f2a0c6e-8a34-4c1e-9a0e-1d2b3c4d5e6f"))
	assert.Equal(t, "", slackThreadTS(""))
}

func TestParseConsoleLine(t *testing.T) {
	msg, ok := parseConsoleLine("1+1")
	require.True(t, ok)
	assert.False(t, msg.Forced)
	assert.Equal(t, "1+1", msg.Content)

	msg, ok = parseConsoleLine("/calc  2077 ")
	require.True(t, ok)
	assert.True(t, msg.Forced)
	assert.Equal(t, "2077", msg.Content)

	msg, ok = parseConsoleLine("/calculate")
	require.True(t, ok)
	assert.True(t, msg.Forced)
	assert.Equal(t, "", msg.Content)

	_, ok = parseConsoleLine("/weather")
	assert.False(t, ok)
}

func TestConsole_PublishesLinesAndPrintsReplies(t *testing.T) {
	b := bus.New(8, testLogger())
	defer b.Close()

	var out bytes.Buffer
	c := NewConsole(ConsoleConfig{
		Logger: testLogger(),
		In:     strings.NewReader("1+1\n\n/calc 5\n/nope\n/quit\nnever read\n"),
		Out:    &out,
	})
	require.NoError(t, c.Start(context.Background(), b))

	first := <-b.Subscribe()
	second := <-b.Subscribe()
	assert.Equal(t, "1+1", first.Content)
	assert.Equal(t, "console", first.Channel)
	assert.True(t, second.Forced)
	assert.Equal(t, "5", second.Content)
	assert.Len(t, b.Subscribe(), 0)

	b.SendOutbound(domain.OutboundMessage{Channel: "console", Content: "= 2"})
	assert.Contains(t, out.String(), "unknown command")
	assert.Contains(t, out.String(), "= 2\n")
}

func TestDiscord_PendingInteractionsExpire(t *testing.T) {
	d := NewDiscord(DiscordConfig{Logger: testLogger()})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d.track("lost", &discordgo.Interaction{ID: "i1"}, t0)
	d.track("recent", &discordgo.Interaction{ID: "i2"}, t0.Add(10*time.Minute))
	d.track("new", &discordgo.Interaction{ID: "i3"}, t0.Add(interactionTTL))

	_, ok := d.take("lost")
	assert.False(t, ok, "an interaction past its edit window is dropped")

	got, ok := d.take("recent")
	require.True(t, ok)
	assert.Equal(t, "i2", got.ID)

	_, ok = d.take("recent")
	assert.False(t, ok, "take consumes the entry")
	assert.Len(t, d.pending, 1)
}
