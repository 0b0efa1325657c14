package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- Validate ---

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Validate(cfg))
	assert.True(t, cfg.Channels.Discord.Enabled)
	assert.Equal(t, "@every 1h", cfg.Rates.Schedule)
	assert.Equal(t, 15*time.Second, cfg.Rates.HTTPTimeout)
	assert.Equal(t, time.Minute, cfg.Rates.LazyRefreshInterval)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.General.LogLevel = "verbose" }},
		{"concurrency low", func(c *Config) { c.General.MaxConcurrentMessages = 0 }},
		{"concurrency high", func(c *Config) { c.General.MaxConcurrentMessages = 101 }},
		{"fiat url", func(c *Config) { c.Rates.FiatURL = "" }},
		{"schedule", func(c *Config) { c.Rates.Schedule = "every hour please" }},
		{"timeout", func(c *Config) { c.Rates.HTTPTimeout = 0 }},
		{"lazy refresh", func(c *Config) { c.Rates.LazyRefreshInterval = -time.Second }},
		{"replies", func(c *Config) { c.Replies.PerMinute = -1 }},
		{"store path", func(c *Config) { c.Store.DBPath = "" }},
		{"metrics listen", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Listen = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_DisabledStoreNeedsNoPath(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Enabled = false
	cfg.Store.DBPath = ""
	assert.NoError(t, Validate(cfg))
}

func TestCheckTokens(t *testing.T) {
	cfg := Defaults()
	err := CheckTokens(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingToken))
	assert.Contains(t, err.Error(), "DISCORD_BOT_TOKEN")

	cfg.Channels.Discord.Token = "discord-token"
	assert.NoError(t, CheckTokens(cfg))

	cfg.Channels.Slack.Enabled = true
	cfg.Channels.Slack.BotToken = "xoxb-1"
	err = CheckTokens(cfg)
	require.ErrorIs(t, err, ErrMissingToken)
	assert.Contains(t, err.Error(), "appToken")
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	original := Defaults()
	original.Rates.Schedule = "0 * * * *"
	original.Rates.HTTPTimeout = 3 * time.Second
	original.Channels.Telegram.AllowFrom = FlexStringList{"42"}

	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0 * * * *", loaded.Rates.Schedule)
	assert.Equal(t, 3*time.Second, loaded.Rates.HTTPTimeout)
	assert.Equal(t, FlexStringList{"42"}, loaded.Channels.Telegram.AllowFrom)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Rates, cfg.Rates)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "general: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_ValidatesConfig(t *testing.T) {
	_, err := Load(writeConfig(t, "general:\n  maxConcurrentMessages: 0\n"))
	assert.Error(t, err)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "replies:\n  perMinute: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Replies.PerMinute)
	assert.Equal(t, 5, cfg.Replies.Burst)
	assert.Equal(t, "info", cfg.General.LogLevel)
}

func TestLoad_EnvVarSubstitutionAndTokenOverrides(t *testing.T) {
	t.Setenv("TEST_CALCBOT_SCHEDULE", "@every 30m")
	t.Setenv("DISCORD_BOT_TOKEN", "from-env")

	cfg, err := Load(writeConfig(t, `
channels:
  discord:
    enabled: true
    token: from-file
rates:
  schedule: "${TEST_CALCBOT_SCHEDULE}"
  httpTimeout: 5s
`))
	require.NoError(t, err)
	assert.Equal(t, "@every 30m", cfg.Rates.Schedule)
	assert.Equal(t, 5*time.Second, cfg.Rates.HTTPTimeout)
	assert.Equal(t, "from-env", cfg.Channels.Discord.Token)
}

func TestLoad_ExpandsStorePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := Load(writeConfig(t, "store:\n  dbPath: ~/x/calc.db\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "calc.db"), cfg.Store.DBPath)
}

// --- FlexStringList ---

func TestFlexStringList_MixedTypes(t *testing.T) {
	var tc TelegramConfig
	require.NoError(t, yaml.Unmarshal([]byte(`allowFrom: [123, "-100456", abc]`), &tc))
	assert.Equal(t, FlexStringList{"123", "-100456", "abc"}, tc.AllowFrom)
}

func TestFlexStringList_SingleScalar(t *testing.T) {
	var tc TelegramConfig
	require.NoError(t, yaml.Unmarshal([]byte(`allowFrom: 99`), &tc))
	assert.Equal(t, FlexStringList{"99"}, tc.AllowFrom)
}

func TestFlexStringList_RejectsMapping(t *testing.T) {
	var tc TelegramConfig
	assert.Error(t, yaml.Unmarshal([]byte("allowFrom:\n  a: b\n"), &tc))
}

// --- Accessor ---

func TestGetByPath(t *testing.T) {
	cfg := Defaults()

	v, err := GetByPath(cfg, "general.logLevel")
	require.NoError(t, err)
	assert.Equal(t, "info", v)

	v, err = GetByPath(cfg, "rates.cryptoSymbols.0")
	require.NoError(t, err)
	assert.Equal(t, "BTC", v)

	_, err = GetByPath(cfg, "general.nope")
	assert.Error(t, err)
}

func TestSetByPath(t *testing.T) {
	cfg := Defaults()

	require.NoError(t, SetByPath(cfg, "general.maxConcurrentMessages", "30"))
	assert.Equal(t, 30, cfg.General.MaxConcurrentMessages)

	require.NoError(t, SetByPath(cfg, "metrics.enabled", "true"))
	assert.True(t, cfg.Metrics.Enabled)

	require.NoError(t, SetByPath(cfg, "rates.httpTimeout", "45s"))
	assert.Equal(t, 45*time.Second, cfg.Rates.HTTPTimeout)

	require.NoError(t, SetByPath(cfg, "rates.schedule", "@every 2h"))
	assert.Equal(t, "@every 2h", cfg.Rates.Schedule)

	assert.Error(t, SetByPath(cfg, "", "x"))
	assert.Error(t, SetByPath(cfg, "general.unknown", "x"))
}

// --- Sanitize ---

func TestSanitize_MasksTokens(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Discord.Token = "MTIzNDU2Nzg5.abcdef.ghijklmnop"
	cfg.Channels.Slack.AppToken = "short"

	s := Sanitize(cfg)
	assert.Equal(t, "MTIz****mnop", s.Channels.Discord.Token)
	assert.Equal(t, "***", s.Channels.Slack.AppToken)
	assert.Equal(t, "", s.Channels.Telegram.Token)
	assert.Equal(t, "MTIzNDU2Nzg5.abcdef.ghijklmnop", cfg.Channels.Discord.Token)
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CALCBOT_A", "alpha")
	t.Setenv("CALCBOT_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"${CALCBOT_A}", "alpha"},
		{"${CALCBOT_UNSET:-fallback}", "fallback"},
		{"${CALCBOT_A:-fallback}", "alpha"},
		{"${CALCBOT_EMPTY:-fallback}", "fallback"},
		{"${CALCBOT_A}/${CALCBOT_A}", "alpha/alpha"},
		{"${CALCBOT_UNSET}", "${CALCBOT_UNSET}"},
		{"$HOME is not substituted", "$HOME is not substituted"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandEnvVars(tt.in), tt.in)
	}
}

// --- LoadDotEnv ---

func TestLoadDotEnv(t *testing.T) {
	const key = "CALCBOT_DOTENV_TEST"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	loaded, err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.False(t, loaded)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-dotenv\n"), 0o600))

	loaded, err = LoadDotEnv(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "from-dotenv", os.Getenv(key))
}

func TestLoadDotEnv_EnvironmentWins(t *testing.T) {
	t.Setenv("CALCBOT_DOTENV_KEEP", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CALCBOT_DOTENV_KEEP=from-file\n"), 0o600))

	_, err := LoadDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", os.Getenv("CALCBOT_DOTENV_KEEP"))
}
