package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"calcbot/internal/rates"

	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned by CheckTokens when an enabled channel has no credentials.
var ErrMissingToken = errors.New("missing token")

// Config is the root configuration for calcbot.
type Config struct {
	General  GeneralConfig  `yaml:"general"`
	Channels ChannelsConfig `yaml:"channels"`
	Rates    RatesConfig    `yaml:"rates"`
	Replies  RepliesConfig  `yaml:"replies"`
	Store    StoreConfig    `yaml:"store"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `yaml:"logLevel"`
	MaxConcurrentMessages int    `yaml:"maxConcurrentMessages"`
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
}

type DiscordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	GuildID string `yaml:"guildId,omitempty"` // optional: register the slash command on one guild only
}

type TelegramConfig struct {
	Enabled   bool           `yaml:"enabled"`
	Token     string         `yaml:"token"`
	AllowFrom FlexStringList `yaml:"allowFrom,omitempty"` // chat IDs; empty allows every chat
}

type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"botToken"`
	AppToken string `yaml:"appToken"` // required for Socket Mode
}

// FlexStringList is a []string that accepts numbers too, so Telegram chat IDs
// can be written unquoted: [123, "-100456"] both become strings.
type FlexStringList []string

func (f *FlexStringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*f = FlexStringList{node.Value}
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: expected a list", node.Line)
	}
	result := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: expected a scalar list item", item.Line)
		}
		result = append(result, item.Value)
	}
	*f = result
	return nil
}

type RatesConfig struct {
	FiatURL       string        `yaml:"fiatURL"`
	CryptoURL     string        `yaml:"cryptoURL"`
	CryptoSymbols []string      `yaml:"cryptoSymbols"`
	Schedule      string        `yaml:"schedule"` // cron spec or @every
	HTTPTimeout   time.Duration `yaml:"httpTimeout"`
	Breaker       BreakerConfig `yaml:"breaker"`

	// LazyRefreshInterval spaces out refreshes triggered by unknown codes.
	LazyRefreshInterval time.Duration `yaml:"lazyRefreshInterval"`
}

type BreakerConfig struct {
	Failures uint32        `yaml:"failures"`
	OpenFor  time.Duration `yaml:"openFor"`
}

// RepliesConfig throttles ambient replies per chat. PerMinute 0 disables it.
type RepliesConfig struct {
	PerMinute float64 `yaml:"perMinute"`
	Burst     int     `yaml:"burst"`
}

type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// DefaultConfigDir returns the default config directory (~/.calcbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".calcbot"
	}
	return filepath.Join(home, ".calcbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads the config at path. A missing file yields the defaults; token
// environment variables override whatever the file says.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"DISCORD_BOT_TOKEN", &cfg.Channels.Discord.Token},
		{"TELEGRAM_BOT_TOKEN", &cfg.Channels.Telegram.Token},
		{"SLACK_BOT_TOKEN", &cfg.Channels.Slack.BotToken},
		{"SLACK_APP_TOKEN", &cfg.Channels.Slack.AppToken},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. Tokens are checked
// separately by CheckTokens, since offline commands never need them.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}

	if cfg.Rates.FiatURL == "" || cfg.Rates.CryptoURL == "" {
		errs = append(errs, "rates.fiatURL and rates.cryptoURL are required")
	}
	if err := rates.ValidateSchedule(cfg.Rates.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("rates.schedule: %v", err))
	}
	if cfg.Rates.HTTPTimeout <= 0 {
		errs = append(errs, "rates.httpTimeout must be > 0")
	}
	if cfg.Rates.LazyRefreshInterval < 0 {
		errs = append(errs, "rates.lazyRefreshInterval must be >= 0")
	}

	if cfg.Replies.PerMinute < 0 {
		errs = append(errs, "replies.perMinute must be >= 0")
	}
	if cfg.Replies.Burst < 0 {
		errs = append(errs, "replies.burst must be >= 0")
	}

	if cfg.Store.Enabled && cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required when the store is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// CheckTokens reports every enabled channel that lacks credentials, wrapping
// ErrMissingToken.
func CheckTokens(cfg *Config) error {
	var missing []string
	ch := cfg.Channels
	if ch.Discord.Enabled && ch.Discord.Token == "" {
		missing = append(missing, "channels.discord.token (DISCORD_BOT_TOKEN)")
	}
	if ch.Telegram.Enabled && ch.Telegram.Token == "" {
		missing = append(missing, "channels.telegram.token (TELEGRAM_BOT_TOKEN)")
	}
	if ch.Slack.Enabled && ch.Slack.BotToken == "" {
		missing = append(missing, "channels.slack.botToken (SLACK_BOT_TOKEN)")
	}
	if ch.Slack.Enabled && ch.Slack.AppToken == "" {
		missing = append(missing, "channels.slack.appToken (SLACK_APP_TOKEN)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingToken, strings.Join(missing, ", "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
