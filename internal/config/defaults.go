package config

import (
	"time"

	"calcbot/internal/rates"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 8,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Enabled: true,
			},
		},
		Rates: RatesConfig{
			FiatURL:       rates.DefaultFiatURL,
			CryptoURL:     rates.DefaultCryptoURL,
			CryptoSymbols: append([]string(nil), rates.DefaultCryptoSymbols...),
			Schedule:      rates.DefaultSchedule,
			HTTPTimeout:   15 * time.Second,
			Breaker: BreakerConfig{
				Failures: 3,
				OpenFor:  5 * time.Minute,
			},
			LazyRefreshInterval: rates.DefaultLazyRefreshInterval,
		},
		Replies: RepliesConfig{
			PerMinute: 20,
			Burst:     5,
		},
		Store: StoreConfig{
			Enabled: true,
			DBPath:  "~/.calcbot/calcbot.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}
