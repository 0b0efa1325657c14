package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calcbot/internal/bus"
	"calcbot/internal/calc"
	"calcbot/internal/channel"
	"calcbot/internal/config"
	"calcbot/internal/domain"
	"calcbot/internal/metrics"
	"calcbot/internal/pipeline"
	"calcbot/internal/rates"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func gatewayCmd() *cobra.Command {
	var console bool
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Connect to the enabled chat platforms and answer calculations",
		Long:  "Fills the currency rate cache, starts the hourly refresh and the calculation pipeline, then connects every enabled channel. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(console)
		},
	}
	cmd.Flags().BoolVar(&console, "console", false, "also read messages from stdin (no chat token needed)")
	return cmd
}

func runGateway(console bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.CheckTokens(cfg); err != nil && !console {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	triageMetrics := metrics.NewTriageMetrics(reg)
	rateMetrics := metrics.NewRateMetrics(reg)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if st != nil {
		defer st.Close()
	}
	triageRec, refreshRec := recorders(st)

	// Rates first: conversions asked right after connect should not miss.
	cache := newRateCache(cfg, refreshRec, rateMetrics)
	refresher := rates.NewRefresher(cache, cfg.Rates.Schedule, logger)
	if refresher.Fill(ctx) {
		logger.Info("currency rates loaded", "codes", cache.Snapshot().Len())
	} else {
		logger.Warn("initial rate fill failed, conversions wait for the next refresh")
	}
	go func() {
		if err := refresher.Start(ctx); err != nil {
			logger.Error("rate refresher stopped", "err", err)
		}
	}()

	messageBus := bus.New(100, logger)

	svc := pipeline.NewService(pipeline.ServiceConfig{
		Pipeline:         pipeline.New(calc.NewExprEngine(cache)),
		Bus:              messageBus,
		Recorder:         triageRec,
		Metrics:          triageMetrics,
		Logger:           logger,
		Concurrency:      cfg.General.MaxConcurrentMessages,
		RepliesPerMinute: cfg.Replies.PerMinute,
		ReplyBurst:       cfg.Replies.Burst,
	})
	go svc.Run(ctx)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "err", err)
			}
		}()
		logger.Info("metrics endpoint enabled", "listen", cfg.Metrics.Listen)
	}

	channels := enabledChannels(cfg, console)
	if len(channels) == 0 {
		return errors.New("no channels enabled")
	}

	for _, ch := range channels {
		go func(ch domain.Channel) {
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
			// The console ends the gateway when the user quits.
			if ch.Name() == "console" {
				stop()
			}
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	logger.Info("gateway started. Press Ctrl+C to stop.")

	<-ctx.Done()
	logger.Info("shutting down gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop failed", "channel", ch.Name(), "err", err)
			}
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func enabledChannels(cfg *config.Config, console bool) []domain.Channel {
	var channels []domain.Channel
	ch := cfg.Channels
	if ch.Discord.Enabled && ch.Discord.Token != "" {
		channels = append(channels, channel.NewDiscord(channel.DiscordConfig{
			Token:   ch.Discord.Token,
			GuildID: ch.Discord.GuildID,
			Logger:  logger,
		}))
	}
	if ch.Telegram.Enabled && ch.Telegram.Token != "" {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:     ch.Telegram.Token,
			AllowFrom: ch.Telegram.AllowFrom,
			Logger:    logger,
		}))
	}
	if ch.Slack.Enabled && ch.Slack.BotToken != "" && ch.Slack.AppToken != "" {
		channels = append(channels, channel.NewSlack(channel.SlackConfig{
			BotToken: ch.Slack.BotToken,
			AppToken: ch.Slack.AppToken,
			Logger:   logger,
		}))
	}
	if console {
		channels = append(channels, channel.NewConsole(channel.ConsoleConfig{Logger: logger}))
	}
	return channels
}
