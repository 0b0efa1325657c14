package pipeline

import (
	"context"
	"log/slog"
	"time"

	"calcbot/internal/domain"
	"calcbot/internal/metrics"
)

const defaultConcurrency = 4

// Service consumes the message bus and answers calculations.
type Service struct {
	pipeline    *Pipeline
	bus         domain.MessageBus
	recorder    domain.TriageRecorder
	metrics     *metrics.TriageMetrics
	limiter     *replyLimiter
	logger      *slog.Logger
	concurrency int
}

// ServiceConfig holds the dependencies of a Service. Recorder and Metrics are
// optional; RepliesPerMinute <= 0 disables reply throttling.
type ServiceConfig struct {
	Pipeline         *Pipeline
	Bus              domain.MessageBus
	Recorder         domain.TriageRecorder
	Metrics          *metrics.TriageMetrics
	Logger           *slog.Logger
	Concurrency      int
	RepliesPerMinute float64
	ReplyBurst       int
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Service{
		pipeline:    cfg.Pipeline,
		bus:         cfg.Bus,
		recorder:    cfg.Recorder,
		metrics:     cfg.Metrics,
		limiter:     newReplyLimiter(cfg.RepliesPerMinute, cfg.ReplyBurst),
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
	}
}

// Run processes inbound messages with bounded concurrency until ctx is
// cancelled or the bus is closed.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("calculation pipeline started", "concurrency", s.concurrency)

	sem := make(chan struct{}, s.concurrency)
	inbound := s.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("calculation pipeline stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				s.logger.Info("inbound channel closed, pipeline stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				s.Handle(ctx, m)
			}(msg)
		}
	}
}

// Handle runs one message through the pipeline and sends the reply, if any.
func (s *Service) Handle(ctx context.Context, msg domain.InboundMessage) Outcome {
	if msg.AuthorIsAutomated && !msg.Forced {
		return Outcome{}
	}

	var out Outcome
	if msg.Forced {
		out = s.pipeline.Force(ctx, msg.Content)
	} else {
		out = s.pipeline.Evaluate(ctx, msg.Content)
	}
	label := out.Label()

	s.logger.Debug("message triaged",
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"verdict", label,
		"forced", msg.Forced,
	)
	if out.Err != nil {
		// Ambient failures are expected noise; forced ones are worth a look.
		level := slog.LevelDebug
		if msg.Forced {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "calculation failed", "channel", msg.Channel, "forced", msg.Forced, "err", out.Err)
	}

	replied := false
	if out.Replied() {
		replied = s.reply(msg, out)
	}
	s.observe(msg, out, label)
	s.record(ctx, msg, out, label, replied)
	return out
}

func (s *Service) reply(msg domain.InboundMessage, out Outcome) bool {
	if !msg.Forced && !s.limiter.Allow(msg.Channel+":"+msg.ChatID) {
		s.logger.Info("reply throttled", "channel", msg.Channel, "chat_id", msg.ChatID)
		if s.metrics != nil {
			s.metrics.Replies.WithLabelValues(msg.Channel, "throttled").Inc()
		}
		return false
	}

	s.bus.SendOutbound(domain.OutboundMessage{
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		ReplyTo:    msg.ID,
		Content:    out.Reply,
		Expression: expressionFor(msg, out),
		Result:     out.Result,
		Failed:     out.Err != nil,
	})
	if s.metrics != nil {
		s.metrics.Replies.WithLabelValues(msg.Channel, "sent").Inc()
	}
	return true
}

// expressionFor echoes what the user typed: the raw content for ambient
// messages, the command argument for forced ones.
func expressionFor(msg domain.InboundMessage, out Outcome) string {
	if msg.Forced {
		return out.Expression
	}
	return msg.Content
}

func (s *Service) observe(msg domain.InboundMessage, out Outcome, label string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Verdicts.WithLabelValues(label).Inc()
	if out.Err != nil {
		mode := "ambient"
		if msg.Forced {
			mode = "forced"
		}
		s.metrics.EngineFailures.WithLabelValues(mode).Inc()
	}
}

func (s *Service) record(ctx context.Context, msg domain.InboundMessage, out Outcome, label string, replied bool) {
	if s.recorder == nil {
		return
	}
	// Text that triage rejected is ordinary conversation; only its verdict is kept.
	content, expression := msg.Content, out.Expression
	if !msg.Forced && !out.Verdict.Respond() {
		content, expression = "", ""
	}
	rec := domain.TriageRecord{
		MessageID:  msg.ID,
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		Content:    content,
		Expression: expression,
		Verdict:    label,
		Result:     out.Result,
		Forced:     msg.Forced,
		Replied:    replied,
		CreatedAt:  time.Now(),
	}
	if err := s.recorder.RecordTriage(ctx, rec); err != nil {
		s.logger.Warn("cannot record triage decision", "err", err)
	}
}
