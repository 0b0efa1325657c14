package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"calcbot/internal/bus"
	"calcbot/internal/domain"
	"calcbot/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type memRecorder struct {
	mu      sync.Mutex
	records []domain.TriageRecord
}

func (m *memRecorder) RecordTriage(_ context.Context, rec domain.TriageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecorder) all() []domain.TriageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TriageRecord(nil), m.records...)
}

type harness struct {
	bus      *bus.InMemoryBus
	service  *Service
	recorder *memRecorder
	metrics  *metrics.TriageMetrics
	sent     chan domain.OutboundMessage
}

func newHarness(t *testing.T, perMinute float64, burst int) *harness {
	t.Helper()
	b := bus.New(16, testLogger())
	t.Cleanup(b.Close)

	h := &harness{
		bus:      b,
		recorder: &memRecorder{},
		metrics:  metrics.NewTriageMetrics(metrics.NewRegistry()),
		sent:     make(chan domain.OutboundMessage, 16),
	}
	b.OnOutbound("test", func(msg domain.OutboundMessage) { h.sent <- msg })

	h.service = NewService(ServiceConfig{
		Pipeline:         realPipeline(),
		Bus:              b,
		Recorder:         h.recorder,
		Metrics:          h.metrics,
		Logger:           testLogger(),
		RepliesPerMinute: perMinute,
		ReplyBurst:       burst,
	})
	return h
}

func (h *harness) drain() []domain.OutboundMessage {
	var out []domain.OutboundMessage
	for {
		select {
		case msg := <-h.sent:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHandle_RepliesToCalculation(t *testing.T) {
	h := newHarness(t, 0, 0)

	out := h.service.Handle(context.Background(), domain.InboundMessage{
		ID: "m1", Channel: "test", ChatID: "c1", Content: "1+1",
	})
	assert.Equal(t, LabelRespond, out.Label())

	sent := h.drain()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.OutboundMessage{
		Channel: "test", ChatID: "c1", ReplyTo: "m1",
		Content: "= 2", Expression: "1+1", Result: "2",
	}, sent[0])

	recs := h.recorder.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "respond", recs[0].Verdict)
	assert.True(t, recs[0].Replied)
	assert.Equal(t, "1+1", recs[0].Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Verdicts.WithLabelValues("respond")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Replies.WithLabelValues("test", "sent")))
}

func TestHandle_SkipsAutomatedAuthors(t *testing.T) {
	h := newHarness(t, 0, 0)

	h.service.Handle(context.Background(), domain.InboundMessage{
		Channel: "test", ChatID: "c1", Content: "1+1", AuthorIsAutomated: true,
	})
	assert.Empty(t, h.drain())
	assert.Empty(t, h.recorder.all())
}

func TestHandle_SilentSkipIsRecorded(t *testing.T) {
	h := newHarness(t, 0, 0)

	h.service.Handle(context.Background(), domain.InboundMessage{
		Channel: "test", ChatID: "c1", Content: "100% test",
	})
	assert.Empty(t, h.drain())

	recs := h.recorder.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "percent_without_math", recs[0].Verdict)
	assert.False(t, recs[0].Replied)
	assert.Empty(t, recs[0].Content, "rejected chat text is not stored")
	assert.Empty(t, recs[0].Expression)
}

func TestHandle_ForcedFailureIsReported(t *testing.T) {
	h := newHarness(t, 0, 0)

	h.service.Handle(context.Background(), domain.InboundMessage{
		ID: "i1", Channel: "test", ChatID: "c1", Content: "banana", Forced: true,
	})
	sent := h.drain()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Failed)
	assert.Equal(t, "Could not evaluate `banana`.", sent[0].Content)
	assert.Equal(t, "banana", sent[0].Expression)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EngineFailures.WithLabelValues("forced")))
}

func TestHandle_AmbientRepliesAreThrottledPerChat(t *testing.T) {
	h := newHarness(t, 1, 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		h.service.Handle(ctx, domain.InboundMessage{Channel: "test", ChatID: "busy", Content: "2*2"})
	}
	h.service.Handle(ctx, domain.InboundMessage{Channel: "test", ChatID: "quiet", Content: "2*2"})
	// Forced commands bypass the limiter.
	h.service.Handle(ctx, domain.InboundMessage{Channel: "test", ChatID: "busy", Content: "2*2", Forced: true})

	assert.Len(t, h.drain(), 4)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Replies.WithLabelValues("test", "throttled")))
}

func TestRun_ConsumesBusUntilCancelled(t *testing.T) {
	h := newHarness(t, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.service.Run(ctx)
		close(done)
	}()

	h.bus.Publish(domain.InboundMessage{Channel: "test", ChatID: "c1", Content: "6*7"})

	select {
	case msg := <-h.sent:
		assert.Equal(t, "= 42", msg.Content)
		assert.NotEmpty(t, msg.ReplyTo)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from running service")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReplyLimiter_NilAllowsEverything(t *testing.T) {
	var l *replyLimiter
	assert.Nil(t, newReplyLimiter(0, 5))
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("x"))
	}
}

func TestReplyLimiter_EvictsIdleChats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newReplyLimiter(60, 2)
	l.clock = clock

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	require.Len(t, l.entries, 2)

	clock.Advance(30 * time.Second)
	assert.True(t, l.Allow("c"))
	assert.Len(t, l.entries, 3, "no sweep before the idle window")

	clock.Advance(45 * time.Second)
	assert.True(t, l.Allow("c"))
	assert.Len(t, l.entries, 1, "a and b were idle for a full window")
	assert.Contains(t, l.entries, "c")

	assert.True(t, l.Allow("a"), "an evicted chat starts with a full burst")
}
