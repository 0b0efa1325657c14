package pipeline

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// replyLimiter throttles ambient replies per chat so a channel spamming
// arithmetic does not turn the bot into a flood.
type replyLimiter struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	clock     clockwork.Clock
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// newReplyLimiter allows perMinute replies per chat with the given burst.
// perMinute <= 0 disables throttling.
func newReplyLimiter(perMinute float64, burst int) *replyLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	every := time.Duration(float64(time.Minute) / perMinute)
	// A chat idle for a full refill is indistinguishable from a new one.
	idle := time.Duration(burst) * every
	if idle < time.Minute {
		idle = time.Minute
	}
	return &replyLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Every(every),
		burst:   burst,
		idle:    idle,
		clock:   clockwork.NewRealClock(),
	}
}

// Allow reports whether chat may receive another reply now. A nil limiter
// allows everything.
func (l *replyLimiter) Allow(chat string) bool {
	if l == nil {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	e, ok := l.entries[chat]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[chat] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (l *replyLimiter) sweep(now time.Time) {
	for chat, e := range l.entries {
		if now.Sub(e.seen) >= l.idle {
			delete(l.entries, chat)
		}
	}
	l.lastSweep = now
}
