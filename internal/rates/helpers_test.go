package rates

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"calcbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var errFake = errors.New("fake source down")

// fakeSource returns quotes or err. When gate is set, Fetch signals entered
// and blocks until gate is closed.
type fakeSource struct {
	name    string
	quotes  map[string]float64
	err     error
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
	// onFetch runs inside Fetch, e.g. to advance a fake clock.
	onFetch func()
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) (map[string]float64, error) {
	f.calls.Add(1)
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.gate != nil {
		f.once.Do(func() { close(f.entered) })
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64, len(f.quotes))
	for k, v := range f.quotes {
		out[k] = v
	}
	return out, nil
}

type memRecorder struct {
	mu   sync.Mutex
	recs []domain.RefreshRecord
}

func (m *memRecorder) RecordRefresh(_ context.Context, rec domain.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}
