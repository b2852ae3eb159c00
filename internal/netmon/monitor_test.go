package netmon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	mu  sync.Mutex
	err error
}

func (f *fakeChecker) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeChecker) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type recordingSink struct {
	mu          sync.Mutex
	transitions []bool
}

func (s *recordingSink) SetOnline(online bool) {
	s.mu.Lock()
	s.transitions = append(s.transitions, online)
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.transitions...)
}

func TestMonitorTransitions(t *testing.T) {
	mock := clock.NewMock()
	checker := &fakeChecker{}
	sink := &recordingSink{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	m := New(checker, sink, logger, Options{
		Interval:         10 * time.Second,
		FailureThreshold: 2,
		Clock:            mock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond) // let Run register its ticker

	waitTransitions := func(want int) []bool {
		var got []bool
		require.Eventually(t, func() bool {
			got = sink.snapshot()
			return len(got) >= want
		}, 2*time.Second, time.Millisecond)
		return got
	}

	// Healthy pings keep the assumed-online state silent.
	mock.Add(10 * time.Second)
	mock.Add(10 * time.Second)
	assert.True(t, m.Online())
	assert.Empty(t, sink.snapshot())

	// One failure is tolerated; the second flips offline.
	checker.setErr(errors.New("connection refused"))
	mock.Add(10 * time.Second)
	assert.True(t, m.Online())
	mock.Add(10 * time.Second)
	got := waitTransitions(1)
	assert.Equal(t, []bool{false}, got)
	assert.False(t, m.Online())

	// A single success flips back online immediately.
	checker.setErr(nil)
	mock.Add(10 * time.Second)
	got = waitTransitions(2)
	assert.Equal(t, []bool{false, true}, got)
	assert.True(t, m.Online())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on context cancel")
	}
}

func TestMonitorFailureCounterResets(t *testing.T) {
	mock := clock.NewMock()
	checker := &fakeChecker{}
	sink := &recordingSink{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	m := New(checker, sink, logger, Options{
		Interval:         10 * time.Second,
		FailureThreshold: 2,
		Clock:            mock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	time.Sleep(10 * time.Millisecond) // let Run register its ticker

	// fail, recover, fail: the counter must restart after the success, so
	// no offline transition ever fires.
	checker.setErr(errors.New("timeout"))
	mock.Add(10 * time.Second)
	checker.setErr(nil)
	mock.Add(10 * time.Second)
	checker.setErr(errors.New("timeout"))
	mock.Add(10 * time.Second)

	assert.True(t, m.Online())
	assert.Empty(t, sink.snapshot())
}
