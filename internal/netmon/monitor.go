// Package netmon tracks reachability of the remote project store by polling
// its health endpoint. The auto-save engine consumes transitions: going
// online resumes queued saves, going offline just flags state since failed
// writes already land in the retry path.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cutline/cutline-agent/internal/remote"
)

const (
	DefaultInterval    = 10 * time.Second
	DefaultPingTimeout = 3 * time.Second

	// DefaultFailureThreshold debounces the offline transition: a single
	// dropped ping should not flip every project into offline mode.
	DefaultFailureThreshold = 2
)

// StatusSink receives connectivity transitions. *autosave.Engine satisfies it.
type StatusSink interface {
	SetOnline(online bool)
}

type Options struct {
	Interval         time.Duration
	PingTimeout      time.Duration
	FailureThreshold int
	Clock            clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = DefaultPingTimeout
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// Monitor polls a HealthChecker and forwards transitions to a sink. It
// assumes online at start so the first poll cannot spuriously pause saves
// before the store has even been contacted.
type Monitor struct {
	checker remote.HealthChecker
	sink    StatusSink
	logger  *slog.Logger
	opts    Options

	mu       sync.Mutex
	online   bool
	failures int
}

func New(checker remote.HealthChecker, sink StatusSink, logger *slog.Logger, opts Options) *Monitor {
	return &Monitor{
		checker: checker,
		sink:    sink,
		logger:  logger,
		opts:    opts.withDefaults(),
		online:  true,
	}
}

// Run polls until ctx is canceled. It blocks; callers start it in a
// goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.opts.Clock.Ticker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll performs one health check and applies the transition rules: any
// success flips online immediately, offline requires FailureThreshold
// consecutive failures.
func (m *Monitor) poll(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, m.opts.PingTimeout)
	err := m.checker.Ping(pingCtx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		m.failures = 0
		if !m.online {
			m.online = true
			m.logger.Info("remote store reachable again")
			m.sink.SetOnline(true)
		}
		return
	}

	m.failures++
	m.logger.Debug("health check failed", "consecutive", m.failures, "error", err)
	if m.online && m.failures >= m.opts.FailureThreshold {
		m.online = false
		m.logger.Warn("remote store unreachable, saves will queue", "error", err)
		m.sink.SetOnline(false)
	}
}

// Online reports the monitor's current view of connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}
