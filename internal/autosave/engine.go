// Package autosave implements the local-first auto-save engine: it coalesces
// bursts of editor mutations into batched writes, detects version conflicts
// against the remote project store, applies a caller-supplied resolution
// policy, retries failed writes with backoff and resumes queued saves on
// reconnect. Callers never block on a save; cycles run off timers.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cutline/cutline-agent/internal/cache"
	"github.com/cutline/cutline-agent/internal/remote"
	"github.com/cutline/cutline-agent/internal/timeline"
)

const (
	DefaultDebounce         = time.Second
	DefaultFlushInterval    = 5 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBaseDelay   = 2 * time.Second
	DefaultMaxPendingOps    = 50
	DefaultVersionTolerance = 30 * time.Second
)

// Options tunes one engine instance. Zero values fall back to defaults.
type Options struct {
	Debounce         time.Duration
	FlushInterval    time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	MaxPendingOps    int
	VersionTolerance time.Duration

	// Clock drives all timers; tests inject clock.NewMock() to advance
	// virtual time deterministically.
	Clock clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if o.MaxPendingOps <= 0 {
		o.MaxPendingOps = DefaultMaxPendingOps
	}
	if o.VersionTolerance <= 0 {
		o.VersionTolerance = DefaultVersionTolerance
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// Callbacks notify the editing session about save lifecycle events. All
// fields are optional. OnConflictDetected must be synchronous and pure; when
// nil, conflicts resolve with PolicyMerge.
type Callbacks struct {
	OnSaveStart           func(projectID string)
	OnSaveSuccess         func(projectID string, version int64)
	OnSaveError           func(projectID string, err error)
	OnConflictDetected    PolicyFunc
	OnNetworkStatusChange func(online bool)
}

// SaveStatus is a read-only snapshot of one project's save state.
type SaveStatus struct {
	ProjectID         string    `json:"project_id"`
	IsSaving          bool      `json:"is_saving"`
	HasConflicts      bool      `json:"has_conflicts"`
	PendingOperations int       `json:"pending_operations"`
	LastSaved         time.Time `json:"last_saved"`
	Version           int64     `json:"version"`
	RetryCount        int       `json:"retry_count"`
	LastError         string    `json:"last_error,omitempty"`
}

// saveState is the only mutable shared state in the subsystem; everything
// here is guarded by Engine.mu except the timers' own goroutines.
type saveState struct {
	projectID string

	// version mirrors the remote project version; it only increases, and
	// only after a confirmed successful remote write. Never read it as
	// ground truth outside conflict detection.
	version       int64
	remoteUpdated time.Time

	lastSaved    time.Time
	pending      []timeline.SaveOperation
	saving       bool
	hasConflicts bool
	retryCount   int
	lastErr      error
	callbacks    Callbacks

	debounce *clock.Timer
	flush    *clock.Timer
	retry    *clock.Timer
	stopped  bool
}

// Engine owns the per-project save registry. It is an explicit object, not a
// singleton: tests and multi-session hosts run independent instances.
type Engine struct {
	remote  remote.ProjectService
	cache   *cache.Store
	logger  *slog.Logger
	clock   clock.Clock
	opts    Options
	metrics *Metrics

	paused atomic.Bool

	mu     sync.Mutex
	states map[string]*saveState
	online bool
}

// NewEngine creates an engine over the given remote store and local cache.
// cacheStore may be nil; cache writes are best-effort anyway.
func NewEngine(svc remote.ProjectService, cacheStore *cache.Store, logger *slog.Logger, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		remote:  svc,
		cache:   cacheStore,
		logger:  logger,
		opts:    opts,
		clock:   opts.Clock,
		metrics: &Metrics{},
		states:  make(map[string]*saveState),
		online:  true,
	}
}

// InitializeProject creates save state for a project and seeds the local
// version mirror from the remote store. NotFound seeds version 1 (the record
// is created on first save); permission and network failures fall back to
// version 1 as well since the save pipeline will retry.
func (e *Engine) InitializeProject(ctx context.Context, projectID string, cb Callbacks) error {
	if projectID == "" {
		return errors.New("project id is required")
	}

	e.mu.Lock()
	if _, ok := e.states[projectID]; ok {
		e.mu.Unlock()
		e.logger.Debug("auto-save already initialized", "project_id", projectID)
		return nil
	}
	e.mu.Unlock()

	version := int64(1)
	var remoteUpdated time.Time

	p, err := e.remote.GetProject(ctx, projectID)
	switch {
	case err == nil:
		version = p.Version
		remoteUpdated = p.UpdatedAt
	case errors.Is(err, remote.ErrNotFound):
		e.logger.Info("remote project missing, will create on first save", "project_id", projectID)
	case errors.Is(err, remote.ErrPermissionDenied):
		e.logger.Warn("permission denied seeding version mirror, starting fresh", "project_id", projectID)
	default:
		e.logger.Warn("could not seed version mirror, starting fresh", "project_id", projectID, "error", err)
	}

	st := &saveState{
		projectID:     projectID,
		version:       version,
		remoteUpdated: remoteUpdated,
		callbacks:     cb,
	}

	e.mu.Lock()
	if _, ok := e.states[projectID]; ok {
		e.mu.Unlock()
		return nil
	}
	e.states[projectID] = st
	st.flush = e.clock.AfterFunc(e.opts.FlushInterval, func() { e.flushTick(projectID) })
	e.mu.Unlock()

	e.logger.Info("auto-save initialized", "project_id", projectID, "version", version)
	return nil
}

// QueueSave appends a mutation to the project's pending queue and (re)arms
// the debounce timer. It never fails: operations for uninitialized projects
// are dropped with a warning, and a full queue evicts its oldest entries.
func (e *Engine) QueueSave(projectID string, op timeline.SaveOperation) {
	e.mu.Lock()
	st, ok := e.states[projectID]
	if !ok {
		e.mu.Unlock()
		e.logger.Warn("queueSave for uninitialized project, dropping operation",
			"project_id", projectID, "op_type", op.Type)
		return
	}

	if op.QueuedAt.IsZero() {
		op.QueuedAt = e.clock.Now()
	}

	if len(st.pending) >= e.opts.MaxPendingOps {
		drop := len(st.pending) - e.opts.MaxPendingOps + 1
		st.pending = append(st.pending[:0:0], st.pending[drop:]...)
		e.logger.Warn("pending queue full, evicted oldest operations",
			"project_id", projectID, "evicted", drop)
	}
	st.pending = append(st.pending, op)

	if st.debounce != nil {
		st.debounce.Stop()
	}
	st.debounce = e.clock.AfterFunc(e.opts.Debounce, func() { e.debounceFire(projectID) })
	e.mu.Unlock()
}

// ForceSave cancels the debounce timer and runs a save cycle immediately.
// Used for explicit "save now" and navigation-away. Returns ErrSaveInFlight
// while another cycle for the project is running.
func (e *Engine) ForceSave(ctx context.Context, projectID string) error {
	e.mu.Lock()
	st, ok := e.states[projectID]
	if !ok {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if st.debounce != nil {
		st.debounce.Stop()
		st.debounce = nil
	}
	e.mu.Unlock()

	return e.runSave(ctx, projectID, "force")
}

// StopAutoSave cancels all timers and removes the project's save state.
// Pending operations are discarded; callers flush with ForceSave first.
func (e *Engine) StopAutoSave(projectID string) {
	e.mu.Lock()
	st, ok := e.states[projectID]
	if !ok {
		e.mu.Unlock()
		return
	}
	st.stopped = true
	for _, t := range []*clock.Timer{st.debounce, st.flush, st.retry} {
		if t != nil {
			t.Stop()
		}
	}
	delete(e.states, projectID)
	pending := len(st.pending)
	e.mu.Unlock()

	e.logger.Info("auto-save stopped", "project_id", projectID, "discarded_ops", pending)
}

// Status returns a snapshot for UI display, or nil for uninitialized ids.
func (e *Engine) Status(projectID string) *SaveStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[projectID]
	if !ok {
		return nil
	}
	return snapshotStatus(st)
}

// Statuses returns snapshots for every tracked project.
func (e *Engine) Statuses() []*SaveStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*SaveStatus, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, snapshotStatus(st))
	}
	return out
}

func snapshotStatus(st *saveState) *SaveStatus {
	status := &SaveStatus{
		ProjectID:         st.projectID,
		IsSaving:          st.saving,
		HasConflicts:      st.hasConflicts,
		PendingOperations: len(st.pending),
		LastSaved:         st.lastSaved,
		Version:           st.version,
		RetryCount:        st.retryCount,
	}
	if st.lastErr != nil {
		status.LastError = st.lastErr.Error()
	}
	return status
}

// ResolveConflictManually clears the manual-conflict halt and re-enters the
// save pipeline with the chosen final policy. PolicyAbort discards pending
// operations instead of saving; PolicyManual is not a valid final policy.
func (e *Engine) ResolveConflictManually(ctx context.Context, projectID string, policy Policy) error {
	if policy == PolicyManual {
		return errors.New("manual is not a final resolution policy")
	}

	e.mu.Lock()
	st, ok := e.states[projectID]
	if !ok {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	st.hasConflicts = false
	if policy == PolicyAbort {
		dropped := len(st.pending)
		st.pending = nil
		e.mu.Unlock()
		e.logger.Info("conflict resolved by abort", "project_id", projectID, "dropped_ops", dropped)
		return nil
	}
	hasPending := len(st.pending) > 0
	e.mu.Unlock()

	e.logger.Info("conflict resolved manually", "project_id", projectID, "policy", policy)
	if !hasPending {
		return nil
	}
	return e.saveCycle(ctx, projectID, "manual-resolve", StaticPolicy(policy))
}

// SetOnline records a connectivity transition. Going online immediately
// attempts a save for every project with pending operations that is not
// already saving, so offline edits do not wait for the next timer.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	was := e.online
	e.online = online

	var resume []string
	var notify []Callbacks
	if was != online {
		for id, st := range e.states {
			notify = append(notify, st.callbacks)
			if online && len(st.pending) > 0 && !st.saving && !st.hasConflicts {
				resume = append(resume, id)
			}
		}
	}
	e.mu.Unlock()

	if was == online {
		return
	}
	e.logger.Info("network status changed", "online", online)

	for _, cb := range notify {
		if cb.OnNetworkStatusChange != nil {
			cb.OnNetworkStatusChange(online)
		}
	}
	if !online || e.paused.Load() {
		return
	}
	for _, id := range resume {
		if err := e.runSave(context.Background(), id, "reconnect"); err != nil {
			e.logger.Warn("resume save failed", "project_id", id, "error", err)
		}
	}
}

// Online reports the last recorded connectivity state.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// Pause suspends automatic save triggers (debounce, flush, retry, resume).
// ForceSave still works while paused.
func (e *Engine) Pause() {
	e.paused.Store(true)
	e.logger.Info("auto-save paused")
}

func (e *Engine) Resume() {
	e.paused.Store(false)
	e.logger.Info("auto-save resumed")
}

func (e *Engine) IsPaused() bool {
	return e.paused.Load()
}

// Metrics returns aggregate save counters for this engine.
func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// debounceFire runs when the debounce window elapses without new activity.
func (e *Engine) debounceFire(projectID string) {
	if !e.shouldAutoSave(projectID) {
		return
	}
	if err := e.runSave(context.Background(), projectID, "debounce"); err != nil {
		e.logger.Debug("debounced save did not complete", "project_id", projectID, "error", err)
	}
}

// flushTick is the periodic safety net: it bounds staleness under continuous
// editing, where the debounce timer keeps being pushed back.
func (e *Engine) flushTick(projectID string) {
	e.mu.Lock()
	st, ok := e.states[projectID]
	if !ok || st.stopped {
		e.mu.Unlock()
		return
	}
	st.flush = e.clock.AfterFunc(e.opts.FlushInterval, func() { e.flushTick(projectID) })
	e.mu.Unlock()

	if !e.shouldAutoSave(projectID) {
		return
	}
	if err := e.runSave(context.Background(), projectID, "periodic"); err != nil {
		e.logger.Debug("periodic save did not complete", "project_id", projectID, "error", err)
	}
}

func (e *Engine) retryFire(projectID string) {
	if !e.shouldAutoSave(projectID) {
		return
	}
	if err := e.runSave(context.Background(), projectID, "retry"); err != nil {
		e.logger.Debug("retry save did not complete", "project_id", projectID, "error", err)
	}
}

// shouldAutoSave gates automatic triggers; pauses, offline periods and
// manual conflicts halt them without surfacing errors.
func (e *Engine) shouldAutoSave(projectID string) bool {
	if e.paused.Load() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.online {
		return false
	}
	st, ok := e.states[projectID]
	return ok && !st.stopped && !st.saving && !st.hasConflicts && len(st.pending) > 0
}
