package autosave

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cutline/cutline-agent/internal/cache"
	"github.com/cutline/cutline-agent/internal/remote"
	"github.com/cutline/cutline-agent/internal/timeline"
)

func (e *Engine) runSave(ctx context.Context, projectID, trigger string) error {
	return e.saveCycle(ctx, projectID, trigger, nil)
}

// saveCycle runs one complete save: snapshot pending operations, group them
// into a batched payload, check for a remote conflict, apply the resolution
// policy, persist, then settle bookkeeping. Operations queued while the cycle
// runs stay in the queue for the next one. override forces a policy instead
// of consulting the project's OnConflictDetected callback.
func (e *Engine) saveCycle(ctx context.Context, projectID, trigger string, override PolicyFunc) error {
	e.mu.Lock()
	st, ok := e.states[projectID]
	if !ok {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if st.saving {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	if st.hasConflicts && override == nil {
		e.mu.Unlock()
		return ErrManualResolutionRequired
	}
	if len(st.pending) == 0 {
		e.mu.Unlock()
		return nil
	}

	cycleOps := make([]timeline.SaveOperation, len(st.pending))
	copy(cycleOps, st.pending)
	st.saving = true
	if st.debounce != nil {
		st.debounce.Stop()
		st.debounce = nil
	}
	if st.retry != nil {
		st.retry.Stop()
		st.retry = nil
	}
	localVersion := st.version
	localUpdated := st.remoteUpdated
	cb := st.callbacks
	e.mu.Unlock()

	logger := e.logger.With("project_id", projectID, "trigger", trigger, "ops", len(cycleOps))
	logger.Debug("save cycle started")

	if cb.OnSaveStart != nil {
		cb.OnSaveStart(projectID)
	}
	e.metrics.recordAttempt()
	started := e.clock.Now()

	payload := groupOperations(cycleOps)

	if info := e.detectConflict(ctx, projectID, localVersion, localUpdated); info != nil {
		e.metrics.recordConflict()

		policy := PolicyMerge
		switch {
		case override != nil:
			policy = override(*info)
		case cb.OnConflictDetected != nil:
			policy = cb.OnConflictDetected(*info)
		}
		logger.Warn("save conflict detected",
			"server_version", info.ServerVersion,
			"local_version", info.LocalVersion,
			"policy", policy)

		switch policy {
		case PolicyMerge:
			// Fast-forward the mirror to the server's view, then apply our
			// batched intent on top. Field-level merging stays server-side.
			e.mu.Lock()
			if info.ServerVersion > st.version {
				st.version = info.ServerVersion
			}
			if info.ServerUpdated.After(st.remoteUpdated) {
				st.remoteUpdated = info.ServerUpdated
			}
			e.mu.Unlock()
		case PolicyOverwrite:
			// Local intent wins; push as-is.
		case PolicyAbort:
			return e.finishAborted(projectID, len(cycleOps), cb)
		case PolicyManual:
			return e.finishHalted(projectID, cb)
		default:
			logger.Warn("unknown conflict policy, merging", "policy", policy)
		}
	}

	serverUpdated, err := e.persist(ctx, projectID, payload)
	if err != nil {
		return e.finishFailure(projectID, err, cb)
	}
	e.finishSuccess(projectID, len(cycleOps), serverUpdated, e.clock.Since(started), cb)
	return nil
}

// detectConflict fetches the remote project and compares versions. A newer
// remote version is always a conflict; equal versions conflict only when the
// remote timestamp drifted past the tolerance window, which indicates a write
// this client never observed. Fetch failures are treated optimistically as
// no conflict: the save itself will fail and retry if the remote is down.
func (e *Engine) detectConflict(ctx context.Context, projectID string, localVersion int64, localUpdated time.Time) *ConflictInfo {
	p, err := e.remote.GetProject(ctx, projectID)
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			e.logger.Debug("conflict check skipped", "project_id", projectID, "error", err)
		}
		return nil
	}

	conflict := p.Version > localVersion
	if !conflict && p.Version == localVersion && !localUpdated.IsZero() {
		drift := p.UpdatedAt.Sub(localUpdated)
		if drift < 0 {
			drift = -drift
		}
		conflict = drift > e.opts.VersionTolerance
	}
	if !conflict {
		return nil
	}
	return &ConflictInfo{
		ServerVersion: p.Version,
		LocalVersion:  localVersion,
		ServerUpdated: p.UpdatedAt,
		LocalUpdated:  localUpdated,
	}
}

// HasConflict checks the remote store for a conflicting write without
// starting a save or mutating any state. A probe for callers that want
// to know before committing to a policy; the save cycle runs its own
// check regardless.
func (e *Engine) HasConflict(ctx context.Context, projectID string) bool {
	e.mu.Lock()
	st, ok := e.states[projectID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	localVersion := st.version
	localUpdated := st.remoteUpdated
	e.mu.Unlock()

	return e.detectConflict(ctx, projectID, localVersion, localUpdated) != nil
}

// persist writes one grouped payload through the remote store. A missing
// remote project is created first (local-first sessions can start before the
// server knows the project). Independent sub-batches go out concurrently; any
// failure fails the whole cycle and the full payload is retried later, which
// is safe because every sub-write is an idempotent upsert. On success a copy
// lands in the local cache best-effort and the authoritative server timestamp
// is re-fetched.
func (e *Engine) persist(ctx context.Context, projectID string, payload *Payload) (time.Time, error) {
	if _, err := e.remote.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			return time.Time{}, err
		}
		if _, err := e.remote.CreateProject(ctx, initialProject(projectID, payload.ProjectFields)); err != nil {
			return time.Time{}, err
		}
		e.logger.Info("created missing remote project", "project_id", projectID)
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(payload.ProjectFields) > 0 {
		g.Go(func() error {
			_, err := e.remote.UpdateProject(gctx, projectID, payload.ProjectFields)
			return err
		})
	}
	if payload.Timeline != nil {
		g.Go(func() error {
			return e.remote.UpdateProjectTimeline(gctx, projectID, payload.Timeline)
		})
	}
	if len(payload.Clips) > 0 {
		g.Go(func() error {
			return e.remote.BatchUpdateClips(gctx, payload.Clips)
		})
	}
	if len(payload.Keyframes) > 0 {
		g.Go(func() error {
			return e.remote.BatchUpdateKeyframes(gctx, payload.Keyframes)
		})
	}
	if err := g.Wait(); err != nil {
		return time.Time{}, err
	}

	if e.cache != nil {
		e.mu.Lock()
		var nextVersion int64
		if st, ok := e.states[projectID]; ok {
			nextVersion = st.version + 1
		}
		e.mu.Unlock()

		rec := &cache.Record{
			ProjectID: projectID,
			Version:   nextVersion,
			UpdatedAt: e.clock.Now(),
			Timeline:  payload.Timeline,
			Project:   payload.ProjectFields,
		}
		if err := e.cache.StoreProjectCache(ctx, projectID, rec); err != nil {
			e.logger.Warn("cache write failed", "project_id", projectID, "error", err)
		}
	}

	var serverUpdated time.Time
	if p, err := e.remote.GetProject(ctx, projectID); err == nil {
		serverUpdated = p.UpdatedAt
	}
	return serverUpdated, nil
}

// initialProject builds the record for a self-healing create. Queued project
// field edits seed the title when present.
func initialProject(projectID string, fields map[string]any) *timeline.Project {
	p := &timeline.Project{
		ID:      projectID,
		Title:   "Untitled Project",
		Version: 1,
	}
	if title, ok := fields["title"].(string); ok && title != "" {
		p.Title = title
	}
	return p
}

func (e *Engine) finishSuccess(projectID string, opsSaved int, serverUpdated time.Time, latency time.Duration, cb Callbacks) {
	e.mu.Lock()
	st, ok := e.states[projectID]
	var version int64
	if ok {
		if opsSaved > len(st.pending) {
			opsSaved = len(st.pending)
		}
		st.pending = st.pending[opsSaved:]
		st.version++
		version = st.version
		st.retryCount = 0
		st.lastErr = nil
		st.saving = false
		if serverUpdated.IsZero() {
			st.lastSaved = e.clock.Now()
		} else {
			st.lastSaved = serverUpdated
			st.remoteUpdated = serverUpdated
		}
		if len(st.pending) > 0 && !st.stopped {
			st.debounce = e.clock.AfterFunc(e.opts.Debounce, func() { e.debounceFire(projectID) })
		}
	}
	e.mu.Unlock()

	e.metrics.recordSuccess(latency)
	e.logger.Info("save succeeded", "project_id", projectID, "version", version, "ops", opsSaved)
	if cb.OnSaveSuccess != nil {
		cb.OnSaveSuccess(projectID, version)
	}
}

// finishFailure keeps pending operations, bumps the retry counter and arms
// the retry timer with a linearly growing delay. Once retries are exhausted
// the error surfaces to the session; the queue survives for the periodic
// flush or a reconnect to pick up.
func (e *Engine) finishFailure(projectID string, err error, cb Callbacks) error {
	e.mu.Lock()
	st, ok := e.states[projectID]
	var attempt int
	if ok {
		st.saving = false
		st.lastErr = err
		st.retryCount++
		attempt = st.retryCount
		if attempt <= e.opts.MaxRetries && !st.stopped {
			delay := e.opts.RetryBaseDelay * time.Duration(attempt)
			st.retry = e.clock.AfterFunc(delay, func() { e.retryFire(projectID) })
		}
	}
	e.mu.Unlock()

	e.metrics.recordFailure()
	if attempt <= e.opts.MaxRetries {
		e.logger.Warn("save failed, will retry", "project_id", projectID, "attempt", attempt, "error", err)
	} else {
		e.logger.Error("save failed, retries exhausted", "project_id", projectID, "error", err)
		if cb.OnSaveError != nil {
			cb.OnSaveError(projectID, err)
		}
	}
	return err
}

// finishAborted drops the cycle's operations per the abort policy. Later
// queued operations are kept.
func (e *Engine) finishAborted(projectID string, opsDropped int, cb Callbacks) error {
	e.mu.Lock()
	if st, ok := e.states[projectID]; ok {
		if opsDropped > len(st.pending) {
			opsDropped = len(st.pending)
		}
		st.pending = st.pending[opsDropped:]
		st.saving = false
		st.lastErr = ErrConflictAborted
	}
	e.mu.Unlock()

	e.metrics.recordFailure()
	e.logger.Warn("save aborted by conflict policy", "project_id", projectID, "dropped_ops", opsDropped)
	if cb.OnSaveError != nil {
		cb.OnSaveError(projectID, ErrConflictAborted)
	}
	return ErrConflictAborted
}

// finishHalted parks the project until ResolveConflictManually. Pending
// operations are kept and automatic triggers skip the project.
func (e *Engine) finishHalted(projectID string, cb Callbacks) error {
	e.mu.Lock()
	if st, ok := e.states[projectID]; ok {
		st.saving = false
		st.hasConflicts = true
		st.lastErr = ErrManualResolutionRequired
	}
	e.mu.Unlock()

	e.metrics.recordFailure()
	e.logger.Warn("save halted pending manual conflict resolution", "project_id", projectID)
	if cb.OnSaveError != nil {
		cb.OnSaveError(projectID, ErrManualResolutionRequired)
	}
	return ErrManualResolutionRequired
}
