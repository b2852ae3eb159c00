package autosave

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-agent/internal/remote"
	"github.com/cutline/cutline-agent/internal/timeline"
)

// fakeRemote is an in-memory ProjectService with programmable write failures
// and call recording.
type fakeRemote struct {
	mu       sync.Mutex
	projects map[string]*timeline.Project
	getErr   error
	failNext int   // fail this many upcoming write calls
	writeErr error // error returned for failed writes

	creates        int
	fieldWrites    []map[string]any
	timelineWrites int
	clipWrites     [][]timeline.Clip
	keyframeWrites [][]timeline.Keyframe

	block chan struct{} // if set, UpdateProjectTimeline waits on it
}

func newFakeRemote(projects ...*timeline.Project) *fakeRemote {
	f := &fakeRemote{projects: make(map[string]*timeline.Project)}
	for _, p := range projects {
		cp := *p
		f.projects[p.ID] = &cp
	}
	return f
}

func (f *fakeRemote) failWriteLocked() error {
	if f.failNext > 0 {
		f.failNext--
		if f.writeErr != nil {
			return f.writeErr
		}
		return &remote.APIError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}
	}
	return nil
}

func (f *fakeRemote) GetProject(_ context.Context, id string) (*timeline.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, &remote.APIError{StatusCode: http.StatusNotFound, Code: "not_found", Message: "no such project"}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRemote) CreateProject(_ context.Context, project *timeline.Project) (*timeline.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWriteLocked(); err != nil {
		return nil, err
	}
	f.creates++
	cp := *project
	if cp.Version == 0 {
		cp.Version = 1
	}
	f.projects[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRemote) UpdateProject(_ context.Context, id string, fields map[string]any) (*timeline.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWriteLocked(); err != nil {
		return nil, err
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, &remote.APIError{StatusCode: http.StatusNotFound, Code: "not_found", Message: "no such project"}
	}
	f.fieldWrites = append(f.fieldWrites, fields)
	if title, ok := fields["title"].(string); ok {
		p.Title = title
	}
	p.Version++
	cp := *p
	return &cp, nil
}

func (f *fakeRemote) UpdateProjectTimeline(_ context.Context, id string, _ *timeline.Snapshot) error {
	f.mu.Lock()
	err := f.failWriteLocked()
	block := f.block
	if err == nil {
		f.timelineWrites++
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if block != nil {
		<-block
	}
	return nil
}

func (f *fakeRemote) BatchUpdateClips(_ context.Context, clips []timeline.Clip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWriteLocked(); err != nil {
		return err
	}
	f.clipWrites = append(f.clipWrites, clips)
	return nil
}

func (f *fakeRemote) BatchUpdateKeyframes(_ context.Context, keyframes []timeline.Keyframe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWriteLocked(); err != nil {
		return err
	}
	f.keyframeWrites = append(f.keyframeWrites, keyframes)
	return nil
}

type remoteStats struct {
	creates        int
	fieldWrites    []map[string]any
	timelineWrites int
	clipWrites     [][]timeline.Clip
	keyframeWrites [][]timeline.Keyframe
}

func (f *fakeRemote) snapshot() remoteStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return remoteStats{
		creates:        f.creates,
		fieldWrites:    f.fieldWrites,
		timelineWrites: f.timelineWrites,
		clipWrites:     f.clipWrites,
		keyframeWrites: f.keyframeWrites,
	}
}

func (f *fakeRemote) setProjectVersion(id string, version int64, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[id]
	p.Version = version
	p.UpdatedAt = updatedAt
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestEngine(svc remote.ProjectService, mock *clock.Mock, opts Options) *Engine {
	opts.Clock = mock
	return NewEngine(svc, nil, testLogger(), opts)
}

func timelineOp() timeline.SaveOperation {
	return timeline.SaveOperation{
		Type:     timeline.OpTimeline,
		Timeline: &timeline.Snapshot{DurationMs: 5000},
	}
}

func clipOp(id string) timeline.SaveOperation {
	return timeline.SaveOperation{
		Type: timeline.OpClip,
		Clip: &timeline.Clip{ID: id, TrackID: "t1", StartMs: 0, EndMs: 1000},
	}
}

// waitStatus polls until the status satisfies cond; mock timer callbacks run
// on their own goroutines, so observable state can lag a clock advance.
func waitStatus(t *testing.T, eng *Engine, projectID string, cond func(*SaveStatus) bool) *SaveStatus {
	t.Helper()
	var st *SaveStatus
	require.Eventually(t, func() bool {
		st = eng.Status(projectID)
		return st != nil && cond(st)
	}, 2*time.Second, time.Millisecond)
	return st
}

func TestDebounceCoalescesBurst(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Title: "Cut A", Version: 3})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	eng.QueueSave("p1", clipOp("c1"))
	mock.Add(200 * time.Millisecond)
	eng.QueueSave("p1", clipOp("c2"))
	mock.Add(200 * time.Millisecond)
	eng.QueueSave("p1", clipOp("c3"))

	// Half a debounce window of quiet: nothing should have been written yet.
	mock.Add(500 * time.Millisecond)
	assert.Empty(t, f.snapshot().clipWrites)

	mock.Add(600 * time.Millisecond)
	st := waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.PendingOperations == 0 })

	rec := f.snapshot()
	require.Len(t, rec.clipWrites, 1, "burst should collapse into one batch")
	assert.Len(t, rec.clipWrites[0], 3)
	assert.Equal(t, int64(4), st.Version, "one cycle bumps the version exactly once")

	require.Eventually(t, func() bool {
		m := eng.Metrics()
		return m.Attempts == 1 && m.Successes == 1
	}, 2*time.Second, time.Millisecond)
}

func TestPeriodicFlushBoundsStaleness(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	// Continuous editing: a new operation every 800ms keeps pushing the
	// debounce timer back, so only the periodic flush can save.
	for i := 0; i < 6; i++ {
		eng.QueueSave("p1", timelineOp())
		mock.Add(800 * time.Millisecond)
	}
	mock.Add(400 * time.Millisecond) // cross the 5s flush boundary

	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.Version == 2 })
	assert.GreaterOrEqual(t, f.snapshot().timelineWrites, 1)
}

func TestQueueEvictsOldestAtCap(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{MaxPendingOps: 5})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	eng.Pause()
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"} {
		eng.QueueSave("p1", clipOp(id))
	}

	st := eng.Status("p1")
	require.NotNil(t, st)
	assert.Equal(t, 5, st.PendingOperations)

	eng.Resume()
	require.NoError(t, eng.ForceSave(context.Background(), "p1"))

	rec := f.snapshot()
	require.Len(t, rec.clipWrites, 1)
	ids := make([]string, 0, len(rec.clipWrites[0]))
	for _, c := range rec.clipWrites[0] {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"c3", "c4", "c5", "c6", "c7"}, ids, "oldest operations evicted first")
}

func TestConflictDetection(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		serverVersion int64
		serverUpdated time.Time
		wantConflict  bool
	}{
		{"server ahead", 6, base, true},
		{"in sync", 5, base, false},
		{"equal version small drift", 5, base.Add(29 * time.Second), false},
		{"equal version large drift", 5, base.Add(31 * time.Second), true},
		{"equal version large drift behind", 5, base.Add(-31 * time.Second), true},
		{"server behind", 4, base.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeRemote(&timeline.Project{ID: "p1", Version: 5, UpdatedAt: base})
			eng := newTestEngine(f, clock.NewMock(), Options{})
			require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

			f.setProjectVersion("p1", tt.serverVersion, tt.serverUpdated)
			assert.Equal(t, tt.wantConflict, eng.HasConflict(context.Background(), "p1"))
		})
	}
}

func TestConflictCheckFailureIsOptimistic(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 5})
	eng := newTestEngine(f, clock.NewMock(), Options{})
	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	f.mu.Lock()
	f.getErr = &remote.APIError{StatusCode: http.StatusServiceUnavailable, Message: "down"}
	f.mu.Unlock()

	assert.False(t, eng.HasConflict(context.Background(), "p1"))
}

func TestConflictMergeFastForwards(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 3})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	// Another client pushed the project to v5 behind our back.
	f.setProjectVersion("p1", 5, mock.Now().Add(time.Hour))

	eng.QueueSave("p1", timelineOp())
	require.NoError(t, eng.ForceSave(context.Background(), "p1"))

	st := eng.Status("p1")
	require.NotNil(t, st)
	assert.Equal(t, int64(6), st.Version, "merge fast-forwards to server version before bumping")
	assert.Equal(t, 1, f.snapshot().timelineWrites)
	assert.Equal(t, int64(1), eng.Metrics().Conflicts)
}

func TestConflictAbortDropsCycleOps(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 3})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	var gotErr error
	cb := Callbacks{
		OnConflictDetected: StaticPolicy(PolicyAbort),
		OnSaveError:        func(_ string, err error) { gotErr = err },
	}
	require.NoError(t, eng.InitializeProject(context.Background(), "p1", cb))

	f.setProjectVersion("p1", 9, mock.Now())

	eng.QueueSave("p1", clipOp("c1"))
	eng.QueueSave("p1", clipOp("c2"))
	err := eng.ForceSave(context.Background(), "p1")
	require.ErrorIs(t, err, ErrConflictAborted)
	assert.ErrorIs(t, gotErr, ErrConflictAborted)

	st := eng.Status("p1")
	require.NotNil(t, st)
	assert.Equal(t, 0, st.PendingOperations, "aborted cycle discards its operations")
	assert.Empty(t, f.snapshot().clipWrites)
}

func TestManualConflictHaltsUntilResolved(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 3})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	cb := Callbacks{OnConflictDetected: StaticPolicy(PolicyManual)}
	require.NoError(t, eng.InitializeProject(context.Background(), "p1", cb))

	f.setProjectVersion("p1", 9, mock.Now())

	eng.QueueSave("p1", timelineOp())
	err := eng.ForceSave(context.Background(), "p1")
	require.ErrorIs(t, err, ErrManualResolutionRequired)

	st := eng.Status("p1")
	require.NotNil(t, st)
	assert.True(t, st.HasConflicts)
	assert.Equal(t, 1, st.PendingOperations, "halted cycle keeps its operations")

	// Automatic triggers must stay silent while halted.
	eng.QueueSave("p1", timelineOp())
	mock.Add(30 * time.Second)
	assert.Equal(t, 0, f.snapshot().timelineWrites)

	require.ErrorIs(t, eng.ForceSave(context.Background(), "p1"), ErrManualResolutionRequired)

	require.NoError(t, eng.ResolveConflictManually(context.Background(), "p1", PolicyOverwrite))
	st = eng.Status("p1")
	require.NotNil(t, st)
	assert.False(t, st.HasConflicts)
	assert.Equal(t, 0, st.PendingOperations)
	assert.Equal(t, 1, f.snapshot().timelineWrites)
}

func TestResolveManuallyRejectsManualPolicy(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	eng := newTestEngine(f, clock.NewMock(), Options{})
	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	assert.Error(t, eng.ResolveConflictManually(context.Background(), "p1", PolicyManual))
}

func TestRetryBackoffSchedule(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	// Long flush interval keeps the periodic timer out of the way so the
	// retry schedule is observable in isolation.
	eng := newTestEngine(f, mock, Options{FlushInterval: time.Hour})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	f.mu.Lock()
	f.failNext = 2
	f.mu.Unlock()

	eng.QueueSave("p1", timelineOp())

	mock.Add(time.Second) // debounce fires, attempt 1 fails
	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.RetryCount == 1 })

	mock.Add(2 * time.Second) // first retry, attempt 2 fails
	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.RetryCount == 2 })

	mock.Add(4 * time.Second) // second retry succeeds
	st := waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.Version == 2 })
	assert.Equal(t, 0, st.RetryCount)
	assert.Empty(t, st.LastError)

	require.Eventually(t, func() bool {
		m := eng.Metrics()
		return m.Attempts == 3 && m.Failures == 2 && m.Successes == 1
	}, 2*time.Second, time.Millisecond)
}

func TestRetriesExhaustedSurfaceErrorAndKeepQueue(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{FlushInterval: time.Hour})

	errCh := make(chan error, 1)
	cb := Callbacks{OnSaveError: func(_ string, err error) { errCh <- err }}
	require.NoError(t, eng.InitializeProject(context.Background(), "p1", cb))

	f.mu.Lock()
	f.failNext = 10
	f.mu.Unlock()

	eng.QueueSave("p1", timelineOp())

	mock.Add(time.Second)
	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.RetryCount == 1 })
	mock.Add(2 * time.Second)
	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.RetryCount == 2 })
	mock.Add(4 * time.Second)
	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.RetryCount == 3 })
	mock.Add(6 * time.Second)
	st := waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.RetryCount == 4 })

	select {
	case err := <-errCh:
		var apiErr *remote.APIError
		require.ErrorAs(t, err, &apiErr)
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnSaveError after retries exhausted")
	}

	assert.Equal(t, 1, st.PendingOperations, "operations survive exhausted retries")
	assert.NotEmpty(t, st.LastError)
	assert.Equal(t, int64(4), eng.Metrics().Failures)

	// A later reconnect drains the surviving queue.
	f.mu.Lock()
	f.failNext = 0
	f.mu.Unlock()
	eng.SetOnline(false)
	eng.SetOnline(true)

	st = waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.Version == 2 })
	assert.Equal(t, 0, st.PendingOperations)
}

func TestReconnectBeforeBackoffResumesOnce(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{FlushInterval: time.Hour})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	f.mu.Lock()
	f.failNext = 1
	f.mu.Unlock()

	eng.QueueSave("p1", timelineOp())
	mock.Add(time.Second) // debounce fires, connection drops mid-save
	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.RetryCount == 1 })

	// Connectivity returns before the 2s backoff elapses; the resume saves
	// immediately instead of waiting out the retry timer.
	eng.SetOnline(false)
	eng.SetOnline(true)

	st := waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.Version == 2 })
	assert.Equal(t, 0, st.PendingOperations)
	assert.Equal(t, 0, st.RetryCount)
	require.Equal(t, 1, f.snapshot().timelineWrites)

	// The retry timer armed by the failure must not replay the cycle.
	mock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.snapshot().timelineWrites)
	m := eng.Metrics()
	assert.Equal(t, int64(2), m.Attempts)
	assert.Equal(t, int64(1), m.Successes)
}

func TestSelfHealingCreateOnMissingRemote(t *testing.T) {
	f := newFakeRemote()
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	eng.QueueSave("p1", timeline.SaveOperation{
		Type:    timeline.OpProject,
		Project: map[string]any{"title": "My Cut"},
	})
	mock.Add(time.Second)

	st := waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.PendingOperations == 0 })
	assert.Equal(t, int64(2), st.Version)

	rec := f.snapshot()
	assert.Equal(t, 1, rec.creates)
	require.Len(t, rec.fieldWrites, 1)

	p, err := f.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "My Cut", p.Title)
}

func TestProjectFieldsLastWriterWins(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Title: "Old", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	eng.QueueSave("p1", timeline.SaveOperation{Type: timeline.OpProject, Project: map[string]any{"title": "A"}})
	eng.QueueSave("p1", timeline.SaveOperation{Type: timeline.OpProject, Project: map[string]any{"title": "B"}})
	require.NoError(t, eng.ForceSave(context.Background(), "p1"))

	rec := f.snapshot()
	require.Len(t, rec.fieldWrites, 1, "field updates shallow-merge into one write")
	assert.Equal(t, "B", rec.fieldWrites[0]["title"])
}

func TestOfflineQueuesAndReconnectFlushes(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	var transitions []bool
	cb := Callbacks{OnNetworkStatusChange: func(online bool) { transitions = append(transitions, online) }}
	require.NoError(t, eng.InitializeProject(context.Background(), "p1", cb))

	eng.SetOnline(false)
	eng.QueueSave("p1", clipOp("c1"))
	eng.QueueSave("p1", clipOp("c2"))
	mock.Add(time.Minute)
	assert.Empty(t, f.snapshot().clipWrites, "no save attempts while offline")

	eng.SetOnline(true)
	st := waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.PendingOperations == 0 })
	assert.Equal(t, int64(2), st.Version)
	require.Len(t, f.snapshot().clipWrites, 1)
	assert.Equal(t, []bool{false, true}, transitions)
}

func TestStopAutoSaveDiscardsState(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))
	eng.QueueSave("p1", timelineOp())
	eng.StopAutoSave("p1")

	mock.Add(time.Minute)
	assert.Equal(t, 0, f.snapshot().timelineWrites)
	assert.Nil(t, eng.Status("p1"))

	// Queueing after stop is a no-op, not a panic.
	eng.QueueSave("p1", timelineOp())
	require.ErrorIs(t, eng.ForceSave(context.Background(), "p1"), ErrNotInitialized)
}

func TestPauseSuspendsAutomaticTriggers(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	eng.Pause()
	eng.QueueSave("p1", timelineOp())
	mock.Add(time.Minute)
	assert.Equal(t, 0, f.snapshot().timelineWrites)

	// Explicit saves still work while paused.
	require.NoError(t, eng.ForceSave(context.Background(), "p1"))
	assert.Equal(t, 1, f.snapshot().timelineWrites)

	eng.Resume()
	assert.False(t, eng.IsPaused())
}

func TestConcurrentSaveRejected(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	release := make(chan struct{})
	f.mu.Lock()
	f.block = release
	f.mu.Unlock()

	eng.QueueSave("p1", timelineOp())
	done := make(chan error, 1)
	go func() { done <- eng.ForceSave(context.Background(), "p1") }()

	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.IsSaving })
	require.ErrorIs(t, eng.ForceSave(context.Background(), "p1"), ErrSaveInFlight)

	close(release)
	require.NoError(t, <-done)
	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return !s.IsSaving && s.Version == 2 })
}

func TestOpsQueuedDuringSaveSurviveForNextCycle(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	mock := clock.NewMock()
	eng := newTestEngine(f, mock, Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	release := make(chan struct{})
	f.mu.Lock()
	f.block = release
	f.mu.Unlock()

	eng.QueueSave("p1", clipOp("c1"))
	done := make(chan error, 1)
	go func() { done <- eng.ForceSave(context.Background(), "p1") }()
	waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return s.IsSaving })

	// Arrives mid-cycle; must not be lost when the cycle settles.
	eng.QueueSave("p1", clipOp("c2"))

	f.mu.Lock()
	f.block = nil
	f.mu.Unlock()
	close(release)
	require.NoError(t, <-done)

	st := waitStatus(t, eng, "p1", func(s *SaveStatus) bool { return !s.IsSaving })
	assert.Equal(t, 1, st.PendingOperations)

	require.NoError(t, eng.ForceSave(context.Background(), "p1"))
	rec := f.snapshot()
	require.Len(t, rec.clipWrites, 2)
	assert.Equal(t, "c2", rec.clipWrites[1][0].ID)
}

func TestInitializeIsIdempotent(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 7})
	eng := newTestEngine(f, clock.NewMock(), Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))
	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))

	st := eng.Status("p1")
	require.NotNil(t, st)
	assert.Equal(t, int64(7), st.Version)
	assert.Len(t, eng.Statuses(), 1)
}

func TestForceSaveWithEmptyQueueIsNoop(t *testing.T) {
	f := newFakeRemote(&timeline.Project{ID: "p1", Version: 1})
	eng := newTestEngine(f, clock.NewMock(), Options{})

	require.NoError(t, eng.InitializeProject(context.Background(), "p1", Callbacks{}))
	require.NoError(t, eng.ForceSave(context.Background(), "p1"))
	assert.Equal(t, int64(0), eng.Metrics().Attempts)
}
