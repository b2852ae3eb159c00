package remote

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cutline/cutline-agent/internal/timeline"
)

// StubService is an in-memory project store used when the agent runs without
// cloud credentials. Saves succeed locally so the editor keeps working; data
// lives only for the process lifetime.
type StubService struct {
	logger *slog.Logger

	mu       sync.Mutex
	projects map[string]*timeline.Project
}

func NewStubService(logger *slog.Logger) *StubService {
	return &StubService{
		logger:   logger,
		projects: make(map[string]*timeline.Project),
	}
}

func (s *StubService) GetProject(ctx context.Context, id string) (*timeline.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, &APIError{StatusCode: 404, Code: "NOT_FOUND", Message: "project " + id + " not found"}
	}
	cp := *p
	return &cp, nil
}

func (s *StubService) CreateProject(ctx context.Context, project *timeline.Project) (*timeline.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *project
	if cp.ID == "" {
		cp.ID = timeline.NewID()
	}
	if cp.Version == 0 {
		cp.Version = 1
	}
	cp.UpdatedAt = time.Now().UTC()
	s.projects[cp.ID] = &cp

	s.logger.Info("remote stub: project created", "project_id", cp.ID)
	out := cp
	return &out, nil
}

func (s *StubService) UpdateProject(ctx context.Context, id string, fields map[string]any) (*timeline.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, &APIError{StatusCode: 404, Code: "NOT_FOUND", Message: "project " + id + " not found"}
	}
	if title, ok := fields["title"].(string); ok {
		p.Title = title
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (s *StubService) UpdateProjectTimeline(ctx context.Context, id string, snapshot *timeline.Snapshot) error {
	s.logger.Debug("remote stub: timeline update", "project_id", id, "tracks", len(snapshot.Tracks))
	return s.touch(id)
}

func (s *StubService) BatchUpdateClips(ctx context.Context, clips []timeline.Clip) error {
	s.logger.Debug("remote stub: clip batch", "count", len(clips))
	return nil
}

func (s *StubService) BatchUpdateKeyframes(ctx context.Context, keyframes []timeline.Keyframe) error {
	s.logger.Debug("remote stub: keyframe batch", "count", len(keyframes))
	return nil
}

func (s *StubService) Ping(ctx context.Context) error {
	return nil
}

func (s *StubService) touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[id]; ok {
		p.UpdatedAt = time.Now().UTC()
	}
	return nil
}
