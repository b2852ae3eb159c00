// Package remote is the narrow client for the Cutline project store. The
// auto-save engine consumes ProjectService and never talks HTTP directly.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/cutline/cutline-agent/internal/timeline"
)

var (
	// ErrNotFound is returned when the remote project record does not exist.
	ErrNotFound = errors.New("project not found")

	// ErrPermissionDenied is returned when the remote store rejects the
	// caller's credentials for a project.
	ErrPermissionDenied = errors.New("permission denied")
)

// APIError is a non-2xx response from the project store.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrPermissionDenied:
		return e.StatusCode == 401 || e.StatusCode == 403
	}
	return false
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx)
// are considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// ProjectService is the remote persistence interface consumed by the
// auto-save engine.
type ProjectService interface {
	GetProject(ctx context.Context, id string) (*timeline.Project, error)
	CreateProject(ctx context.Context, project *timeline.Project) (*timeline.Project, error)
	UpdateProject(ctx context.Context, id string, fields map[string]any) (*timeline.Project, error)
	UpdateProjectTimeline(ctx context.Context, id string, snapshot *timeline.Snapshot) error
	BatchUpdateClips(ctx context.Context, clips []timeline.Clip) error
	BatchUpdateKeyframes(ctx context.Context, keyframes []timeline.Keyframe) error
}

// HealthChecker is implemented by clients that can probe store reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
