package api

import (
	"github.com/cutline/cutline-agent/internal/autosave"
	"github.com/cutline/cutline-agent/internal/timeline"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State    string                   `json:"state"`
	Online   bool                     `json:"online"`
	Paused   bool                     `json:"paused"`
	Projects []*autosave.SaveStatus   `json:"projects"`
	Metrics  autosave.MetricsSnapshot `json:"metrics"`
}

type OpenProjectRequest struct {
	// ConflictPolicy sets the default resolution for conflicts detected
	// during this project's save cycles: merge|overwrite|abort|manual.
	// Empty means merge.
	ConflictPolicy string `json:"conflict_policy,omitempty"`
}

type OperationsRequest struct {
	Operations []timeline.SaveOperation `json:"operations"`
}

type OperationsResponse struct {
	Queued int `json:"queued"`
}

type ResolveConflictRequest struct {
	Policy string `json:"policy"`
}

type ExportEDLRequest struct {
	ProjectID  string            `json:"project_id"`
	Title      string            `json:"title,omitempty"`
	FrameRate  float64           `json:"frame_rate,omitempty"`
	OutputDir  string            `json:"output_dir"`
	AssetPaths map[string]string `json:"asset_paths,omitempty"`
}

type ExportEDLResponse struct {
	Status     string `json:"status"`
	OutputPath string `json:"output_path"`
	ClipCount  int    `json:"clip_count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
