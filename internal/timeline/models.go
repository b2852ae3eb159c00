package timeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Project is the top-level editing document. The remote store owns it; the
// agent only holds a cached copy of Version/UpdatedAt for conflict checks.
type Project struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	FPS            float64         `json:"fps"`
	DurationMs     int             `json:"duration_ms"`
	ExportSettings json.RawMessage `json:"export_settings,omitempty"`
	Version        int64           `json:"version"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

const (
	TrackTypeVideo    = "video"
	TrackTypeAudio    = "audio"
	TrackTypeOverlay  = "overlay"
	TrackTypeText     = "text"
	TrackTypeSubtitle = "subtitle"
)

type Track struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Type      string  `json:"type"`
	Position  int     `json:"position"`
	Muted     bool    `json:"muted"`
	Visible   bool    `json:"visible"`
	Locked    bool    `json:"locked"`
	BlendMode string  `json:"blend_mode,omitempty"`
	Volume    float64 `json:"volume"`
}

// Transform describes clip placement in the composition space.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scale_x"`
	ScaleY   float64 `json:"scale_y"`
	Rotation float64 `json:"rotation"`
}

type Effect struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Clip places a trimmed slice of an asset on a track. Overlap between clips
// on the same track is not enforced here.
type Clip struct {
	ID          string    `json:"id"`
	TrackID     string    `json:"track_id"`
	AssetID     string    `json:"asset_id,omitempty"`
	StartMs     int       `json:"start_ms"`
	EndMs       int       `json:"end_ms"`
	TrimStartMs int       `json:"trim_start_ms"`
	TrimEndMs   int       `json:"trim_end_ms"`
	Transform   Transform `json:"transform"`
	Effects     []Effect  `json:"effects,omitempty"`
	Opacity     float64   `json:"opacity"`
	Volume      float64   `json:"volume"`
	Muted       bool      `json:"muted"`
}

const (
	InterpLinear  = "linear"
	InterpStep    = "step"
	InterpEaseIn  = "ease_in"
	InterpEaseOut = "ease_out"
)

// Keyframe is a timed value for one animatable clip property.
// (TimeOffsetMs, PropertyPath) is unique per clip.
type Keyframe struct {
	ID            string          `json:"id"`
	ClipID        string          `json:"clip_id"`
	TimeOffsetMs  int             `json:"time_offset_ms"`
	PropertyPath  string          `json:"property_path"`
	Value         json.RawMessage `json:"value"`
	Interpolation string          `json:"interpolation"`
}

// Snapshot is the full timeline state sent as one write.
type Snapshot struct {
	Tracks     []Track    `json:"tracks"`
	Clips      []Clip     `json:"clips"`
	Keyframes  []Keyframe `json:"keyframes"`
	PlayheadMs int        `json:"playhead_ms"`
	DurationMs int        `json:"duration_ms"`
	TakenAt    time.Time  `json:"taken_at"`
}

const (
	OpProject  = "project"
	OpTimeline = "timeline"
	OpClip     = "clip"
	OpKeyframe = "keyframe"
	OpBulk     = "bulk"
)

// SaveOperation is one queued mutation. Operations are ephemeral: created by
// an editor mutation, consumed by a single save cycle.
type SaveOperation struct {
	Type      string         `json:"type"`
	Project   map[string]any `json:"project,omitempty"`
	Timeline  *Snapshot      `json:"timeline,omitempty"`
	Clip      *Clip          `json:"clip,omitempty"`
	Keyframe  *Keyframe      `json:"keyframe,omitempty"`
	Clips     []Clip         `json:"clips,omitempty"`
	Keyframes []Keyframe     `json:"keyframes,omitempty"`
	QueuedAt  time.Time      `json:"queued_at"`
}

func NewID() string {
	return uuid.NewString()
}
