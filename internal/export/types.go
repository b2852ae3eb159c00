// Package export renders a project timeline as a CMX3600 EDL for handoff to
// desktop NLEs. Only the cut structure survives the format; effects,
// keyframes and audio mixing do not translate.
package export

import (
	"path/filepath"
	"sort"

	"github.com/cutline/cutline-agent/internal/timeline"
)

// ResolvedClip is one EDL event: a clip in record order with its source
// range resolved against trim offsets.
type ResolvedClip struct {
	ClipName    string
	MediaPath   string
	SourceInMs  int
	SourceOutMs int
	DurationMs  int
}

// ResolveTimeline flattens a timeline snapshot into EDL events. Only clips
// on video tracks are kept (a snapshot without track metadata keeps
// everything), ordered by record position. assetPaths maps asset ids to
// media file paths; unresolved assets get a placeholder path so the EDL
// stays loadable and the missing media is visible in the NLE.
func ResolveTimeline(snap *timeline.Snapshot, assetPaths map[string]string) []ResolvedClip {
	if snap == nil {
		return nil
	}

	videoTracks := make(map[string]bool)
	for _, tr := range snap.Tracks {
		if tr.Type == timeline.TrackTypeVideo {
			videoTracks[tr.ID] = true
		}
	}

	clips := make([]timeline.Clip, 0, len(snap.Clips))
	for _, c := range snap.Clips {
		if len(videoTracks) > 0 && !videoTracks[c.TrackID] {
			continue
		}
		if c.EndMs <= c.StartMs {
			continue
		}
		clips = append(clips, c)
	}
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].StartMs < clips[j].StartMs })

	resolved := make([]ResolvedClip, 0, len(clips))
	for _, c := range clips {
		path, ok := assetPaths[c.AssetID]
		if !ok || path == "" {
			path = "MISSING_" + c.AssetID
		}

		name := SanitizeEDLName(filepath.Base(path), MaxClipNameLen)
		if name == "" {
			name = SanitizeEDLName(c.ID, MaxClipNameLen)
		}

		duration := c.EndMs - c.StartMs
		resolved = append(resolved, ResolvedClip{
			ClipName:    name,
			MediaPath:   path,
			SourceInMs:  c.TrimStartMs,
			SourceOutMs: c.TrimStartMs + duration,
			DurationMs:  duration,
		})
	}
	return resolved
}
