package autosave

import "github.com/cutline/cutline-agent/internal/timeline"

// Payload is the batched write produced from one cycle's pending operations.
// Grouping exists because rapid edits (dragging a clip emits dozens of
// position updates per second) would otherwise turn into one remote round
// trip each.
type Payload struct {
	ProjectFields map[string]any
	Timeline      *timeline.Snapshot
	Clips         []timeline.Clip
	Keyframes     []timeline.Keyframe
}

func (p *Payload) Empty() bool {
	return len(p.ProjectFields) == 0 && p.Timeline == nil &&
		len(p.Clips) == 0 && len(p.Keyframes) == 0
}

// groupOperations merges queued operations into a single payload:
// project field updates shallow-merge last-writer-wins, the most recent
// timeline snapshot supersedes earlier ones, clip/keyframe operations
// accumulate in arrival order (duplicates by id are not deduplicated; the
// store applies them in array order), and bulk operations flatten into the
// same arrays.
func groupOperations(ops []timeline.SaveOperation) *Payload {
	payload := &Payload{}

	for _, op := range ops {
		switch op.Type {
		case timeline.OpProject:
			if payload.ProjectFields == nil {
				payload.ProjectFields = make(map[string]any, len(op.Project))
			}
			for k, v := range op.Project {
				payload.ProjectFields[k] = v
			}
		case timeline.OpTimeline:
			if op.Timeline != nil {
				payload.Timeline = op.Timeline
			}
		case timeline.OpClip:
			if op.Clip != nil {
				payload.Clips = append(payload.Clips, *op.Clip)
			}
		case timeline.OpKeyframe:
			if op.Keyframe != nil {
				payload.Keyframes = append(payload.Keyframes, *op.Keyframe)
			}
		case timeline.OpBulk:
			payload.Clips = append(payload.Clips, op.Clips...)
			payload.Keyframes = append(payload.Keyframes, op.Keyframes...)
		}
	}

	return payload
}
