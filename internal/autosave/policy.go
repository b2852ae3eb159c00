package autosave

import (
	"fmt"
	"time"
)

// Policy decides what a save cycle does once a conflict is detected.
type Policy string

const (
	// PolicyMerge fast-forwards the local version mirror to the remote and
	// proceeds with the write, keeping local pending operations.
	PolicyMerge Policy = "merge"

	// PolicyOverwrite writes local data over the remote state.
	PolicyOverwrite Policy = "overwrite"

	// PolicyAbort discards the cycle's pending operations and fails the save.
	PolicyAbort Policy = "abort"

	// PolicyManual halts automatic saving for the project until an external
	// caller resolves the conflict.
	PolicyManual Policy = "manual"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyMerge, PolicyOverwrite, PolicyAbort, PolicyManual:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// ConflictInfo is handed to the policy function when the detector reports a
// divergence between the local mirror and the remote project.
type ConflictInfo struct {
	ServerVersion int64     `json:"server_version"`
	LocalVersion  int64     `json:"local_version"`
	ServerUpdated time.Time `json:"server_updated"`
	LocalUpdated  time.Time `json:"local_updated"`
}

// PolicyFunc picks a resolution policy for a detected conflict. It must be
// synchronous and pure: no I/O, no mutation of engine state.
type PolicyFunc func(ConflictInfo) Policy

// StaticPolicy returns a PolicyFunc that always picks p.
func StaticPolicy(p Policy) PolicyFunc {
	return func(ConflictInfo) Policy { return p }
}
