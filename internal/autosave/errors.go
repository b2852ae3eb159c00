package autosave

import "errors"

var (
	// ErrNotInitialized is returned when an operation targets a project id
	// that was never initialized (or already stopped).
	ErrNotInitialized = errors.New("project not initialized for auto-save")

	// ErrSaveInFlight is returned by ForceSave while a save cycle for the
	// same project is already running.
	ErrSaveInFlight = errors.New("save already in progress")

	// ErrConflictAborted is returned when the resolution policy is Abort;
	// the cycle's pending operations are discarded and not retried.
	ErrConflictAborted = errors.New("save aborted due to remote conflict")

	// ErrManualResolutionRequired is returned when the resolution policy is
	// Manual; automatic saving stays halted until ResolveConflictManually.
	ErrManualResolutionRequired = errors.New("manual conflict resolution required")
)
