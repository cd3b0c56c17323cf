package harness

import "errors"

// Domain errors for test runs.
var (
	// ErrInvalidSpec indicates a test spec that fails validation.
	ErrInvalidSpec = errors.New("harness: invalid test spec")

	// ErrNoTargets indicates a run requested with neither target configured.
	ErrNoTargets = errors.New("harness: no targets configured")

	// ErrTargetUnreachable indicates a target that could not be set up
	// before the run started.
	ErrTargetUnreachable = errors.New("harness: target unreachable")

	// ErrAllTargetsUnreachable indicates that no configured target
	// could be set up, so no sampling unit can run at all.
	ErrAllTargetsUnreachable = errors.New("harness: all targets unreachable")
)
