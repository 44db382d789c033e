package health

import "errors"

// Probe failure reasons. Their text is reported verbatim in outcomes.
var (
	// ErrProbeTimeout indicates a probe did not settle within its timeout.
	ErrProbeTimeout = errors.New("probe timeout")

	// ErrProbePanic indicates a probe panicked while running.
	ErrProbePanic = errors.New("probe panicked")

	// ErrProbeCancelled indicates the run was cancelled before the probe settled.
	ErrProbeCancelled = errors.New("probe cancelled")

	// ErrRunDeadline indicates the caller's deadline expired before the
	// probe settled or reached its own timeout.
	ErrRunDeadline = errors.New("run deadline exceeded")

	// ErrProbeDown is reported for down outcomes that carried no explanation.
	ErrProbeDown = errors.New("probe reported down")

	// ErrInvalidStatus is reported when a probe returns an unknown status value.
	ErrInvalidStatus = errors.New("probe returned invalid status")
)

var (
	// ErrCheckFailed indicates a collaborator health check failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrInvalidProbe indicates a descriptor is missing a name or probe.
	ErrInvalidProbe = errors.New("health: invalid probe descriptor")

	// ErrDuplicateProbe indicates a probe name is already registered.
	ErrDuplicateProbe = errors.New("health: duplicate probe name")

	// ErrProbeNotFound indicates a probe was not found.
	ErrProbeNotFound = errors.New("health: probe not found")
)
