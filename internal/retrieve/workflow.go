package retrieve

import (
	"context"
	"strings"

	"github.com/hkwk/cdsapi/internal/api"
)

// State is the dialect-neutral job lifecycle state.
type State int

const (
	// StatePending means the job is accepted or running; keep polling.
	StatePending State = iota

	// StateDone means the job finished and an artifact can be resolved.
	StateDone

	// StateError means the job reached a failed terminal state.
	StateError
)

// Status is the shared view of a job's observed state. Raw carries the
// dialect's own vocabulary for event reporting; Err is set when State is
// StateError.
type Status struct {
	State State
	Raw   string
	Err   error
}

// Terminal reports whether no further polling is meaningful.
func (s Status) Terminal() bool {
	return s.State != StatePending
}

// workflow is the dialect-specific submission capability. One implementation
// exists per dialect and is selected once at client construction.
type workflow interface {
	// label is the prefix of state-transition event lines.
	label() string

	// supportsNoWait reports whether the dialect can return a download
	// location from the submission reply alone.
	supportsNoWait() bool

	// submit starts a job. Exactly one submission happens per retrieve call.
	submit(ctx context.Context, dataset string, params Request) (job, error)
}

// job is a single server-side retrieval task.
type job interface {
	// status returns the last observed status without network I/O.
	status() Status

	// poll refreshes the status with one round trip.
	poll(ctx context.Context) (Status, error)

	// resolve returns the artifact location for a finished job.
	resolve(ctx context.Context) (*api.RemoteFile, error)
}

// link is a typed hyperlink in a dialect response.
type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

func findLink(links []link, rel string) string {
	for _, l := range links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

// urljoin resolves path against base. Absolute URLs pass through; the base
// keeps its path prefix, which is where API deployments mount the download
// routes.
func urljoin(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base = strings.TrimRight(base, "/")
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}
