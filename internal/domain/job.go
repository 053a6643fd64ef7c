package domain

import "time"

// JobStatus tracks one asynchronous scrape job.
type JobStatus string

const (
	// JobStatusPending marks a job accepted but not yet picked up by a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning marks a job executing the scrape pipeline.
	JobStatusRunning JobStatus = "running"
	// JobStatusDone marks a job whose page is indexed. Terminal.
	JobStatusDone JobStatus = "done"
	// JobStatusFailed marks a job that gave up with a captured error. Terminal.
	JobStatusFailed JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// CanTransition reports whether the pending→running→{done,failed} machine
// allows moving to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusDone || next == JobStatusFailed
	default:
		return false
	}
}

// Job is one asynchronous unit of work scraping and indexing a single URL.
// Jobs live in process memory for the runner's lifetime.
type Job struct {
	ID        string    `json:"id"`
	Tenant    Tenant    `json:"-"`
	URL       string    `json:"url"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
