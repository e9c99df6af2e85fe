package model

// JobState represents the lifecycle state of a queued download job
type JobState string

const (
	// JobStateQueued means the job is waiting for a worker slot
	JobStateQueued JobState = "Queued"

	// JobStateRunning means the job holds a worker slot and is downloading
	JobStateRunning JobState = "Running"

	// JobStateCompleted means the job finished successfully
	JobStateCompleted JobState = "Completed"

	// JobStateFailed means the job ended without producing the output
	JobStateFailed JobState = "Failed"
)

// String returns the string representation of JobState
func (s JobState) String() string {
	return string(s)
}

// IsActive returns true if the job currently occupies a worker slot
func (s JobState) IsActive() bool {
	return s == JobStateRunning
}

// IsFinished returns true if the job is in a terminal state
func (s JobState) IsFinished() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Outcome is the user-visible result of one orchestrated download.
// Batch and queue callers present these four values separately.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeFailed      Outcome = "failed"
	OutcomeCancelled   Outcome = "cancelled"
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	return string(o)
}

// State maps an outcome onto the terminal job state
func (o Outcome) State() JobState {
	if o == OutcomeSucceeded {
		return JobStateCompleted
	}
	return JobStateFailed
}
