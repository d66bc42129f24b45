package enums

import "fmt"

// JobStatus describes the allowed values for the `status` column in jobs.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

var validJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusRunning,
	JobStatusSucceeded,
	JobStatusFailed,
}

// IsValid reports whether the value matches the canonical job status enum.
func (s JobStatus) IsValid() bool {
	for _, candidate := range validJobStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the job has finished. Terminal jobs are never
// resurrected; resubmission creates a new job.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// ParseJobStatus converts the raw string to JobStatus.
func ParseJobStatus(value string) (JobStatus, error) {
	for _, candidate := range validJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job status %q", value)
}

// JobType enumerates the tasks the job runner knows how to execute.
type JobType string

const (
	JobTypeProbe           JobType = "probe"
	JobTypeGenerateSidecar JobType = "generate_sidecar"
)

var validJobTypes = []JobType{
	JobTypeProbe,
	JobTypeGenerateSidecar,
}

// IsValid reports whether the value matches the canonical job type enum.
func (t JobType) IsValid() bool {
	for _, candidate := range validJobTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseJobType converts the raw string to JobType.
func ParseJobType(value string) (JobType, error) {
	for _, candidate := range validJobTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job type %q", value)
}
