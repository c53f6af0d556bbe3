package domain

import "fmt"

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	JobStatusUploaded         JobStatus = "uploaded"
	JobStatusAnalyzing        JobStatus = "analyzing"
	JobStatusAnalyzed         JobStatus = "analyzed"
	JobStatusGeneratingScript JobStatus = "generating_script"
	JobStatusScriptGenerated  JobStatus = "script_generated"
	JobStatusGeneratingAudio  JobStatus = "generating_audio"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
)

// statusOrder is the forward path of a job; failed sits outside of it.
var statusOrder = []JobStatus{
	JobStatusUploaded,
	JobStatusAnalyzing,
	JobStatusAnalyzed,
	JobStatusGeneratingScript,
	JobStatusScriptGenerated,
	JobStatusGeneratingAudio,
	JobStatusCompleted,
}

var statusPercentage = map[JobStatus]int{
	JobStatusUploaded:         10,
	JobStatusAnalyzing:        20,
	JobStatusAnalyzed:         30,
	JobStatusGeneratingScript: 40,
	JobStatusScriptGenerated:  60,
	JobStatusGeneratingAudio:  70,
	JobStatusCompleted:        100,
}

// ParseJobStatus converts a stored or user supplied value into a JobStatus
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return status, nil
}

// Valid reports whether s is one of the known statuses
func (s JobStatus) Valid() bool {
	return s == JobStatusFailed || s.Rank() >= 0
}

// Rank returns the position of s on the forward path, or -1 for failed and unknown values
func (s JobStatus) Rank() int {
	for i, status := range statusOrder {
		if status == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Percentage returns the client facing progress for s. Failed has no percentage of its own.
func (s JobStatus) Percentage() int {
	return statusPercentage[s]
}

// CanTransition reports whether a job may move from one status to another.
// Forward moves go exactly one step along the path; failed is reachable from
// every non-terminal status.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() || !from.Valid() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	fromRank, toRank := from.Rank(), to.Rank()
	return toRank >= 0 && toRank == fromRank+1
}
