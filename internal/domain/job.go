package domain

import (
	"strings"
	"time"
)

// JobStatus enumerates lifecycle states for jobs.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusQuery      JobStatus = "query"
	JobStatusComplete   JobStatus = "complete"
)

// Field limits shared by manual entry and bulk import.
const (
	MaxJobRefLength       = 100
	MaxImporterNameLength = 200
	MaxQueryDetailsLength = 1000
)

// JobStatuses lists every status in workflow order.
var JobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusProcessing,
	JobStatusQuery,
	JobStatusComplete,
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusQuery, JobStatusComplete:
		return true
	}
	return false
}

// ProfileSummary is the display form of a user attached to job views.
type ProfileSummary struct {
	ID         string
	EmployeeID string
	FullName   string
}

// Job is the aggregate tracked through the allocation workflow.
type Job struct {
	ID           string
	JobRef       string
	ImporterName string
	ETD          *time.Time
	ReceivedAt   time.Time
	Status       JobStatus
	QueryDetails *string
	AllocatedBy  string
	AllocatedTo  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Read-side joins; nil when the referenced profile is unknown.
	Allocator *ProfileSummary
	Assignee  *ProfileSummary
}

// IsAllocated reports whether the job has an assignee.
func (j *Job) IsAllocated() bool {
	return j.AllocatedTo != nil && *j.AllocatedTo != ""
}

// IsAssignedTo reports whether userID is the current assignee.
func (j *Job) IsAssignedTo(userID string) bool {
	return j.IsAllocated() && *j.AllocatedTo == userID
}

// NewJob is the insert shape for a job. Status is always pending on insert.
type NewJob struct {
	ID           string
	JobRef       string
	ImporterName string
	ETD          *time.Time
	ReceivedAt   time.Time
	AllocatedBy  string
	AllocatedTo  *string
}

// JobPatch describes a partial update. Nil fields are left untouched.
type JobPatch struct {
	JobRef       *string
	ImporterName *string
	ETD          *time.Time
	ClearETD     bool
	AllocatedTo  *string
	// ClearAllocation returns the job to the unallocated pool.
	ClearAllocation bool
	Status          *JobStatus
	// QueryDetails is written whenever Status is set: the value for query,
	// null for every other status.
	QueryDetails *string
}

// Empty reports whether the patch changes nothing.
func (p JobPatch) Empty() bool {
	return p.JobRef == nil && p.ImporterName == nil && p.ETD == nil && !p.ClearETD &&
		p.AllocatedTo == nil && !p.ClearAllocation && p.Status == nil
}

// StatusPolicy decides which status moves are accepted.
type StatusPolicy struct {
	// LockCompleted makes complete a terminal state.
	LockCompleted bool
}

// CanTransition reports whether a job in status from may move to status to.
// Any known state may be revisited; only LockCompleted forbids leaving complete.
func (p StatusPolicy) CanTransition(from, to JobStatus) bool {
	if !to.Valid() {
		return false
	}
	if p.LockCompleted && from == JobStatusComplete && to != JobStatusComplete {
		return false
	}
	return true
}

// NormalizeQueryDetails applies the query-detail rule for a target status.
// For query it returns the trimmed text, or ok=false when the text is empty or
// too long. For every other status it returns nil.
func NormalizeQueryDetails(status JobStatus, details *string) (normalized *string, ok bool) {
	if status != JobStatusQuery {
		return nil, true
	}
	if details == nil {
		return nil, false
	}
	trimmed := strings.TrimSpace(*details)
	if trimmed == "" || len([]rune(trimmed)) > MaxQueryDetailsLength {
		return nil, false
	}
	return &trimmed, true
}

// QueryInvariantHolds reports whether status and query details are consistent.
func (j *Job) QueryInvariantHolds() bool {
	hasDetails := j.QueryDetails != nil && strings.TrimSpace(*j.QueryDetails) != ""
	return (j.Status == JobStatusQuery) == hasDetails
}
