package events

import (
	"time"

	"github.com/spec-kit/job-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventJobCreated       EventType = "job.created"
	EventJobsImported     EventType = "jobs.imported"
	EventJobAllocated     EventType = "job.allocated"
	EventJobClaimed       EventType = "job.claimed"
	EventJobStatusChanged EventType = "job.status_changed"
	EventJobEdited        EventType = "job.edited"
	EventJobDeleted       EventType = "job.deleted"
)

// Op is the row-level operation behind an event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Op returns the row operation an event type stands for.
func (t EventType) Op() Op {
	switch t {
	case EventJobCreated, EventJobsImported:
		return OpInsert
	case EventJobDeleted:
		return OpDelete
	default:
		return OpUpdate
	}
}

// Mask selects which operations a subscription receives.
type Mask uint8

const (
	MaskInsert Mask = 1 << iota
	MaskUpdate
	MaskDelete

	MaskAll = MaskInsert | MaskUpdate | MaskDelete
)

// Matches reports whether op is selected by the mask.
func (m Mask) Matches(op Op) bool {
	switch op {
	case OpInsert:
		return m&MaskInsert != 0
	case OpUpdate:
		return m&MaskUpdate != 0
	case OpDelete:
		return m&MaskDelete != 0
	}
	return false
}

// Event represents a change to the jobs table emitted after a committed write.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Op        Op        `json:"op"`
	Table     string    `json:"table"`
	JobIDs    []string  `json:"job_ids"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// JobStatusChangedPayload payload.
type JobStatusChangedPayload struct {
	OldStatus domain.JobStatus `json:"old_status"`
	NewStatus domain.JobStatus `json:"new_status"`
}

// JobAllocatedPayload payload.
type JobAllocatedPayload struct {
	PreviousAssignee *string `json:"previous_assignee,omitempty"`
	Assignee         string  `json:"assignee"`
}

// JobsImportedPayload payload.
type JobsImportedPayload struct {
	Count int `json:"count"`
}
