package dto

import (
	"time"

	"github.com/spec-kit/job-tracker/internal/domain"
)

// dateLayout is the wire form of an ETD.
const dateLayout = "2006-01-02"

// CreateJobRequest payload.
type CreateJobRequest struct {
	JobRef       string  `json:"job_ref"`
	ImporterName string  `json:"importer_name"`
	ETD          *string `json:"etd"`
	AllocatedTo  *string `json:"allocated_to"`
}

// EditJobRequest payload. Omitted fields are left unchanged; an empty etd
// clears it.
type EditJobRequest struct {
	JobRef          *string           `json:"job_ref"`
	ImporterName    *string           `json:"importer_name"`
	ETD             *string           `json:"etd"`
	AllocatedTo     *string           `json:"allocated_to"`
	ClearAllocation bool              `json:"clear_allocation"`
	Status          *domain.JobStatus `json:"status"`
	QueryDetails    *string           `json:"query_details"`
}

// AllocateJobRequest payload.
type AllocateJobRequest struct {
	AllocatedTo string `json:"allocated_to"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status       domain.JobStatus `json:"status"`
	QueryDetails *string          `json:"query_details"`
}

// PersonSummary is the display form of a user on a job.
type PersonSummary struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	FullName   string `json:"full_name"`
}

// JobResponse is the wire form of a job.
type JobResponse struct {
	ID           string           `json:"id"`
	JobRef       string           `json:"job_ref"`
	ImporterName string           `json:"importer_name"`
	ETD          *string          `json:"etd"`
	ReceivedAt   time.Time        `json:"received_at"`
	Status       domain.JobStatus `json:"status"`
	QueryDetails *string          `json:"query_details"`
	AllocatedBy  string           `json:"allocated_by"`
	AllocatedTo  *string          `json:"allocated_to"`
	Allocator    *PersonSummary   `json:"allocator,omitempty"`
	Assignee     *PersonSummary   `json:"assignee,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// JobViewResponse is a dashboard snapshot.
type JobViewResponse struct {
	Scope string        `json:"scope"`
	Jobs  []JobResponse `json:"jobs"`
}

// ParseDate reads an ETD in wire form.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// NewJobResponse maps a job.
func NewJobResponse(job *domain.Job) JobResponse {
	resp := JobResponse{
		ID:           job.ID,
		JobRef:       job.JobRef,
		ImporterName: job.ImporterName,
		ReceivedAt:   job.ReceivedAt,
		Status:       job.Status,
		QueryDetails: job.QueryDetails,
		AllocatedBy:  job.AllocatedBy,
		AllocatedTo:  job.AllocatedTo,
		Allocator:    personSummary(job.Allocator),
		Assignee:     personSummary(job.Assignee),
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	if job.ETD != nil {
		etd := job.ETD.Format(dateLayout)
		resp.ETD = &etd
	}
	return resp
}

// NewJobResponses maps a job list.
func NewJobResponses(jobs []domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, NewJobResponse(&jobs[i]))
	}
	return out
}

func personSummary(p *domain.ProfileSummary) *PersonSummary {
	if p == nil {
		return nil
	}
	return &PersonSummary{ID: p.ID, EmployeeID: p.EmployeeID, FullName: p.FullName}
}
