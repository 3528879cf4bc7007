package dto

import (
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/reporting"
)

// ReportResponse is the wire form of the job statistics.
type ReportResponse struct {
	Total          int                       `json:"total"`
	Counts         map[domain.JobStatus]int  `json:"counts"`
	CompletionRate float64                   `json:"completion_rate"`
	Assignees      []reporting.AssigneeStats `json:"assignees"`
}

// NewReportResponse maps a report.
func NewReportResponse(report *reporting.Report) ReportResponse {
	return ReportResponse{
		Total:          report.Total,
		Counts:         report.Counts,
		CompletionRate: report.CompletionRate,
		Assignees:      report.Assignees(),
	}
}
