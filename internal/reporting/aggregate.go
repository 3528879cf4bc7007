// Package reporting derives dashboard statistics from a job set.
package reporting

import (
	"sort"

	"github.com/spec-kit/job-tracker/internal/domain"
)

// AssigneeStats counts the jobs held by one assignee.
type AssigneeStats struct {
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

// Report summarizes a job set.
type Report struct {
	Total          int                       `json:"total"`
	Counts         map[domain.JobStatus]int  `json:"counts"`
	CompletionRate float64                   `json:"completion_rate"`
	PerAssignee    map[string]*AssigneeStats `json:"-"`
}

// Aggregate computes the report for jobs. CompletionRate is complete/total
// and 0 for an empty set. Only allocated jobs whose assignee profile is known
// count towards PerAssignee, keyed by full name.
func Aggregate(jobs []domain.Job) Report {
	report := Report{
		Total:       len(jobs),
		Counts:      make(map[domain.JobStatus]int, len(domain.JobStatuses)),
		PerAssignee: make(map[string]*AssigneeStats),
	}
	for _, status := range domain.JobStatuses {
		report.Counts[status] = 0
	}

	for i := range jobs {
		job := &jobs[i]
		report.Counts[job.Status]++

		if !job.IsAllocated() || job.Assignee == nil || job.Assignee.FullName == "" {
			continue
		}
		name := job.Assignee.FullName
		stats, ok := report.PerAssignee[name]
		if !ok {
			stats = &AssigneeStats{Name: name}
			report.PerAssignee[name] = stats
		}
		stats.Total++
		if job.Status == domain.JobStatusComplete {
			stats.Completed++
		}
	}

	if report.Total > 0 {
		report.CompletionRate = float64(report.Counts[domain.JobStatusComplete]) / float64(report.Total)
	}
	return report
}

// Assignees returns the per-assignee rows sorted by name.
func (r Report) Assignees() []AssigneeStats {
	out := make([]AssigneeStats, 0, len(r.PerAssignee))
	for _, stats := range r.PerAssignee {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
