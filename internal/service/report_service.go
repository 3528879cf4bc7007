package service

import (
	"context"

	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/reporting"
	"github.com/spec-kit/job-tracker/internal/repository"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// ReportService derives statistics from the live job set.
type ReportService struct {
	jobs repository.JobRepository
}

// NewReportService constructs the service.
func NewReportService(jobs repository.JobRepository) *ReportService {
	return &ReportService{jobs: jobs}
}

// Summary aggregates every job.
func (s *ReportService) Summary(ctx context.Context, actor *domain.Principal) (*reporting.Report, error) {
	if !actor.Can(domain.CapViewReports) {
		return nil, apperrors.NewForbidden("you cannot view reports")
	}
	jobs, err := s.jobs.List(ctx, repository.JobFilter{})
	if err != nil {
		return nil, storeError(err, "jobs", nil)
	}
	report := reporting.Aggregate(jobs)
	return &report, nil
}
