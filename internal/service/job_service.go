package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/events"
	"github.com/spec-kit/job-tracker/internal/repository"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// JobService coordinates the job lifecycle.
type JobService struct {
	jobs     repository.JobRepository
	profiles repository.ProfileRepository
	roles    repository.RoleRepository
	feed     events.Feed
	policy   domain.StatusPolicy
	logger   *zap.Logger
	now      func() time.Time
}

// JobDependencies bundles collaborators for the job service.
type JobDependencies struct {
	JobRepo     repository.JobRepository
	ProfileRepo repository.ProfileRepository
	RoleRepo    repository.RoleRepository
	Feed        events.Feed
	Policy      domain.StatusPolicy
	Logger      *zap.Logger
}

// CreateJobInput describes manual job entry.
type CreateJobInput struct {
	JobRef       string
	ImporterName string
	ETD          *time.Time
	AllocatedTo  *string
}

// EditJobInput describes a partial edit. Nil fields are left unchanged.
type EditJobInput struct {
	JobRef          *string
	ImporterName    *string
	ETD             *time.Time
	ClearETD        bool
	AllocatedTo     *string
	ClearAllocation bool
	Status          *domain.JobStatus
	QueryDetails    *string
}

// JobScope selects which jobs a listing returns.
type JobScope string

const (
	ScopeAll         JobScope = "all"
	ScopeMine        JobScope = "mine"
	ScopeUnallocated JobScope = "unallocated"
)

// JobListInput describes list parameters.
type JobListInput struct {
	Scope    JobScope
	Statuses []domain.JobStatus
	Limit    int
	Offset   int
}

// JobView is the role-appropriate dashboard content.
type JobView struct {
	Scope string       `json:"scope"`
	Jobs  []domain.Job `json:"jobs"`
}

// NewJobService constructs the service.
func NewJobService(deps JobDependencies) *JobService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{
		jobs:     deps.JobRepo,
		profiles: deps.ProfileRepo,
		roles:    deps.RoleRepo,
		feed:     deps.Feed,
		policy:   deps.Policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Create records a new pending job.
func (s *JobService) Create(ctx context.Context, actor *domain.Principal, input CreateJobInput) (*domain.Job, error) {
	if !actor.Can(domain.CapCreateJob) {
		return nil, apperrors.NewForbidden("you cannot create jobs")
	}
	ref, err := validateJobRef(input.JobRef)
	if err != nil {
		return nil, err
	}
	importer, err := validateImporterName(input.ImporterName)
	if err != nil {
		return nil, err
	}
	if input.AllocatedTo != nil {
		if err := s.requireDeclarant(ctx, *input.AllocatedTo); err != nil {
			return nil, err
		}
	}

	newJob := domain.NewJob{
		ID:           uuid.NewString(),
		JobRef:       ref,
		ImporterName: importer,
		ETD:          dateOnly(input.ETD),
		ReceivedAt:   s.now().UTC(),
		AllocatedBy:  actor.UserID(),
		AllocatedTo:  input.AllocatedTo,
	}
	if _, err := s.jobs.Insert(ctx, []domain.NewJob{newJob}); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperrors.NewDuplicateReference(map[string]any{"job_ref": ref})
		}
		return nil, storeError(err, "job", nil)
	}

	job, err := s.jobs.GetByID(ctx, newJob.ID)
	if err != nil {
		return nil, storeError(err, "job", map[string]any{"job_id": newJob.ID})
	}
	s.logger.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("job_ref", job.JobRef),
		zap.String("actor_id", actor.UserID()))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventJobCreated,
		JobIDs:  []string{job.ID},
		ActorID: actor.UserID(),
	})
	return job, nil
}

// Allocate assigns a job to a declarant without touching its status.
func (s *JobService) Allocate(ctx context.Context, actor *domain.Principal, jobID, toUserID string) (*domain.Job, error) {
	if !actor.Can(domain.CapAllocateJob) {
		return nil, apperrors.NewForbidden("you cannot allocate jobs")
	}
	if strings.TrimSpace(toUserID) == "" {
		return nil, apperrors.NewFieldError("allocated_to", "a declarant is required")
	}
	current, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, storeError(err, "job", map[string]any{"job_id": jobID})
	}
	if err := s.requireDeclarant(ctx, toUserID); err != nil {
		return nil, err
	}

	job, err := s.jobs.Update(ctx, jobID, domain.JobPatch{AllocatedTo: &toUserID})
	if err != nil {
		return nil, storeError(err, "job", map[string]any{"job_id": jobID})
	}
	s.logger.Info("job allocated",
		zap.String("job_id", job.ID),
		zap.String("job_ref", job.JobRef),
		zap.String("assignee_id", toUserID),
		zap.String("actor_id", actor.UserID()))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventJobAllocated,
		JobIDs:  []string{job.ID},
		ActorID: actor.UserID(),
		Payload: events.JobAllocatedPayload{PreviousAssignee: current.AllocatedTo, Assignee: toUserID},
	})
	return job, nil
}

// Claim lets a declarant take an unallocated job. Exactly one of several
// concurrent claimants succeeds; the others get AlreadyAllocated.
func (s *JobService) Claim(ctx context.Context, actor *domain.Principal, jobID string) (*domain.Job, error) {
	if !actor.Can(domain.CapClaimJob) {
		return nil, apperrors.NewForbidden("you cannot claim jobs")
	}
	job, err := s.jobs.Claim(ctx, jobID, actor.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyAllocated) {
			return nil, apperrors.NewAlreadyAllocated(jobID)
		}
		return nil, storeError(err, "job", map[string]any{"job_id": jobID})
	}
	s.logger.Info("job claimed",
		zap.String("job_id", job.ID),
		zap.String("job_ref", job.JobRef),
		zap.String("actor_id", actor.UserID()))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventJobClaimed,
		JobIDs:  []string{job.ID},
		ActorID: actor.UserID(),
	})
	return job, nil
}

// UpdateStatus moves a job to status. Only the assigned declarant or a
// principal that may update any status can do this. Moving to query needs
// details; every other status clears them.
func (s *JobService) UpdateStatus(ctx context.Context, actor *domain.Principal, jobID string, status domain.JobStatus, details *string) (*domain.Job, error) {
	current, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, storeError(err, "job", map[string]any{"job_id": jobID})
	}
	if !s.canUpdateStatus(actor, current) {
		return nil, apperrors.NewForbidden("only the assigned declarant or a manager can change this job's status")
	}
	normalized, err := s.checkStatusChange(current, status, details)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Update(ctx, jobID, domain.JobPatch{Status: &status, QueryDetails: normalized})
	if err != nil {
		return nil, storeError(err, "job", map[string]any{"job_id": jobID})
	}
	s.logger.Info("job status changed",
		zap.String("job_id", job.ID),
		zap.String("job_ref", job.JobRef),
		zap.String("from", string(current.Status)),
		zap.String("to", string(job.Status)),
		zap.String("actor_id", actor.UserID()))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventJobStatusChanged,
		JobIDs:  []string{job.ID},
		ActorID: actor.UserID(),
		Payload: events.JobStatusChangedPayload{OldStatus: current.Status, NewStatus: job.Status},
	})
	return job, nil
}

// Edit applies a partial update.
func (s *JobService) Edit(ctx context.Context, actor *domain.Principal, jobID string, input EditJobInput) (*domain.Job, error) {
	if !actor.Can(domain.CapEditJob) {
		return nil, apperrors.NewForbidden("you cannot edit jobs")
	}
	if input.ClearAllocation && input.AllocatedTo != nil {
		return nil, apperrors.NewFieldError("allocated_to", "cannot reassign and clear the allocation at once")
	}
	if input.ClearETD && input.ETD != nil {
		return nil, apperrors.NewFieldError("etd", "cannot set and clear the ETD at once")
	}

	patch := domain.JobPatch{
		ETD:             dateOnly(input.ETD),
		ClearETD:        input.ClearETD,
		AllocatedTo:     input.AllocatedTo,
		ClearAllocation: input.ClearAllocation,
	}
	if input.JobRef != nil {
		ref, err := validateJobRef(*input.JobRef)
		if err != nil {
			return nil, err
		}
		patch.JobRef = &ref
	}
	if input.ImporterName != nil {
		importer, err := validateImporterName(*input.ImporterName)
		if err != nil {
			return nil, err
		}
		patch.ImporterName = &importer
	}
	if input.Status == nil && input.QueryDetails != nil {
		return nil, apperrors.NewFieldError("query_details", "query details can only be set together with a status")
	}
	if patch.Empty() && input.Status == nil {
		return nil, apperrors.NewValidationError("nothing to update", nil)
	}

	current, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, storeError(err, "job", map[string]any{"job_id": jobID})
	}
	if input.Status != nil {
		normalized, err := s.checkStatusChange(current, *input.Status, input.QueryDetails)
		if err != nil {
			return nil, err
		}
		patch.Status = input.Status
		patch.QueryDetails = normalized
	}
	if input.AllocatedTo != nil {
		if err := s.requireDeclarant(ctx, *input.AllocatedTo); err != nil {
			return nil, err
		}
	}

	job, err := s.jobs.Update(ctx, jobID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) && patch.JobRef != nil {
			return nil, apperrors.NewDuplicateReference(map[string]any{"job_ref": *patch.JobRef})
		}
		return nil, storeError(err, "job", map[string]any{"job_id": jobID})
	}
	s.logger.Info("job edited",
		zap.String("job_id", job.ID),
		zap.String("job_ref", job.JobRef),
		zap.String("actor_id", actor.UserID()))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventJobEdited,
		JobIDs:  []string{job.ID},
		ActorID: actor.UserID(),
	})
	return job, nil
}

// Delete removes a job.
func (s *JobService) Delete(ctx context.Context, actor *domain.Principal, jobID string) error {
	if !actor.Can(domain.CapDeleteJob) {
		return apperrors.NewForbidden("you cannot delete jobs")
	}
	if err := s.jobs.Delete(ctx, jobID); err != nil {
		return storeError(err, "job", map[string]any{"job_id": jobID})
	}
	s.logger.Info("job deleted", zap.String("job_id", jobID), zap.String("actor_id", actor.UserID()))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventJobDeleted,
		JobIDs:  []string{jobID},
		ActorID: actor.UserID(),
	})
	return nil
}

// Get returns one job the actor may see. Jobs outside a declarant's view
// are reported as not found.
func (s *JobService) Get(ctx context.Context, actor *domain.Principal, jobID string) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, storeError(err, "job", map[string]any{"job_id": jobID})
	}
	if actor.Can(domain.CapViewAllJobs) {
		return job, nil
	}
	if actor.Can(domain.CapViewOwnJobs) && (!job.IsAllocated() || job.IsAssignedTo(actor.UserID())) {
		return job, nil
	}
	return nil, apperrors.NewNotFound("job", map[string]any{"job_id": jobID})
}

// List returns jobs in the requested scope.
func (s *JobService) List(ctx context.Context, actor *domain.Principal, input JobListInput) ([]domain.Job, error) {
	for _, status := range input.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewFieldError("status", "unknown status "+string(status))
		}
	}
	filter := repository.JobFilter{Statuses: input.Statuses, Limit: input.Limit, Offset: input.Offset}

	switch input.Scope {
	case ScopeAll, "":
		if !actor.Can(domain.CapViewAllJobs) {
			return nil, apperrors.NewForbidden("you can only list your own or unallocated jobs")
		}
	case ScopeMine:
		if !actor.Capabilities.HasAny(domain.CapViewAllJobs, domain.CapViewOwnJobs) {
			return nil, apperrors.NewForbidden("you cannot view jobs")
		}
		userID := actor.UserID()
		filter.AssigneeID = &userID
	case ScopeUnallocated:
		if !actor.Capabilities.HasAny(domain.CapViewAllJobs, domain.CapViewOwnJobs) {
			return nil, apperrors.NewForbidden("you cannot view jobs")
		}
		filter.Unallocated = true
	default:
		return nil, apperrors.NewFieldError("scope", "scope must be all, mine or unallocated")
	}

	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "jobs", nil)
	}
	return jobs, nil
}

// View returns the dashboard for the actor: every job for principals that
// may view all, otherwise the actor's own jobs plus the unallocated pool.
func (s *JobService) View(ctx context.Context, actor *domain.Principal) (*JobView, error) {
	if actor.Can(domain.CapViewAllJobs) {
		jobs, err := s.jobs.List(ctx, repository.JobFilter{})
		if err != nil {
			return nil, storeError(err, "jobs", nil)
		}
		return &JobView{Scope: string(ScopeAll), Jobs: jobs}, nil
	}
	if !actor.Can(domain.CapViewOwnJobs) {
		return nil, apperrors.NewForbidden("you have no role that can view jobs")
	}

	userID := actor.UserID()
	mine, err := s.jobs.List(ctx, repository.JobFilter{AssigneeID: &userID})
	if err != nil {
		return nil, storeError(err, "jobs", nil)
	}
	pool, err := s.jobs.List(ctx, repository.JobFilter{Unallocated: true})
	if err != nil {
		return nil, storeError(err, "jobs", nil)
	}
	jobs := append(mine, pool...)
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return &JobView{Scope: "own_and_unallocated", Jobs: jobs}, nil
}

func (s *JobService) canUpdateStatus(actor *domain.Principal, job *domain.Job) bool {
	if actor.Can(domain.CapUpdateAnyStatus) {
		return true
	}
	return actor.Can(domain.CapUpdateAssignedStatus) && job.IsAssignedTo(actor.UserID())
}

func (s *JobService) checkStatusChange(current *domain.Job, status domain.JobStatus, details *string) (*string, error) {
	if !status.Valid() {
		return nil, apperrors.NewFieldError("status", "unknown status "+string(status))
	}
	if !s.policy.CanTransition(current.Status, status) {
		return nil, apperrors.NewConflict("completed jobs cannot change status", map[string]any{
			"job_id": current.ID,
			"from":   current.Status,
			"to":     status,
		})
	}
	normalized, ok := domain.NormalizeQueryDetails(status, details)
	if !ok {
		return nil, apperrors.NewFieldError("query_details", "query details are required and must be at most 1000 characters")
	}
	return normalized, nil
}

// requireDeclarant checks that userID exists and holds the declarant role.
func (s *JobService) requireDeclarant(ctx context.Context, userID string) error {
	if _, err := s.profiles.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewFieldError("allocated_to", "user does not exist")
		}
		return storeError(err, "user", nil)
	}
	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return storeError(err, "user", nil)
	}
	if !domain.NewRoleSet(roles...).Has(domain.RoleDeclarant) {
		return apperrors.NewFieldError("allocated_to", "jobs can only be allocated to declarants")
	}
	return nil
}

// publishEvent announces a committed write. The write stands even when the
// feed is unavailable.
func (s *JobService) publishEvent(ctx context.Context, event events.Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, event); err != nil {
		s.logger.Error("publish change event failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func validateJobRef(raw string) (string, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return "", apperrors.NewFieldError("job_ref", "job reference is required")
	}
	if len([]rune(ref)) > domain.MaxJobRefLength {
		return "", apperrors.NewFieldError("job_ref", "job reference must be at most 100 characters")
	}
	return ref, nil
}

func validateImporterName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperrors.NewFieldError("importer_name", "importer name is required")
	}
	if len([]rune(name)) > domain.MaxImporterNameLength {
		return "", apperrors.NewFieldError("importer_name", "importer name must be at most 200 characters")
	}
	return name, nil
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
