package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/config"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/persistence"
	"github.com/spec-kit/job-tracker/internal/repository"
)

type stores struct {
	jobs     repository.JobRepository
	profiles repository.ProfileRepository
	roles    repository.RoleRepository
}

func openStores(t *testing.T) stores {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "jobs.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, persistence.RunSQLiteMigrations(ctx, db.DB, zap.NewNop()))
	return stores{
		jobs:     NewJobRepository(db.DB),
		profiles: NewProfileRepository(db.DB),
		roles:    NewRoleRepository(db.DB),
	}
}

func (s stores) profile(t *testing.T, employeeID, name string) *domain.Profile {
	t.Helper()
	p := &domain.Profile{
		ID:           uuid.NewString(),
		EmployeeID:   employeeID,
		FullName:     name,
		Email:        domain.InternalEmail(employeeID),
		PasswordHash: "hash",
	}
	require.NoError(t, s.profiles.Create(context.Background(), p))
	return p
}

func newJob(ref, by string) domain.NewJob {
	return domain.NewJob{
		ID:           uuid.NewString(),
		JobRef:       ref,
		ImporterName: "Acme",
		ReceivedAt:   time.Now(),
		AllocatedBy:  by,
	}
}

func TestProfileConstraints(t *testing.T) {
	s := openStores(t)
	ctx := context.Background()
	p := s.profile(t, "EMP1", "Ann")

	got, err := s.profiles.GetByEmail(ctx, domain.InternalEmail("emp1"))
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	dup := &domain.Profile{ID: uuid.NewString(), EmployeeID: "EMP1", FullName: "Other", Email: p.Email, PasswordHash: "x"}
	err = s.profiles.Create(ctx, dup)
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	var constraintErr *repository.ConstraintError
	require.True(t, errors.As(err, &constraintErr))
	assert.Contains(t, constraintErr.Constraint, "profiles.email")

	_, err = s.profiles.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	p.FullName = "Anne"
	require.NoError(t, s.profiles.Update(ctx, p))
	got, err = s.profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anne", got.FullName)
}

func TestRoleAssignments(t *testing.T) {
	s := openStores(t)
	ctx := context.Background()
	ann := s.profile(t, "EMP1", "Ann")
	bob := s.profile(t, "EMP2", "Bob")

	require.NoError(t, s.roles.Insert(ctx, &domain.RoleAssignment{UserID: ann.ID, Role: domain.RoleDeclarant}))
	require.NoError(t, s.roles.Insert(ctx, &domain.RoleAssignment{UserID: bob.ID, Role: domain.RoleDeclarant}))
	require.NoError(t, s.roles.Insert(ctx, &domain.RoleAssignment{UserID: bob.ID, Role: domain.RoleManager}))

	err := s.roles.Insert(ctx, &domain.RoleAssignment{UserID: ann.ID, Role: domain.RoleDeclarant})
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	err = s.roles.Insert(ctx, &domain.RoleAssignment{UserID: "ghost", Role: domain.RoleAdmin})
	assert.ErrorIs(t, err, repository.ErrInvalidReference)
	err = s.roles.Insert(ctx, &domain.RoleAssignment{UserID: ann.ID, Role: "owner"})
	assert.ErrorIs(t, err, repository.ErrCheckViolation)

	roles, err := s.roles.ListByUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleDeclarant, domain.RoleManager}, roles)

	declarants, err := s.roles.ListUsersByRole(ctx, domain.RoleDeclarant)
	require.NoError(t, err)
	require.Len(t, declarants, 2)
	assert.Equal(t, "Ann", declarants[0].FullName)

	n, err := s.roles.CountWithAnyRole(ctx, domain.RoleAdmin, domain.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.roles.Delete(ctx, bob.ID, domain.RoleManager))
	assert.ErrorIs(t, s.roles.Delete(ctx, bob.ID, domain.RoleManager), repository.ErrNotFound)

	all, err := s.roles.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestJobInsertIsAtomic(t *testing.T) {
	s := openStores(t)
	ctx := context.Background()
	mgr := s.profile(t, "MGR", "Manager")

	n, err := s.jobs.Insert(ctx, []domain.NewJob{newJob("A-1", mgr.ID), newJob("A-2", mgr.ID)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.jobs.Insert(ctx, []domain.NewJob{newJob("A-3", mgr.ID), newJob("A-1", mgr.ID)})
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)

	jobs, err := s.jobs.List(ctx, repository.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 2, "the failed batch wrote nothing")
	assert.Equal(t, "A-2", jobs[0].JobRef, "newest first")
	require.NotNil(t, jobs[0].Allocator)
	assert.Equal(t, "Manager", jobs[0].Allocator.FullName)
	assert.Equal(t, domain.JobStatusPending, jobs[0].Status)
}

func TestJobUpdateAndFilters(t *testing.T) {
	s := openStores(t)
	ctx := context.Background()
	mgr := s.profile(t, "MGR", "Manager")
	decl := s.profile(t, "DEC", "Declarant")

	a, b := newJob("B-1", mgr.ID), newJob("B-2", mgr.ID)
	etd := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a.ETD = &etd
	_, err := s.jobs.Insert(ctx, []domain.NewJob{a, b})
	require.NoError(t, err)

	query := domain.JobStatusQuery
	details := "missing invoice"
	job, err := s.jobs.Update(ctx, a.ID, domain.JobPatch{AllocatedTo: &decl.ID, Status: &query, QueryDetails: &details})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQuery, job.Status)
	require.NotNil(t, job.QueryDetails)
	assert.Equal(t, details, *job.QueryDetails)
	require.NotNil(t, job.Assignee)
	assert.Equal(t, "Declarant", job.Assignee.FullName)
	require.NotNil(t, job.ETD)
	assert.True(t, etd.Equal(*job.ETD))

	_, err = s.jobs.Update(ctx, a.ID, domain.JobPatch{Status: &query})
	assert.ErrorIs(t, err, repository.ErrCheckViolation, "query needs details")

	job, err = s.jobs.Update(ctx, a.ID, domain.JobPatch{ClearETD: true})
	require.NoError(t, err)
	assert.Nil(t, job.ETD)

	mine, err := s.jobs.List(ctx, repository.JobFilter{AssigneeID: &decl.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "B-1", mine[0].JobRef)

	pool, err := s.jobs.List(ctx, repository.JobFilter{Unallocated: true})
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "B-2", pool[0].JobRef)

	queried, err := s.jobs.List(ctx, repository.JobFilter{Statuses: []domain.JobStatus{domain.JobStatusQuery}})
	require.NoError(t, err)
	assert.Len(t, queried, 1)

	page, err := s.jobs.List(ctx, repository.JobFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "B-1", page[0].JobRef)

	ref := "B-1"
	_, err = s.jobs.Update(ctx, b.ID, domain.JobPatch{JobRef: &ref})
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	_, err = s.jobs.Update(ctx, "missing", domain.JobPatch{JobRef: &ref})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.jobs.Delete(ctx, b.ID))
	assert.ErrorIs(t, s.jobs.Delete(ctx, b.ID), repository.ErrNotFound)
}

func TestClaimHasOneWinner(t *testing.T) {
	s := openStores(t)
	ctx := context.Background()
	mgr := s.profile(t, "MGR", "Manager")
	job := newJob("C-1", mgr.ID)
	_, err := s.jobs.Insert(ctx, []domain.NewJob{job})
	require.NoError(t, err)

	const contenders = 6
	ids := make([]string, contenders)
	for i := range ids {
		ids[i] = s.profile(t, uuid.NewString()[:8], "Declarant").ID
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := s.jobs.Claim(ctx, job.ID, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, repository.ErrAlreadyAllocated):
				losses++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, losses)

	claimed, err := s.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, claimed.Status)
	require.NotNil(t, claimed.AllocatedTo)

	_, err = s.jobs.Claim(ctx, "missing", ids[0])
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
