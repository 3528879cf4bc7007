package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/job-tracker/internal/auth"
	"github.com/spec-kit/job-tracker/internal/config"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/events"
	"github.com/spec-kit/job-tracker/internal/persistence"
	"github.com/spec-kit/job-tracker/internal/repository"
	"github.com/spec-kit/job-tracker/internal/repository/sqlitestore"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

type testEnv struct {
	jobs     repository.JobRepository
	profiles repository.ProfileRepository
	roles    repository.RoleRepository
	feed     *events.MemoryFeed

	jobSvc     *JobService
	roleSvc    *RoleService
	authSvc    *AuthService
	profileSvc *ProfileService
	importSvc  *ImportService
	reportSvc  *ReportService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithPolicy(t, domain.StatusPolicy{})
}

func newTestEnvWithPolicy(t *testing.T, policy domain.StatusPolicy) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	store, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "jobs.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, persistence.RunSQLiteMigrations(ctx, store.DB, logger))

	feed := events.NewMemoryFeed(64)
	t.Cleanup(func() { _ = feed.Close() })

	env := &testEnv{
		jobs:     sqlitestore.NewJobRepository(store.DB),
		profiles: sqlitestore.NewProfileRepository(store.DB),
		roles:    sqlitestore.NewRoleRepository(store.DB),
		feed:     feed,
	}

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = bcrypt.MinCost

	env.jobSvc = NewJobService(JobDependencies{
		JobRepo:     env.jobs,
		ProfileRepo: env.profiles,
		RoleRepo:    env.roles,
		Feed:        feed,
		Policy:      policy,
	})
	env.roleSvc = NewRoleService(RoleDependencies{RoleRepo: env.roles, ProfileRepo: env.profiles})
	env.authSvc = NewAuthService(cfg, AuthDependencies{
		ProfileRepo: env.profiles,
		RoleRepo:    env.roles,
		Revocations: auth.NewMemoryRevocationStore(),
	})
	env.profileSvc = NewProfileService(ProfileDependencies{ProfileRepo: env.profiles, BcryptCost: bcrypt.MinCost})
	env.importSvc = NewImportService(ImportDependencies{JobRepo: env.jobs, Feed: feed})
	env.reportSvc = NewReportService(env.jobs)
	return env
}

// user creates a profile holding roles and returns it as a principal.
func (e *testEnv) user(t *testing.T, employeeID string, roles ...domain.Role) *domain.Principal {
	t.Helper()
	ctx := context.Background()
	profile := &domain.Profile{
		ID:           uuid.NewString(),
		EmployeeID:   employeeID,
		FullName:     "User " + employeeID,
		Email:        domain.InternalEmail(employeeID),
		PasswordHash: "unused",
	}
	require.NoError(t, e.profiles.Create(ctx, profile))
	for _, role := range roles {
		require.NoError(t, e.roles.Insert(ctx, &domain.RoleAssignment{UserID: profile.ID, Role: role}))
	}
	return domain.NewPrincipal(*profile, domain.NewRoleSet(roles...))
}

func (e *testEnv) job(t *testing.T, actor *domain.Principal, ref string) *domain.Job {
	t.Helper()
	job, err := e.jobSvc.Create(context.Background(), actor, CreateJobInput{JobRef: ref, ImporterName: "Acme Imports"})
	require.NoError(t, err)
	return job
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, apperrors.HasCode(err, code), "want %s, got %v", code, err)
}

func nextEvent(t *testing.T, sub events.Subscription) events.Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return events.Event{}
	}
}

func strPtr(s string) *string { return &s }
