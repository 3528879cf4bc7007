// Package cmd holds the jobctl operator commands. They talk to the store
// directly using the same configuration as the API server.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/config"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/observability"
	"github.com/spec-kit/job-tracker/internal/platform"
	"github.com/spec-kit/job-tracker/internal/service"
)

// RootCmd is the root Cobra command that gets called from the main func.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "jobctl",
		Short:        "jobctl administers the customs job tracker.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("log-level", "warn", "log level for backend diagnostics")

	cmd.AddCommand(
		bootstrapCmd(),
		rolesCmd(),
		importCmd(),
		reportCmd(),
	)
	return cmd
}

// services is the slice of the service layer the commands need.
type services struct {
	backends *platform.Platform
	roles    *service.RoleService
	profiles *service.ProfileService
	imports  *service.ImportService
	reports  *service.ReportService
	logger   *zap.Logger
}

// withServices opens the configured backends for the duration of fn.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logger.Level = level
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backends, err := platform.Open(ctx, *cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	return fn(ctx, &services{
		backends: backends,
		roles: service.NewRoleService(service.RoleDependencies{
			RoleRepo:    backends.Roles,
			ProfileRepo: backends.Profiles,
			Logger:      logger,
		}),
		profiles: service.NewProfileService(service.ProfileDependencies{
			ProfileRepo: backends.Profiles,
			BcryptCost:  cfg.Auth.BcryptCost,
			Logger:      logger,
		}),
		imports: service.NewImportService(service.ImportDependencies{
			JobRepo: backends.Jobs,
			Feed:    backends.Feed,
			Logger:  logger,
		}),
		reports: service.NewReportService(backends.Jobs),
		logger:  logger,
	})
}

// principalFor resolves the profile behind employeeID with its current roles.
func (s *services) principalFor(ctx context.Context, employeeID string) (*domain.Principal, error) {
	profile, err := s.profiles.GetByEmployeeID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	roles, err := s.roles.RolesOf(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	return domain.NewPrincipal(*profile, roles), nil
}

// operator acts for whoever runs jobctl with store access.
func operator() *domain.Principal {
	return domain.NewPrincipal(domain.Profile{ID: "jobctl", FullName: "jobctl"}, domain.NewRoleSet(domain.RoleAdmin))
}
