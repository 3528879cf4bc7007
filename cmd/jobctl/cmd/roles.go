package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/job-tracker/internal/domain"
)

func rolesCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "roles",
		Short: "Inspect and change role assignments",
	}
	command.AddCommand(rolesListCmd(), roleChangeCmd("grant", "granted"), roleChangeCmd("revoke", "revoked"))
	return command
}

func rolesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users with their roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, func(ctx context.Context, s *services) error {
				users, err := s.roles.ListUsers(ctx, operator())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EMPLOYEE ID\tNAME\tROLES")
				for _, u := range users {
					names := make([]string, 0, len(u.Roles))
					for _, r := range u.Roles.List() {
						names = append(names, string(r))
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", u.Profile.EmployeeID, u.Profile.FullName, strings.Join(names, ","))
				}
				return w.Flush()
			})
		},
	}
}

// roleChangeCmd builds either the grant or the revoke command.
func roleChangeCmd(action, done string) *cobra.Command {
	command := &cobra.Command{
		Use:   action,
		Short: strings.ToUpper(action[:1]) + action[1:] + " a role",
		Args:  cobra.NoArgs,
	}
	command.Flags().String("employee-id", "", "employee id of the user")
	command.Flags().String("role", "", "one of admin, manager, allocater, declarant")
	_ = command.MarkFlagRequired("employee-id")
	_ = command.MarkFlagRequired("role")

	command.RunE = func(cmd *cobra.Command, _ []string) error {
		employeeID, _ := cmd.Flags().GetString("employee-id")
		roleName, _ := cmd.Flags().GetString("role")
		role := domain.Role(strings.ToLower(roleName))

		return withServices(cmd, func(ctx context.Context, s *services) error {
			profile, err := s.profiles.GetByEmployeeID(ctx, employeeID)
			if err != nil {
				return err
			}
			if action == "grant" {
				err = s.roles.Grant(ctx, operator(), profile.ID, role)
			} else {
				err = s.roles.Revoke(ctx, operator(), profile.ID, role)
			}
			if err != nil {
				return err
			}
			cmd.Printf("%s %s for %s\n", role, done, profile.EmployeeID)
			return nil
		})
	}
	return command
}
