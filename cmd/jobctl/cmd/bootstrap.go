package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func bootstrapCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "bootstrap",
		Short: "Grant admin to the first user",
		Long:  "Grants the admin role to a signed-up user. Refused once an admin or manager exists.",
		Args:  cobra.NoArgs,
	}
	command.Flags().String("employee-id", "", "employee id of the user to promote")
	_ = command.MarkFlagRequired("employee-id")

	command.RunE = func(cmd *cobra.Command, _ []string) error {
		employeeID, _ := cmd.Flags().GetString("employee-id")
		return withServices(cmd, func(ctx context.Context, s *services) error {
			profile, err := s.profiles.GetByEmployeeID(ctx, employeeID)
			if err != nil {
				return err
			}
			if err := s.roles.Bootstrap(ctx, profile.ID); err != nil {
				return err
			}
			cmd.Printf("%s (%s) is now an admin\n", profile.FullName, profile.EmployeeID)
			return nil
		})
	}
	return command
}
