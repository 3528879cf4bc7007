package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "import",
		Short: "Import jobs from a CSV or XLSX file",
		Long:  "Imports every row of the file as a pending job on behalf of a user who may import jobs. The whole file is rejected on any error.",
		Args:  cobra.NoArgs,
	}
	command.Flags().String("file", "", "path to a .csv or .xlsx file")
	command.Flags().String("as", "", "employee id of the importing user")
	_ = command.MarkFlagRequired("file")
	_ = command.MarkFlagRequired("as")

	command.RunE = func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")
		employeeID, _ := cmd.Flags().GetString("as")

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		return withServices(cmd, func(ctx context.Context, s *services) error {
			actor, err := s.principalFor(ctx, employeeID)
			if err != nil {
				return err
			}
			result, err := s.imports.Import(ctx, actor, filepath.Base(path), f)
			if err != nil {
				return err
			}
			cmd.Printf("imported %d jobs, skipped %d incomplete rows\n", result.Inserted, result.Skipped)
			return nil
		})
	}
	return command
}
