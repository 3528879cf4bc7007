package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/job-tracker/internal/domain"
)

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print job counts per status and per assignee",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, func(ctx context.Context, s *services) error {
				report, err := s.reports.Summary(ctx, operator())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "TOTAL\t%d\n", report.Total)
				for _, status := range domain.JobStatuses {
					fmt.Fprintf(w, "%s\t%d\n", status, report.Counts[status])
				}
				fmt.Fprintf(w, "completion rate\t%.1f%%\n", report.CompletionRate*100)
				if assignees := report.Assignees(); len(assignees) > 0 {
					fmt.Fprintln(w, "\nASSIGNEE\tJOBS\tCOMPLETED")
					for _, a := range assignees {
						fmt.Fprintf(w, "%s\t%d\t%d\n", a.Name, a.Total, a.Completed)
					}
				}
				return w.Flush()
			})
		},
	}
}
