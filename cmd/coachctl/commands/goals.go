package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/spf13/cobra"
)

type goalLister interface {
	ListGoals(ctx context.Context, userID string, status domain.GoalStatus) ([]domain.Goal, error)
}

func newGoalsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "Inspect stored goals",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the user's goals",
		Long: `List the goals stored for --user, most recently updated first.

Examples:
  coachctl goals list
  coachctl goals list --status active
  coachctl goals list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.GoalStatus(status)
			if filter != "" && !filter.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			repo, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			return listGoals(cmd.Context(), repo, opts.userID, filter, opts.format, cmd.OutOrStdout())
		},
	}
	list.Flags().StringVar(&status, "status", "", "Only show goals with this status")

	cmd.AddCommand(list)
	return cmd
}

func listGoals(ctx context.Context, repo goalLister, userID string, status domain.GoalStatus, format string, out io.Writer) error {
	goals, err := repo.ListGoals(ctx, userID, status)
	if err != nil {
		return fmt.Errorf("list goals: %w", err)
	}

	if format == formatJSON {
		if goals == nil {
			goals = []domain.Goal{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(goals)
	}

	if len(goals) == 0 {
		_, err := fmt.Fprintln(out, "No goals yet.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTARGET\tTITLE")
	for _, g := range goals {
		target := "-"
		if g.TargetDate != nil {
			target = *g.TargetDate
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.ID, g.Status, target, strings.ReplaceAll(g.Title, "\t", " "))
	}
	return tw.Flush()
}
