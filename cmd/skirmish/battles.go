package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/skirmish/pkg/archive"
	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
)

func openBattleArchive(a *app) (*archive.Archive, error) {
	arch, err := a.openArchive()
	if err != nil {
		return nil, err
	}
	if arch == nil {
		return nil, fmt.Errorf("battle archive is disabled: %w", errs.ErrConfiguration)
	}
	return arch, nil
}

func newBattlesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "battles",
		Short: "Inspect archived battles",
	}

	var workItem, state, since string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent battles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			arch, err := openBattleArchive(a)
			if err != nil {
				return err
			}

			opts := models.ArchiveQueryOpts{
				WorkItemID: workItem,
				State:      models.BattleState(state),
				Limit:      limit,
			}
			if since != "" {
				t, err := time.ParseInLocation("2006-01-02", since, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --since (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			battles, err := arch.List(context.Background(), opts)
			if err != nil {
				return err
			}
			if len(battles) == 0 {
				fmt.Println("No battles found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWORK ITEM\tSTATE\tTURNS\tCOST\tSCORE\tSTARTED")
			for _, b := range battles {
				score := "-"
				if b.Score != nil {
					score = fmt.Sprintf("%.1f", b.Score.Total)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%s\t%s\t%s\n",
					b.ID, b.WorkItemID, b.State, len(b.Turns), b.CumulativeCost.StringFixed(4),
					score, humanize.Time(b.StartedAt))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&workItem, "work-item", "", "filter by work item id")
	listCmd.Flags().StringVar(&state, "state", "", "filter by state (completed, aborted_budget, aborted_error)")
	listCmd.Flags().StringVar(&since, "since", "", "start date YYYY-MM-DD")
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum battles to show")

	showCmd := &cobra.Command{
		Use:   "show <battle-id>",
		Short: "Show a battle transcript and score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			arch, err := openBattleArchive(a)
			if err != nil {
				return err
			}

			b, err := arch.Get(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Battle %s\n", b.ID)
			fmt.Printf("  Work item: %s\n  State:     %s\n  Started:   %s\n  Cost:      $%s\n",
				b.WorkItemID, b.State, b.StartedAt.Format(time.RFC3339), b.CumulativeCost.StringFixed(4))
			if b.Error != "" {
				fmt.Printf("  Error:     %s\n", b.Error)
			}
			fmt.Println()
			for _, t := range b.Turns {
				fmt.Printf("[%2d] %s (%s, %s in / %s out, $%s)\n     %s\n",
					t.Index, t.Speaker, t.Tier, humanize.Comma(int64(t.InputUsage)),
					humanize.Comma(int64(t.OutputUsage)), t.Cost.StringFixed(4), t.Text)
			}
			fmt.Println()
			switch {
			case b.Score != nil:
				s := b.Score
				fmt.Printf("Score: %.1f (%s)\n", s.Total, s.Outcome)
				fmt.Printf("  rapport %.1f, discovery %.1f, objections %.1f, closing %.1f, compliance %.1f, naturalness %.1f\n",
					s.Rapport, s.Discovery, s.ObjectionHandling, s.Closing, s.Compliance, s.Naturalness)
				if s.Summary != "" {
					fmt.Printf("  %s\n", s.Summary)
				}
			case b.ScoreError != "":
				fmt.Printf("Not scored: %s\n", b.ScoreError)
			}
			return nil
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete battles older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			arch, err := openBattleArchive(a)
			if err != nil {
				return err
			}
			n, err := arch.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d battles older than %d days.\n", n, a.cfg.Archive.RetentionDays)
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, cleanupCmd)
	return cmd
}
