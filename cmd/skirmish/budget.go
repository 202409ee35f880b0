package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBudgetCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect the daily spend budget",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's spend against the cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.governor.Status(context.Background())
			if st.Unknown {
				fmt.Println("Warning: ledger unreachable, spend unknown.")
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENVIRONMENT\tSINCE\tSPEND\tCAP\tTHROTTLE AT\tREMAINING\tUSED\tSTATE")
			fmt.Fprintf(w, "%s\t%s\t$%s\t$%s\t$%s\t$%s\t%.1f%%\t%s\n",
				st.Environment, st.Since.Format("2006-01-02 15:04 MST"),
				st.Spend.StringFixed(2), st.Cap.StringFixed(2), st.ThrottleAt.StringFixed(2),
				st.Remaining.StringFixed(2), st.PercentUsed, st.State)
			return w.Flush()
		},
	}

	cmd.AddCommand(statusCmd)
	return cmd
}
