package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pario-ai/skirmish/pkg/budget"
)

func newSpendCmd(configPath *string) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "spend",
		Short: "Show recorded spend by provider, kind and tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			from := budget.DayStart(time.Now())
			if since != "" {
				t, err := time.ParseInLocation("2006-01-02", since, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --since (use YYYY-MM-DD): %w", err)
				}
				from = t
			}

			rows, err := a.ledger.Summary(context.Background(), from, a.cfg.Environment)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Printf("No spend recorded since %s.\n", from.Format("2006-01-02"))
				return nil
			}

			total := decimal.Zero
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tKIND\tTIER\tENTRIES\tINPUT\tOUTPUT\tSECONDS\tCOST")
			for _, r := range rows {
				total = total.Add(r.Cost)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%.1f\t$%s\n",
					r.Provider, r.Kind, r.Tier, r.Entries,
					humanize.Comma(r.InputTokens), humanize.Comma(r.OutputTokens),
					r.Seconds, r.Cost.StringFixed(4))
			}
			fmt.Fprintf(w, "\t\t\t\t\t\tTOTAL\t$%s\n", total.StringFixed(4))
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "start date YYYY-MM-DD (default: today UTC)")
	return cmd
}
