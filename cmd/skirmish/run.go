package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/config"
	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
	"github.com/pario-ai/skirmish/pkg/scheduler"
)

func newRunCmd(configPath *string) *cobra.Command {
	var batchSize int
	var itemIDs []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch of battles against the configured work items",
		Long: "Run a batch of battles. The batch stops admitting work when the daily budget is exhausted;\n" +
			"battles already running finish and every completed result is reported.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := selectItems(a.cfg, itemIDs, batchSize)
			if err != nil {
				return err
			}

			engine, err := a.newEngine(ctx)
			if err != nil {
				return err
			}

			s := scheduler.New(engine, a.governor, scheduler.Options{
				Concurrency: a.cfg.Scheduler.Concurrency,
				Delay:       a.cfg.Scheduler.Delay,
				Logger:      a.logger,
			})
			a.logger.Info("starting batch", zap.Int("items", len(items)), zap.Int("concurrency", a.cfg.Scheduler.Concurrency))
			res := s.Run(ctx, items)

			if err := printBatch(os.Stdout, res); err != nil {
				return err
			}
			st := a.governor.Status(ctx)
			fmt.Printf("\nBudget: $%s of $%s spent today (%s)\n", st.Spend.StringFixed(2), st.Cap.StringFixed(2), st.State)

			if res.Err != "" {
				return fmt.Errorf("batch halted: %s: %w", res.Err, errs.ErrConfiguration)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "n", 0, "number of battles to run, cycling through the work items (default: one per item)")
	cmd.Flags().StringSliceVar(&itemIDs, "items", nil, "comma-separated work item ids (default: all configured items)")
	return cmd
}

// selectItems picks the work items for a batch. Explicit ids must all exist.
// A positive batch size repeats or truncates the selection to that length.
func selectItems(cfg *config.Config, ids []string, batchSize int) ([]models.WorkItem, error) {
	var items []models.WorkItem
	if len(ids) == 0 {
		items = append(items, cfg.WorkItems...)
	} else {
		for _, id := range ids {
			id = strings.TrimSpace(id)
			w, ok := cfg.WorkItem(id)
			if !ok {
				return nil, fmt.Errorf("unknown work item %q: %w", id, errs.ErrConfiguration)
			}
			items = append(items, w)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no work items configured: %w", errs.ErrConfiguration)
	}
	if batchSize < 0 {
		return nil, fmt.Errorf("batch size %d is negative: %w", batchSize, errs.ErrConfiguration)
	}
	if batchSize == 0 {
		return items, nil
	}

	out := make([]models.WorkItem, batchSize)
	for i := range out {
		out[i] = items[i%len(items)]
	}
	return out, nil
}

func printBatch(w io.Writer, res models.BatchResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tWORK ITEM\tSTATE\tTURNS\tCOST\tSCORE\tDURATION")
	for _, r := range res.Results {
		state, turns, cost, score := "error", "-", "-", "-"
		if b := r.Battle; b != nil {
			state = string(b.State)
			turns = fmt.Sprint(len(b.Turns))
			cost = "$" + b.CumulativeCost.StringFixed(4)
			if b.Score != nil {
				score = fmt.Sprintf("%.1f", b.Score.Total)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Index, r.WorkItemID, state, turns, cost, score, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s submitted, %s completed, %s failed, %s not admitted\n",
		humanize.Comma(int64(res.Submitted)), humanize.Comma(int64(res.Completed)),
		humanize.Comma(int64(res.Failed)), humanize.Comma(int64(res.NotAdmitted)))
	if res.KillSwitchTriggered {
		fmt.Fprintln(w, "Kill switch triggered: daily budget exhausted, intake halted.")
	}
	for _, r := range res.Results {
		if r.Err != "" {
			fmt.Fprintf(w, "  item %d (%s): %s\n", r.Index, r.WorkItemID, r.Err)
		}
	}
	return nil
}
