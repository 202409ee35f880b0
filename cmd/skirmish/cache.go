package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the provisioned resource cache",
	}

	var verbose bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cached resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.openCache(ctx)
			if err != nil {
				return err
			}
			entries, err := c.Entries(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Backend:  %s\nEntries:  %d of %d\nTTL:      %s\n",
				a.cfg.Cache.Backend, len(entries), a.cfg.Cache.Capacity, a.cfg.Cache.TTL)
			if !verbose || len(entries) == 0 {
				return nil
			}

			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "HASH\tRESOURCE\tPERSONA\tDIFFICULTY\tUSES\tCREATED\tLAST USED")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ConfigHash[:12], e.ResourceID, e.Config.Persona, e.Config.Difficulty,
					humanize.Comma(e.UseCount), humanize.Time(e.CreatedAt), humanize.Time(e.LastUsedAt))
			}
			return w.Flush()
		},
	}
	statsCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every entry")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry (provisioned resources are left in place)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.openCache(ctx)
			if err != nil {
				return err
			}
			n, err := c.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %d cache entries.\n", n)
			return nil
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove entries older than the cache TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.openCache(ctx)
			if err != nil {
				return err
			}
			n, err := c.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d expired cache entries.\n", n)
			return nil
		},
	}

	cmd.AddCommand(statsCmd, clearCmd, sweepCmd)
	return cmd
}
