package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstogner/desktopctl/pkg/store/jsonl"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Dir == "" {
			return fmt.Errorf("run recording is disabled (store.dir is empty)")
		}
		mgr, err := jsonl.NewManager(cfg.Store.Dir)
		if err != nil {
			return err
		}
		runs, err := mgr.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			printf(cmd, "No runs recorded\n")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMODE\tSTATUS\tMESSAGES\tMODIFIED\tTASK")
		for _, r := range runs {
			task := r.Task
			if task == "" {
				task = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.Mode, r.Status, r.MessageCount, r.Modified.Format(time.RFC822), task)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}
