package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nstogner/desktopctl/pkg/app"
	"github.com/nstogner/desktopctl/pkg/runner"
	"github.com/nstogner/desktopctl/pkg/store"
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Run the built-in Nike notify-me script",
	Long: `Opens nike.com in the sandbox browser, navigates to the Air Force 1 page
and signs up for a restock notification. Every click target is located on a
fresh screenshot. The first failing step aborts the run.

A sandbox is started for the run unless one is already running, and stopped
again afterwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		loc, err := app.Locator(ctx, cfg)
		if err != nil {
			return err
		}

		sess, err := connect(ctx)
		if err != nil {
			return err
		}
		defer sess.release()

		script := runner.NikeNotifyScript()
		rec := newRecorder(store.Header{Mode: store.ModeScript, Script: script.Name})
		defer rec.close()

		obs := runner.ObserverFunc(func(e runner.Event) {
			switch e.Type {
			case runner.EventStepStarted:
				printf(cmd, "[%2d] %s\n", e.Step, e.Name)
			case runner.EventFailed:
				printf(cmd, "[%2d] FAILED: %v\n", e.Step, e.Err)
			}
		})
		r := app.Runner(cfg, sess.actions, loc, obs)

		rep, err := r.RunScript(ctx, script)
		for _, o := range rep.Outcomes {
			rec.step(o)
		}
		rec.finish(err)
		if err != nil {
			return err
		}
		slog.Info("Script completed", "run", rep.RunID, "steps", len(rep.Outcomes))
		printf(cmd, "Completed %d steps.\n", len(rep.Outcomes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scriptCmd)
}
