package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nstogner/desktopctl/pkg/app"
	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/runner"
	"github.com/nstogner/desktopctl/pkg/store"
)

var continueRun string

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Let a model carry out a task on the desktop",
	Long: `Runs the model-driven loop: the configured provider sees the conversation
and a fresh screenshot, picks one computer action, sees its result, and so on
until it answers without an action or runner.max_steps is reached.

With --continue the conversation of an earlier recorded run is resumed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		task := strings.Join(args, " ")

		// Only the grounded provider needs a locator.
		loc, err := app.Locator(ctx, cfg)
		if err != nil {
			if cfg.Model.Provider == "grounded" {
				return err
			}
			slog.Debug("No locator available", "error", err)
		}
		provider, closer, err := app.Provider(ctx, cfg, loc)
		if err != nil {
			return err
		}
		defer closer.Close()

		var rec *recorder
		if continueRun != "" {
			if rec, err = loadRecorder(continueRun); err != nil {
				return err
			}
		} else {
			rec = newRecorder(store.Header{
				Mode:     store.ModeModel,
				Task:     task,
				Provider: provider.Name(),
				Model:    cfg.Model.Name,
			})
		}
		defer rec.close()
		history := rec.history()

		sess, err := connect(ctx)
		if err != nil {
			return err
		}
		defer sess.release()

		obs := runner.ObserverFunc(func(e runner.Event) {
			switch e.Type {
			case runner.EventDecision:
				for _, tu := range e.Message.ToolUses() {
					printf(cmd, "[%2d] %s %v\n", e.Step+1, tu.Name, tu.Input)
				}
			case runner.EventToolResult:
				if e.Result.IsError() {
					printf(cmd, "     error: %s\n", e.Result.Error)
				}
			}
		})
		r := app.Runner(cfg, sess.actions, loc, obs)
		res, err := r.RunModel(ctx, app.ModelRun(cfg, provider, app.Tools(cfg, sess.actions), history, task))

		rec.messages(res.History[min(len(history), len(res.History)):]...)
		rec.finish(err)
		if id := rec.id(); id != "" {
			printf(cmd, "Run %s (%d steps)\n", id, res.Steps)
		}
		if err != nil {
			if errors.Is(err, domain.ErrStepsExhausted) {
				return fmt.Errorf("%w after %d steps", err, res.Steps)
			}
			return err
		}
		if n := len(res.History); n > 0 && res.History[n-1].Role == domain.RoleAssistant {
			printf(cmd, "%s\n", res.History[n-1].Text())
		}
		return nil
	},
}

func init() {
	addURLFlag(runCmd)
	runCmd.Flags().StringVar(&continueRun, "continue", "", "resume the conversation of a recorded run")
	rootCmd.AddCommand(runCmd)
}
