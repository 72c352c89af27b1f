package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nstogner/desktopctl/pkg/app"
	"github.com/nstogner/desktopctl/pkg/client"
	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/runner"
)

var locateClick bool

var locateCmd = &cobra.Command{
	Use:   "locate <query>",
	Short: "Locate an element on the current screen",
	Long: `Takes a screenshot, asks the locator where the described element is and
prints its pixel coordinate. With --click the element is also clicked.`,
	Example: `  desktopctl locate "Find the firefox icon" --click`,
	Args:    cobra.ExactArgs(1),
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

		p, _, err := runner.Resolve(ctx, sess.actions, loc, args[0])
		if err != nil {
			return err
		}
		printf(cmd, "%d %d\n", p.X, p.Y)

		if !locateClick {
			return nil
		}
		res, err := sess.actions.Do(ctx, domain.NewCommand(domain.ActionLeftClick).WithCoordinate(p))
		if err != nil {
			return err
		}
		return client.AsError(res, domain.ActionLeftClick)
	},
}

func init() {
	addURLFlag(locateCmd)
	locateCmd.Flags().BoolVar(&locateClick, "click", false, "left-click the located element")
	rootCmd.AddCommand(locateCmd)
}
