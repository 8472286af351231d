package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/observability"
	"github.com/xkilldash9x/goalpilot/internal/planner"
	"github.com/xkilldash9x/goalpilot/internal/service"
)

type planOutput struct {
	Goal  goal.Goal      `json:"goal"`
	Steps []planner.Step `json:"steps"`
}

// newPlanCmd creates the `plan` command, a dry run that prints the interpreted goal, its
// subgoal chain and the actions planned for each subgoal.
func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "plan <command...>",
		Short:   "Shows how a goal would be executed without running it",
		Example: `  goalpilot plan "search for lofi beats on youtube"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			// Planning never persists anything.
			cfg.DatabaseCfg.URL = ""

			components, err := service.NewComponentFactory().Create(ctx, cfg, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			g, steps, err := components.Plan(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), planOutput{Goal: g, Steps: steps})
		},
	}
}
