package cmd

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/engine"
	"github.com/xkilldash9x/goalpilot/internal/observability"
	"github.com/xkilldash9x/goalpilot/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newRunCmd creates the `run` command, which executes one goal and prints its FinalOutput.
func newRunCmd() *cobra.Command {
	var (
		sessionID string
		vars      map[string]string
	)

	runCmd := &cobra.Command{
		Use:   "run <command...>",
		Short: "Executes a natural-language goal against the sandbox browser",
		Long: `Interprets the goal, decomposes it into subgoals and drives the browser until the goal is
verified complete or no progress is possible. The result is printed as JSON.

The exit status is non-zero when the goal ends with status "error".`,
		Example: `  goalpilot run "search for usb hubs on amazon"
  goalpilot run --session 6f1c1c1e-3b6b-4a51-9a39-3f3f1b0c2d4e --set user=sam "extract the product titles"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			components, err := service.NewComponentFactory().Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			values := make(map[string]any, len(vars))
			for k, v := range vars {
				values[k] = v
			}

			command := strings.Join(args, " ")
			out, err := components.RunGoal(ctx, service.GoalRun{
				Command:   command,
				SessionID: sessionID,
				Context:   values,
			}, executionOptions...)
			if err != nil {
				return err
			}
			logger.Info("Goal finished",
				zap.String("goal_id", out.GoalID),
				zap.String("status", string(out.Status)),
				zap.Int("quality_score", out.QualityScore))

			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if out.Status == engine.OutputError {
				return fmt.Errorf("goal %q failed: %s", command, failureReason(out))
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&sessionID, "session", "s", "", "run under an existing session id")
	runCmd.Flags().StringToStringVar(&vars, "set", nil, "execution context values (key=value)")
	return runCmd
}

func failureReason(out engine.FinalOutput) string {
	switch {
	case out.Error != "":
		return out.Error
	case out.Reason != "":
		return out.Reason
	default:
		return out.Message
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
