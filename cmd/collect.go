package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
)

var collectMode string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if collectMode != "daily" && collectMode != "weekly" {
			return eris.Errorf("unknown collection mode %q (want daily or weekly)", collectMode)
		}
		return runOneShot(cmd, "collect", model.Task{
			Type:     model.TaskCollection,
			Priority: model.TaskPriorityHigh,
			Params:   map[string]any{"mode": collectMode},
		})
	},
}

// runOneShot wires the environment for mode, runs task through the
// dispatcher and prints its summary.
func runOneShot(cmd *cobra.Command, mode string, task model.Task) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx, mode, agentOptions(time.UTC, false))
	if err != nil {
		return err
	}
	defer env.Close()

	task.Source = model.SourceOperator
	sum, err := env.runOnce(ctx, task)
	if err != nil {
		return eris.Wrapf(err, "%s failed", task.Type)
	}

	if sum.Result != nil {
		fmt.Fprintln(cmd.OutOrStdout(), sum.Result.Summary)
		for _, e := range sum.Result.Errors {
			zap.L().Warn("run error",
				zap.String("scope", e.Scope),
				zap.String("key", e.Key),
				zap.String("error", e.Message),
				zap.Bool("transient", e.Transient),
			)
		}
	}
	return nil
}

func init() {
	collectCmd.Flags().StringVar(&collectMode, "mode", "daily", "collection mode: daily or weekly")
	rootCmd.AddCommand(collectCmd)
}
