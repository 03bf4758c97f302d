package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/prospector/internal/model"
)

var cleanupPriorities bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove duplicate records and exit",
	Long:  "Deletes all but the newest record for each external key. With --priorities, priority and segment are recomputed for every record afterwards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(cmd, "cleanup", model.Task{
			Type:     model.TaskCleanup,
			Priority: model.TaskPriorityHigh,
			Params:   map[string]any{"refresh_priorities": cleanupPriorities},
		})
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupPriorities, "priorities", false, "also recompute priority and segment for every record")
	rootCmd.AddCommand(cleanupCmd)
}
