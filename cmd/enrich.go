package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/prospector/internal/model"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Verify one batch of unverified records and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(cmd, "enrich", model.Task{
			Type:     model.TaskEnrichment,
			Priority: model.TaskPriorityHigh,
		})
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
