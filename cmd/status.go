package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospector/internal/analysis"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/scheduler"
	"github.com/sells-group/prospector/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the trigger schedule and record store breakdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("status"); err != nil {
			return err
		}
		loc, err := cfg.Scheduler.Location()
		if err != nil {
			return err
		}

		sched := scheduler.New(loc)
		if err := scheduler.RegisterDefaults(sched, noopSubmitter{}, cfg.Scheduler.Triggers); err != nil {
			return err
		}
		printTriggers(cmd.OutOrStdout(), sched.Snapshot(), loc)

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		return printReport(ctx, cmd.OutOrStdout(), st)
	},
}

// noopSubmitter lets status build the trigger table without a dispatcher.
type noopSubmitter struct{}

func (noopSubmitter) Submit(context.Context, model.Task) (model.RunSummary, error) {
	return model.RunSummary{}, nil
}

func printTriggers(w io.Writer, triggers []scheduler.TriggerInfo, loc *time.Location) {
	fmt.Fprintf(w, "Triggers (%s):\n", loc)
	for _, t := range triggers {
		fmt.Fprintf(w, "  %-26s %-14s next %s\n", t.Name, t.Spec, t.Next.In(loc).Format(time.RFC3339))
	}
	fmt.Fprintln(w)
}

func printReport(ctx context.Context, w io.Writer, st store.Store) error {
	report, err := analysis.NewAnalyzer(st, 0).Analyze(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, report.String())
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
