package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospector/internal/agent"
	"github.com/sells-group/prospector/internal/monitoring"
	"github.com/sells-group/prospector/internal/scheduler"
	"github.com/sells-group/prospector/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, dispatcher and HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		loc, err := cfg.Scheduler.Location()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "serve", agentOptions(loc, cfg.Agent.SoftSchedules))
		if err != nil {
			return err
		}
		defer env.Close()

		sched := scheduler.New(loc, scheduler.WithTick(time.Duration(cfg.Scheduler.TickSecs)*time.Second))
		if err := scheduler.RegisterDefaults(sched, env.Agent, cfg.Scheduler.Triggers); err != nil {
			return err
		}
		sched.RegisterOnce(scheduler.TriggerStartup,
			time.Duration(cfg.Scheduler.InitialDelaySecs)*time.Second,
			scheduler.StartupCollection(env.Agent))

		srv := server.New(cfg.Server, env.Agent, env.Store, sched)
		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Agent, env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return env.Agent.Run(gctx) })
		g.Go(func() error { return sched.Run(gctx) })
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error { return checker.Run(gctx) })

		zap.L().Info("prospector running",
			zap.Int("port", cfg.Server.Port),
			zap.String("timezone", loc.String()),
		)
		return g.Wait()
	},
}

// agentOptions maps config onto dispatcher options.
func agentOptions(loc *time.Location, soft bool) agent.Options {
	return agent.Options{
		PollInterval:      time.Duration(cfg.Agent.PollIntervalSecs) * time.Second,
		SelfCheckInterval: time.Duration(cfg.Agent.SelfCheckIntervalSecs) * time.Second,
		SoftSchedules:     soft,
		CollectionHour:    cfg.Agent.CollectionHour,
		CallingHour:       cfg.Agent.CallingHour,
		Location:          loc,
		HistorySize:       cfg.Agent.HistorySize,
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
