package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/teetime-scheduler/internal/auth"
	"github.com/example/teetime-scheduler/internal/metrics"
	"github.com/example/teetime-scheduler/internal/runs"
	"github.com/example/teetime-scheduler/internal/scheduler"
	"github.com/example/teetime-scheduler/internal/users"
	"github.com/example/teetime-scheduler/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the weekly scheduler and the status web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			hashKey, blockKey, err := a.cfg.CookieKeys()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			portal, err := a.portal()
			if err != nil {
				return err
			}

			rec := metrics.New()
			out := a.sinks(d, rec, false)
			defer func() { _ = out.Close() }()

			runRepo := runs.NewRepo(d)
			weekday, at := a.cfg.Trigger()
			sched := &scheduler.Scheduler{
				Job:      a.job(ctx, portal, rec, out.list),
				Trigger:  scheduler.Trigger{Weekday: weekday, At: at, Location: a.cfg.Location()},
				Interval: a.cfg.SchedulerPoll,
				History:  runRepo,
				Log:      a.log.Named("scheduler"),
			}

			ws := &web.Server{
				Auth:    auth.NewStore(users.NewRepo(d), hashKey, blockKey),
				Runs:    runRepo,
				Trigger: sched,
				Metrics: rec.Handler(),
				Log:     a.log.Named("web"),
			}

			a.log.Info("server starting",
				zap.String("trigger_weekday", weekday.String()),
				zap.String("trigger_time", at.String()),
				zap.String("timezone", a.cfg.Timezone))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sched.Run(gctx) })
			g.Go(func() error { return web.Start(gctx, a.cfg.ListenAddr, ws.Routes(), a.log) })
			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
