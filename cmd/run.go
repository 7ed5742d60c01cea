package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/teetime-scheduler/internal/db"
	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/example/teetime-scheduler/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(a *app) *cobra.Command {
	var weeks int

	c := &cobra.Command{
		Use:   "run",
		Short: "Run one booking job now and print the result summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if weeks < 1 {
				return fmt.Errorf("--weeks must be at least 1")
			}
			if err := a.load(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var d *db.DB
			if a.cfg.DatabaseURL != "" {
				var err error
				if d, err = a.openDB(ctx); err != nil {
					return err
				}
				defer d.Close()
			}

			portal, err := a.portal()
			if err != nil {
				return err
			}
			rec := metrics.New()
			out := a.sinks(d, rec, true)
			defer func() {
				if err := out.Close(); err != nil {
					a.log.Warn("close sinks", zap.Error(err))
				}
			}()
			job := a.job(ctx, portal, rec, out.list)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if weeks == 1 {
				res, err := job.Run(ctx)
				if err != nil {
					return err
				}
				return enc.Encode(res.Summary())
			}

			results, err := job.RunWeeks(ctx, weeks, a.cfg.ParallelSessions)
			if err != nil {
				return err
			}
			summaries := make([]weekSummary, 0, len(results))
			for _, r := range results {
				ws := weekSummary{Date: r.Unit.Name}
				if r.Err != nil {
					ws.Error = r.Err.Error()
				} else {
					s := r.Result.Summary()
					ws.Summary = &s
				}
				summaries = append(summaries, ws)
			}
			return enc.Encode(summaries)
		},
	}

	c.Flags().IntVar(&weeks, "weeks", 1, "book this many consecutive weeks, each in its own browser session")
	return c
}

type weekSummary struct {
	Date    string           `json:"date"`
	Summary *booking.Summary `json:"summary,omitempty"`
	Error   string           `json:"error,omitempty"`
}
