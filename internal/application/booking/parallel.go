package booking

import (
	"context"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Unit is an independent piece of booking work with its own session.
type Unit struct {
	Name        string
	Date        time.Time
	Preferences booking.PreferenceSet
}

type UnitResult struct {
	Unit   Unit
	Result booking.RunResult
	Err    error
}

// ParallelRunner runs units concurrently. Units never share a session, so no
// two attempts touch the same form state.
type ParallelRunner struct {
	Portal   booking.Portal
	Policy   Policy
	Recorder Recorder
	Log      *zap.Logger
	// Limit caps concurrent sessions; zero means one per unit.
	Limit int
	// Ready is called after login and before the first fetch of each unit.
	Ready func(context.Context) error
}

// Run returns one result per unit, in input order. A failed unit does not
// cancel the others.
func (p *ParallelRunner) Run(ctx context.Context, units []Unit) []UnitResult {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	out := make([]UnitResult, len(units))
	var g errgroup.Group
	if p.Limit > 0 {
		g.SetLimit(p.Limit)
	}
	for i, u := range units {
		g.Go(func() error {
			ulog := log.With(zap.String("unit", u.Name))
			res, err := runSession(ctx, p.Portal, p.Policy, p.Recorder, ulog, u.Preferences, u.Date, p.Ready)
			if err != nil {
				ulog.Error("unit failed", zap.Error(err))
			}
			out[i] = UnitResult{Unit: u, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
